// Package cli implements the pxfetch command line interface.
package cli

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nordstat/pxfetch/pkg/logging"
	"github.com/nordstat/pxfetch/pkg/metadata"
	"github.com/nordstat/pxfetch/pkg/pxweb"
	"github.com/nordstat/pxfetch/pkg/ratelimit"
	"github.com/nordstat/pxfetch/pkg/retry"
)

var (
	version = "dev"
	commit  = "none"
)

// rootFlags are the persistent options shared by every subcommand.
type rootFlags struct {
	baseURL     string
	userAgent   string
	metaDir     string
	s3Bucket    string
	s3Prefix    string
	s3Region    string
	s3Endpoint  string
	redisAddr   string
	logLevel    string
	pretty      bool
	metricsAddr string

	window     time.Duration
	maxCalls   int
	retryWait  time.Duration
	maxTries   int
	retryLimit time.Duration
}

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "pxfetch",
		Short:         "Bulk downloader for PX-Web statistical APIs",
		Long:          "pxfetch crawls a PX-Web API's table tree and downloads whole tables as parquet, partitioning queries to respect the API's cell cap and request quota.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logging.Setup(logging.Config{
				Level:  logging.LogLevel(flags.logLevel),
				Pretty: flags.pretty,
				Output: os.Stderr,
			})
			if flags.metricsAddr != "" {
				go serveMetrics(flags.metricsAddr)
			}
			return nil
		},
	}

	df := defaultFlags()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.baseURL, "base-url", df.baseURL, "API root URL")
	pf.StringVar(&flags.userAgent, "user-agent", df.userAgent, "User-Agent header sent to the API")
	pf.StringVar(&flags.metaDir, "meta-dir", df.metaDir, "local metadata store directory")
	pf.StringVar(&flags.s3Bucket, "s3-bucket", "", "S3 bucket for metadata and parquet output (empty: local only)")
	pf.StringVar(&flags.s3Prefix, "s3-prefix", "", "key prefix inside the S3 bucket")
	pf.StringVar(&flags.s3Region, "s3-region", "eu-north-1", "S3 region")
	pf.StringVar(&flags.s3Endpoint, "s3-endpoint", "", "custom S3 endpoint (MinIO etc.)")
	pf.StringVar(&flags.redisAddr, "redis-addr", "", "Redis address for the metadata cache (empty: disabled)")
	pf.StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.BoolVar(&flags.pretty, "pretty", false, "human-readable log output")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "listen address for Prometheus metrics (empty: disabled)")
	pf.DurationVar(&flags.window, "rate-window", df.window, "rate limit sliding window")
	pf.IntVar(&flags.maxCalls, "rate-calls", df.maxCalls, "max API calls per window")
	pf.DurationVar(&flags.retryWait, "retry-wait", df.retryWait, "delay between retry attempts")
	pf.IntVar(&flags.maxTries, "retry-tries", df.maxTries, "max attempts per request")
	pf.DurationVar(&flags.retryLimit, "retry-timeout", 0, "wall-clock retry deadline per request (0: none)")

	rootCmd.AddCommand(
		newCrawlCmd(flags),
		newDownloadCmd(flags),
		newTablesCmd(flags),
		newVersionCmd(),
	)
	return rootCmd
}

func defaultFlags() rootFlags {
	client := pxweb.DefaultConfig()
	limiter := ratelimit.DefaultConfig()
	retrier := retry.DefaultConfig()
	return rootFlags{
		baseURL:   client.BaseURL,
		userAgent: client.UserAgent,
		metaDir:   "metadata",
		window:    limiter.Window,
		maxCalls:  limiter.MaxCalls,
		retryWait: retrier.Wait,
		maxTries:  retrier.MaxTries,
	}
}

// client builds the API client from the shared flags.
func (f *rootFlags) client() (*pxweb.Client, error) {
	cfg := pxweb.DefaultConfig()
	cfg.BaseURL = f.baseURL
	cfg.UserAgent = f.userAgent
	return pxweb.New(cfg)
}

// limiter builds the shared rate limiter.
func (f *rootFlags) limiter() *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{Window: f.window, MaxCalls: f.maxCalls})
}

// retryConfig builds the retry policy for API calls.
func (f *rootFlags) retryConfig() retry.Config {
	return retry.Config{
		Wait:      f.retryWait,
		MaxTries:  f.maxTries,
		Timeout:   f.retryLimit,
		Retryable: pxweb.IsTransient,
	}
}

// store builds the metadata store: S3 when a bucket is set, local files
// otherwise, with an optional Redis read-through layer on top.
func (f *rootFlags) store() (metadata.Store, error) {
	var store metadata.Store
	if f.s3Bucket != "" {
		s3Store, err := metadata.NewS3Store(metadata.S3Config{
			Bucket:   f.s3Bucket,
			Prefix:   f.s3Prefix,
			Region:   f.s3Region,
			Endpoint: f.s3Endpoint,
		})
		if err != nil {
			return nil, err
		}
		store = s3Store
	} else {
		store = metadata.NewLocalStore(f.metaDir)
	}

	if f.redisAddr != "" {
		store = metadata.NewCache(store, redis.NewClient(&redis.Options{Addr: f.redisAddr}), 0)
	}
	return store, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}

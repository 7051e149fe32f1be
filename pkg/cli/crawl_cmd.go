package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nordstat/pxfetch/pkg/metadata"
)

func newCrawlCmd(flags *rootFlags) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "crawl <start-path>",
		Short: "Crawl the API navigation tree into the metadata store",
		Long:  "Walks the navigation tree below start-path (e.g. OV0104/v1/doris/sv/ssd) and saves every listing and table metadata document to the metadata store.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}
			store, err := flags.store()
			if err != nil {
				return err
			}

			crawler := metadata.NewCrawler(client, store, flags.limiter(), flags.retryConfig())
			if concurrency > 0 {
				crawler.Concurrency = concurrency
			}

			saved, err := crawler.Crawl(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("crawl failed after %d documents: %w", saved, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Crawled %d documents under %s\n", saved, args[0])
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "max simultaneous navigation fetches (0: default)")
	return cmd
}

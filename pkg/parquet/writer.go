// Package parquet writes a merged table stream to local parquet files,
// one file per emitted row batch.
package parquet

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/nordstat/pxfetch/pkg/fetch"
)

// WriteStream consumes a fetch stream and writes its batches under dir as
// `<base>-<i>.parquet`. It returns the files written and the total row
// count. The stream's error terminates the write with nothing emitted
// downstream of the failed batch; callers discard the files on error.
func WriteStream(ctx context.Context, dir, base string, stream *fetch.Stream) ([]string, int64, error) {
	schema, err := stream.Schema(ctx)
	if err != nil {
		return nil, 0, err
	}
	schemaJSON, err := parquetSchema(schema)
	if err != nil {
		return nil, 0, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, 0, fmt.Errorf("create output dir: %w", err)
	}

	var (
		files []string
		rows  int64
	)
	for i := 0; ; i++ {
		batch, err := stream.Next(ctx)
		if err != nil {
			return files, rows, err
		}
		if batch == nil {
			break
		}

		name := filepath.Join(dir, fmt.Sprintf("%s-%d.parquet", base, i))
		if err := writeBatch(name, schemaJSON, batch); err != nil {
			return files, rows, err
		}
		files = append(files, name)
		rows += int64(len(batch.Rows))
	}

	log.Debug().
		Str("base", base).
		Int("files", len(files)).
		Int64("rows", rows).
		Msg("Wrote parquet files")
	return files, rows, nil
}

// writeBatch writes one batch as one parquet file.
func writeBatch(name, schemaJSON string, batch *fetch.Batch) error {
	fw, err := local.NewLocalFileWriter(name)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}

	pw, err := writer.NewJSONWriter(schemaJSON, fw, 4)
	if err != nil {
		fw.Close()
		return fmt.Errorf("create parquet writer: %w", err)
	}

	for _, row := range batch.Rows {
		encoded, err := json.Marshal(row)
		if err != nil {
			fw.Close()
			return fmt.Errorf("encode row: %w", err)
		}
		if err := pw.Write(string(encoded)); err != nil {
			fw.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finalize parquet file: %w", err)
	}
	return fw.Close()
}

// parquetSchema renders a fetch schema as the parquet-go JSON schema
// string: strings become UTF8 byte arrays, integers INT64, floats DOUBLE,
// every column OPTIONAL since any cell can be the missing-data sentinel.
func parquetSchema(s fetch.Schema) (string, error) {
	type node struct {
		Tag    string `json:"Tag"`
		Fields []node `json:"Fields,omitempty"`
	}

	root := node{Tag: "name=parquet_go_root, repetitiontype=REQUIRED"}
	for _, f := range s.Fields {
		var tags []string
		switch f.Type {
		case fetch.TypeInt64:
			tags = append(tags, "type=INT64")
		case fetch.TypeString:
			tags = append(tags, "type=BYTE_ARRAY", "convertedtype=UTF8", "encoding=PLAIN")
		default:
			tags = append(tags, "type=DOUBLE")
		}
		tags = append(tags, "name="+f.Name, "repetitiontype=OPTIONAL")
		root.Fields = append(root.Fields, node{Tag: strings.Join(tags, ", ")})
	}

	b, err := json.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("encode parquet schema: %w", err)
	}
	return string(b), nil
}

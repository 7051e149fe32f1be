package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nordstat/pxfetch/pkg/pxweb"
)

// ListTables walks a store and calls fn for every stored table metadata
// document whose path contains match (empty match visits all). Navigation
// listings, stored as JSON arrays, are skipped. Returning an error from fn
// stops the listing.
func ListTables(ctx context.Context, store Store, match string, fn func(path string, info *pxweb.TableInfo) error) error {
	return store.Walk(ctx, func(path string) error {
		if match != "" && !strings.Contains(path, match) {
			return nil
		}

		doc, err := store.Load(ctx, path)
		if err != nil {
			return err
		}

		var listing []json.RawMessage
		if err := json.Unmarshal(doc, &listing); err == nil {
			// A navigation node, not a table.
			return nil
		}

		var info pxweb.TableInfo
		if err := json.Unmarshal(doc, &info); err != nil {
			return fmt.Errorf("decode table metadata %s: %w", path, err)
		}
		return fn(path, &info)
	})
}

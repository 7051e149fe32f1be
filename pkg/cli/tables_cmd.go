package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nordstat/pxfetch/pkg/metadata"
	"github.com/nordstat/pxfetch/pkg/pxweb"
)

func newTablesCmd(flags *rootFlags) *cobra.Command {
	var match string

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List crawled tables in the metadata store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := flags.store()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "PATH\tCELLS\tTITLE")

			return metadata.ListTables(cmd.Context(), store, match, func(path string, info *pxweb.TableInfo) error {
				cells := 1
				for _, v := range info.Variables {
					cells *= len(v.Values)
				}
				fmt.Fprintf(w, "%s\t%d\t%s\n", path, cells, info.Title)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&match, "match", "", "only list tables whose path contains this substring")
	return cmd
}

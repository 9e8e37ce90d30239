package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/gdivir/internal/ingest"
	"github.com/sells-group/gdivir/internal/metadata"
	"github.com/sells-group/gdivir/internal/model"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a raw division or census table as one year's snapshot",
	Long: "Reads a CSV, XLSX or zipped XLSX survey table, cleans it with the column layout " +
		"declared in the metadata file and replaces the stored snapshot of that year.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}
		ds, _ := cmd.Flags().GetString("dataset")
		dataset, err := model.ParseDataset(ds)
		if err != nil {
			return err
		}
		year, _ := cmd.Flags().GetInt("year")

		meta, err := metadata.Load(cfg.Data.MetadataPath)
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := ingest.NewImporter(meta, st).Import(ctx, dataset, year, args[0])
		if err != nil {
			return eris.Wrap(err, "import")
		}
		formatImportResult(os.Stdout, res)
		return nil
	},
}

func init() {
	importCmd.Flags().String("dataset", "", "dataset: divisions or census (required)")
	importCmd.Flags().Int("year", 0, "survey year of the table (required)")
	_ = importCmd.MarkFlagRequired("dataset")
	_ = importCmd.MarkFlagRequired("year")
	rootCmd.AddCommand(importCmd)
}

func formatImportResult(w io.Writer, res *ingest.Result) {
	_, _ = fmt.Fprintf(w, "%s %d from %s: %s rows read, %s saved\n",
		res.Dataset, res.Year, res.Source,
		humanize.Comma(int64(res.Stats.Read)), humanize.Comma(res.Saved))
	if res.Stats.MissingID > 0 || res.Stats.UnknownType > 0 {
		_, _ = fmt.Fprintf(w, "  dropped: %s without ID, %s with unknown type\n",
			humanize.Comma(int64(res.Stats.MissingID)), humanize.Comma(int64(res.Stats.UnknownType)))
	}
	if res.Stats.NonResidents > 0 {
		_, _ = fmt.Fprintf(w, "  non-resident rows: %s\n", humanize.Comma(int64(res.Stats.NonResidents)))
	}
}

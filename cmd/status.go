package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gdivir/internal/model"
	"github.com/sells-group/gdivir/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored snapshot years and the import log",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("status"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		years := make(map[model.Dataset][]int)
		for _, ds := range model.AllDatasets() {
			ys, err := st.Years(ctx, ds)
			if err != nil {
				return eris.Wrap(err, "status")
			}
			years[ds] = ys
		}
		imports, err := st.ListImports(ctx, "")
		if err != nil {
			return eris.Wrap(err, "status")
		}
		if len(imports) == 0 {
			zap.L().Info("no imports found, run 'import' to load survey tables")
		}

		formatStatus(os.Stdout, years, imports, time.Now())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func formatStatus(out io.Writer, years map[model.Dataset][]int, imports []store.ImportRecord, now time.Time) {
	for _, ds := range model.AllDatasets() {
		_, _ = fmt.Fprintf(out, "%s: %d years %v\n", ds, len(years[ds]), years[ds])
	}
	if len(imports) == 0 {
		return
	}

	_, _ = fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATASET\tYEAR\tSOURCE\tROWS\tIMPORTED")
	_, _ = fmt.Fprintln(w, "-------\t----\t------\t----\t--------")
	for _, rec := range imports {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
			rec.Dataset, rec.Year, rec.Source,
			humanize.Comma(rec.Rows),
			humanize.RelTime(rec.ImportedAt, now, "ago", "from now"),
		)
	}
	_ = w.Flush()
}

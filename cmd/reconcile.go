package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/gdivir/internal/export"
	"github.com/sells-group/gdivir/internal/ingest"
	"github.com/sells-group/gdivir/internal/matchmaker"
	"github.com/sells-group/gdivir/internal/model"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Map an external dataset's regional codes onto internal IDs",
	Long: "Reads the external dataset's code declarations from the declarations directory, " +
		"matches each declared year to a standard internal era and prints the resolved code per year.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		ext, err := externalFlag(cmd)
		if err != nil {
			return err
		}
		level, err := levelFlag(cmd)
		if err != nil {
			return err
		}

		e, err := initEnv(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer e.Close() //nolint:errcheck

		decls, err := ingest.LoadDeclarationSet(ctx, cfg.Data.DeclarationsDir, ext, level)
		if err != nil {
			return err
		}
		rec, err := e.reconciler().Reconcile(ctx, ext, level, decls)
		if err != nil {
			return eris.Wrap(err, "reconcile")
		}

		if yamlOut, _ := cmd.Flags().GetBool("yaml"); yamlOut {
			return export.WriteExternalMapping(os.Stdout, rec)
		}
		formatReconciliation(os.Stdout, rec)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().String("external", string(model.ExternalHBSIR), "external dataset")
	reconcileCmd.Flags().String("level", "province", "level: province or county")
	reconcileCmd.Flags().Bool("yaml", false, "print the mapping as YAML")
	rootCmd.AddCommand(reconcileCmd)
}

func externalFlag(cmd *cobra.Command) (model.ExternalDataset, error) {
	s, _ := cmd.Flags().GetString("external")
	return model.ParseExternalDataset(s)
}

func formatReconciliation(out io.Writer, rec *matchmaker.Reconciliation) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "%s %s\n\n", rec.External, rec.Level)
	_, _ = fmt.Fprintln(w, "YEAR\tSTANDARD ERA")
	for _, y := range slices.Sorted(maps.Keys(rec.Standards)) {
		_, _ = fmt.Fprintf(w, "%d\t%d\n", y, rec.Standards[y])
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "CODE\tID")
	for _, code := range slices.Sorted(maps.Keys(rec.Codes)) {
		res := rec.Codes[code]
		if res.Stable() {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", code, res.Code)
			continue
		}
		for _, y := range slices.Sorted(maps.Keys(res.ByYear)) {
			_, _ = fmt.Fprintf(w, "%s\t%s (%d)\n", code, res.ByYear[y], y)
		}
	}
	_ = w.Flush()
}

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gdivir/internal/export"
	"github.com/sells-group/gdivir/internal/ingest"
	"github.com/sells-group/gdivir/internal/model"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write mapping result files",
	Long: "Writes the yearly county changes and the chained county mapping table to the results directory, " +
		"plus the province and county mappings of every external dataset with declarations.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx, "export")
		if err != nil {
			return err
		}
		defer e.Close() //nolint:errcheck

		ex := export.New(e.resolver, export.Options{
			Dir:       cfg.Data.ResultsDir,
			SkipYears: cfg.Export.SkipYears,
			Workers:   cfg.Matching.Workers,
		})

		written, err := ex.WriteCountyMappings(ctx)
		if err != nil {
			return eris.Wrap(err, "export county mappings")
		}

		if skip, _ := cmd.Flags().GetBool("skip-external"); !skip {
			reconciler := e.reconciler()
			for _, ext := range model.AllExternalDatasets() {
				for _, level := range []model.Level{model.LevelProvince, model.LevelCounty} {
					ok, err := hasDeclarations(ext, level)
					if err != nil {
						return err
					}
					if !ok {
						zap.L().Info("no declarations, skipping",
							zap.String("external", string(ext)), zap.Stringer("level", level))
						continue
					}
					decls, err := ingest.LoadDeclarationSet(ctx, cfg.Data.DeclarationsDir, ext, level)
					if err != nil {
						return err
					}
					rec, err := reconciler.Reconcile(ctx, ext, level, decls)
					if err != nil {
						return eris.Wrapf(err, "export %s %s mapping", ext, level)
					}
					path, err := ex.WriteExternal(rec)
					if err != nil {
						return err
					}
					written = append(written, path)
				}
			}
		}

		for _, p := range written {
			fmt.Println(p)
		}
		return nil
	},
}

// hasDeclarations reports whether the declaration files of ext at level
// exist.
func hasDeclarations(ext model.ExternalDataset, level model.Level) (bool, error) {
	levels := []model.Level{model.LevelProvince}
	if level == model.LevelCounty {
		levels = append(levels, model.LevelCounty)
	}
	for _, l := range levels {
		path, err := ingest.DeclarationPath(cfg.Data.DeclarationsDir, ext, l)
		if err != nil {
			return false, err
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return false, nil
		} else if err != nil {
			return false, eris.Wrapf(err, "stat %s", path)
		}
	}
	return true, nil
}

func init() {
	exportCmd.Flags().Bool("skip-external", false, "only write the county mapping files")
	rootCmd.AddCommand(exportCmd)
}

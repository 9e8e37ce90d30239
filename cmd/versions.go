package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gdivir/internal/model"
	"github.com/sells-group/gdivir/internal/version"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Track the name sets provinces and counties carried over time",
	Long:  "Commands for building version-era tables and resolving region names to IDs through them.",
}

// -- versions build --

var versionsBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build and store version-era tables",
	Long: "Builds the province table, or with --level county the county table of --parent. " +
		"Without --parent, county tables are built for every province.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("versions"); err != nil {
			return err
		}
		level, err := levelFlag(cmd)
		if err != nil {
			return err
		}
		parent, _ := cmd.Flags().GetString("parent")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		tracker := version.NewTracker(st, st)

		switch level {
		case model.LevelProvince:
			table, err := tracker.BuildProvinces(ctx)
			if err != nil {
				return eris.Wrap(err, "versions build")
			}
			formatVersionTable(os.Stdout, table)
		case model.LevelCounty:
			if parent != "" {
				table, err := tracker.BuildCounties(ctx, parent)
				if err != nil {
					return eris.Wrap(err, "versions build")
				}
				formatVersionTable(os.Stdout, table)
				return nil
			}
			parents, err := tracker.BuildAllCounties(ctx)
			if err != nil {
				return eris.Wrap(err, "versions build")
			}
			zap.L().Info("county version tables built", zap.Strings("provinces", parents))
		default:
			return eris.Errorf("versions build: unsupported level %s", level)
		}
		return nil
	},
}

// -- versions extract --

var versionsExtractCmd = &cobra.Command{
	Use:   "extract [name...]",
	Short: "Resolve the complete name list of one era to region IDs",
	Long: "Names come from the arguments, or one per line from --file. " +
		"The era is chosen by the number of names, so the list must be complete.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("versions"); err != nil {
			return err
		}
		level, err := levelFlag(cmd)
		if err != nil {
			return err
		}
		parent, _ := cmd.Flags().GetString("parent")

		names := args
		if path, _ := cmd.Flags().GetString("file"); path != "" {
			f, err := os.Open(path)
			if err != nil {
				return eris.Wrapf(err, "versions extract: open %s", path)
			}
			defer f.Close() //nolint:errcheck
			if names, err = readNames(f); err != nil {
				return err
			}
		}
		if len(names) == 0 {
			return eris.New("versions extract: no names given")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ids, err := version.NewTracker(st, st).ExtractCodes(ctx, names, level, parent)
		if err != nil {
			return eris.Wrap(err, "versions extract")
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for i, name := range names {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", name, ids[i])
		}
		return w.Flush()
	},
}

func init() {
	for _, c := range []*cobra.Command{versionsBuildCmd, versionsExtractCmd} {
		c.Flags().String("level", "province", "level: province or county")
		c.Flags().String("parent", "", "province code of a county table")
		versionsCmd.AddCommand(c)
	}
	versionsExtractCmd.Flags().String("file", "", "file with one name per line")
	rootCmd.AddCommand(versionsCmd)
}

// readNames returns the non-blank lines of r.
func readNames(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			names = append(names, line)
		}
	}
	return names, eris.Wrap(sc.Err(), "versions extract: read names")
}

func formatVersionTable(out io.Writer, table *version.Table) {
	counts := table.NameCounts()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ERA\tNAMES\tMISLABELED")
	for _, era := range table.Eras {
		mis := ""
		if slices.Contains(table.Mislabeled, era) {
			mis = "yes"
		}
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\n", era, counts[era], mis)
	}
	_ = w.Flush()
}

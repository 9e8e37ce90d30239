package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/gdivir/internal/export"
	"github.com/sells-group/gdivir/internal/matchmaker"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Compare a division survey with its predecessor",
	Long:  "Commands for transformation tables and the many-to-one mappings derived from them.",
}

// -- match table --

var matchTableCmd = &cobra.Command{
	Use:   "table",
	Short: "Print the transformation table between a year and the previous division year",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx, "match")
		if err != nil {
			return err
		}
		defer e.Close() //nolint:errcheck

		level, err := levelFlag(cmd)
		if err != nil {
			return err
		}
		year, _ := cmd.Flags().GetInt("year")

		t, err := e.resolver.Matcher().TransformationTable(ctx, year, level)
		if err != nil {
			return eris.Wrap(err, "match table")
		}
		formatTable(os.Stdout, t)
		return nil
	},
}

// -- match mapping --

var matchMappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Print the many-to-one mapping of a year onto the previous division year as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx, "match")
		if err != nil {
			return err
		}
		defer e.Close() //nolint:errcheck

		level, err := levelFlag(cmd)
		if err != nil {
			return err
		}
		year, _ := cmd.Flags().GetInt("year")

		m, err := e.resolver.ManyToOne(ctx, year, level)
		if err != nil {
			return eris.Wrap(err, "match mapping")
		}
		return export.WriteMapping(os.Stdout, m)
	},
}

// -- match doc --

var matchDocCmd = &cobra.Command{
	Use:   "doc",
	Short: "Print the annotated transformation table as CSV",
	Long: "Prints every (new, old) code pair with its shares, the selected predecessor and ties. " +
		"With --conflicts, lists the splits and merges that keep the mapping from being one-to-one.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx, "match")
		if err != nil {
			return err
		}
		defer e.Close() //nolint:errcheck

		level, err := levelFlag(cmd)
		if err != nil {
			return err
		}
		year, _ := cmd.Flags().GetInt("year")

		doc, err := e.resolver.OneToOneDocumentation(ctx, year, level)
		if err != nil {
			return eris.Wrap(err, "match doc")
		}
		if conflicts, _ := cmd.Flags().GetBool("conflicts"); conflicts {
			formatConflicts(os.Stdout, doc.OneToOneConflicts())
			return nil
		}
		return export.WriteDocumentation(os.Stdout, doc)
	},
}

func init() {
	for _, c := range []*cobra.Command{matchTableCmd, matchMappingCmd, matchDocCmd} {
		c.Flags().Int("year", 0, "division survey year (required)")
		c.Flags().String("level", "county", "level: province, county, district or rural_district")
		_ = c.MarkFlagRequired("year")
		matchCmd.AddCommand(c)
	}
	matchDocCmd.Flags().Bool("conflicts", false, "list splits and merges instead of the table")
	rootCmd.AddCommand(matchCmd)
}

func formatTable(out io.Writer, t *matchmaker.Table) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "%s %d <- %d\n\n", t.Level, t.Year, t.PreviousYear)
	_, _ = fmt.Fprintln(w, "NEW\tOLD\tREGIONS\tPOPULATION\tSHARE\tOLD SHARE")
	_, _ = fmt.Fprintln(w, "---\t---\t-------\t----------\t-----\t---------")
	for _, r := range t.Rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f%%\t%.2f%%\n",
			r.NewCode, r.OldCode,
			humanize.Comma(r.SharedRegionCount),
			humanize.Comma(r.SharedPopulation),
			r.PopulationShare, r.OldPopulationShare,
		)
	}
	_ = w.Flush()

	if len(t.Unmatched) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "\n%d unmatched units\n", len(t.Unmatched))
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SIDE\tKIND\tKEY\tCODE\tPOPULATION")
	for _, u := range t.Unmatched {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			u.Side, u.Kind, u.Key, u.Code, humanize.Comma(u.Population))
	}
	_ = w.Flush()
}

func formatConflicts(out io.Writer, conflicts []matchmaker.Conflict) {
	if len(conflicts) == 0 {
		_, _ = fmt.Fprintln(out, "mapping is one-to-one")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KIND\tCODE\tOTHERS")
	for _, c := range conflicts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%v\n", c.Kind, c.Code, c.Others)
	}
	_ = w.Flush()
}

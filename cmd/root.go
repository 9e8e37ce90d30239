package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gdivir/internal/config"
	"github.com/sells-group/gdivir/internal/matchmaker"
	"github.com/sells-group/gdivir/internal/metadata"
	"github.com/sells-group/gdivir/internal/model"
	"github.com/sells-group/gdivir/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "gdivir",
	Short: "Cross-temporal matching of Iranian administrative regions",
	Long: "Imports division and census surveys, measures how provinces and counties changed between surveys, " +
		"and maps external regional codes onto the internal divisions.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "gdivir.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// env bundles what the matching commands share.
type env struct {
	store    store.Store
	meta     *metadata.Metadata
	resolver *matchmaker.Resolver
}

func (e *env) Close() error { return e.store.Close() }

// initEnv validates cfg for mode, then opens the store and the metadata
// and builds the resolver.
func initEnv(ctx context.Context, mode string) (*env, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	meta, err := metadata.Load(cfg.Data.MetadataPath)
	if err != nil {
		return nil, err
	}
	policy, err := matchmaker.ParseTieBreak(cfg.Matching.TieBreak)
	if err != nil {
		return nil, err
	}
	divisions, err := meta.Timeline(model.DatasetGeographicalDivisions)
	if err != nil {
		return nil, err
	}
	census, err := meta.Timeline(model.DatasetCensusResults)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	matcher := matchmaker.NewMatcher(matchmaker.NewExtractor(st, census), divisions)
	return &env{
		store:    st,
		meta:     meta,
		resolver: matchmaker.NewResolver(matcher, policy),
	}, nil
}

func (e *env) reconciler() *matchmaker.Reconciler {
	return matchmaker.NewReconciler(e.resolver, e.store, e.meta, matchmaker.ReconcileOptions{
		ProvinceMinYear: cfg.Reconcile.ProvinceMinYear,
		CountyMinYear:   cfg.Reconcile.CountyMinYear,
	})
}

// levelFlag parses the --level flag of cmd.
func levelFlag(cmd *cobra.Command) (model.Level, error) {
	s, _ := cmd.Flags().GetString("level")
	return model.ParseLevel(s)
}

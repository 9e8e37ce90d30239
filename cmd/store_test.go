package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gdivir/internal/config"
)

func TestInitStore_SQLite(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
		},
	}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	years, err := st.Years(context.Background(), "geographical_divisions")
	require.NoError(t, err)
	assert.Empty(t, years, "store is migrated and empty")
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "mysql"},
	}

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitStore_PostgresBadURL(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "postgres", DatabaseURL: "://not a url"},
	}

	_, err := initStore(context.Background())
	assert.Error(t, err)
}

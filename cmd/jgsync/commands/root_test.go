package commands

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Tinuki562/junior.guru/internal/cache"
	"github.com/Tinuki562/junior.guru/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

func TestFailedCommandReleasesCache(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	t.Setenv("JG_CACHE_DIR", cacheDir)
	t.Setenv("JG_DATABASE", filepath.Join(dir, "juniorguru.db"))
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")
	t.Cleanup(func() { statsDate = "" })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	err := execute(ctx, []string{
		"subscriptions", "stats",
		"--config", filepath.Join(dir, "missing.json5"),
		"--date", "yesterday",
	})
	require.ErrorContains(t, err, "invalid date")
	require.Nil(t, current.disk)
	require.Nil(t, current.shutdown)

	// badger locks its directory until it is closed
	disk, err := cache.OpenDisk(cacheDir, telemetry.NewRecorder())
	require.NoError(t, err)
	require.NoError(t, disk.Close())
}

package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Tinuki562/junior.guru/internal/cache"
	"github.com/Tinuki562/junior.guru/internal/components/configutil"
	"github.com/Tinuki562/junior.guru/internal/components/sqliteutil"
	"github.com/Tinuki562/junior.guru/internal/components/telemetry"
	"github.com/Tinuki562/junior.guru/internal/db"
	"github.com/Tinuki562/junior.guru/internal/memberful"
	"github.com/Tinuki562/junior.guru/internal/subscriptions"

	"github.com/spf13/cobra"
)

var (
	configPath string
	clearCache bool
	verbose    bool
	dumpHttp   string
)

// state is everything the commands share, it is set up before any of them runs.
type state struct {
	cfg      Config
	tel      telemetry.API
	store    cache.Store
	disk     *cache.Disk
	shutdown func(context.Context) error
}

var current state

var rootCmd = &cobra.Command{
	Use:   "jgsync",
	Short: "jgsync syncs junior.guru club data from Memberful and computes membership statistics.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initSlog(verbose)
		// flags have been parsed by now, errors past this point are not usage errors
		cmd.SilenceUsage = true

		cfg, err := configutil.Load[Config](configPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if cfg.Database == "" {
			cfg.Database = defaultDatabase
		}
		current.cfg = cfg
		current.tel = telemetry.NewSlogAPI(slog.Default())

		if dumpHttp != "" {
			output, err := telemetry.NewFilesystemOutput(dumpHttp)
			if err != nil {
				return fmt.Errorf("prepare http dump: %w", err)
			}
			memberful.SetHttpDumpOutput(output)
		}

		current.shutdown, err = telemetry.SetupTracing(cmd.Context(), "jgsync", cfg.Otlp)
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}

		if cfg.CacheDir != "" {
			current.disk, err = cache.OpenDisk(cfg.CacheDir, current.tel)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			current.store = current.disk
		} else {
			current.store = cache.NewMemory(1024)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "jgsync.json5", "The config file, overrides are read from <name>.local.json5.")
	rootCmd.PersistentFlags().BoolVar(&clearCache, "clear-cache", false, "Evict cached Memberful responses before fetching.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug messages.")
	rootCmd.PersistentFlags().StringVar(&dumpHttp, "dump-http", "", "A directory to write every http exchange with Memberful to.")
}

// release closes what PersistentPreRunE opened. cobra skips post run hooks
// when a command fails, so this runs after every execution instead.
func (s *state) release() error {
	var errs []error
	if s.disk != nil {
		errs = append(errs, s.disk.Close())
		s.disk = nil
	}
	if s.shutdown != nil {
		errs = append(errs, s.shutdown(context.Background()))
		s.shutdown = nil
	}
	s.store = nil
	return errors.Join(errs...)
}

func execute(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	releaseErr := current.release()
	if releaseErr != nil {
		slog.Warn("failed to release resources", "err", releaseErr)
	}
	return err
}

func ExecuteContext(ctx context.Context) {
	err := execute(ctx, os.Args[1:])
	if err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func newAPI() (*memberful.API, error) {
	return memberful.NewAPI(memberful.APIOptions{
		BaseURL:    current.cfg.Memberful.BaseURL,
		APIKey:     current.cfg.Memberful.APIKey,
		Cache:      current.store,
		ClearCache: clearCache,
		Tel:        current.tel,
	})
}

func newCSV() (*memberful.CSV, error) {
	return memberful.NewCSV(memberful.CSVOptions{
		BaseURL:    current.cfg.Memberful.BaseURL,
		Email:      current.cfg.Memberful.Email,
		Password:   current.cfg.Memberful.Password,
		Cache:      current.store,
		ClearCache: clearCache,
		Tel:        current.tel,
	})
}

func openLedger() (*subscriptions.Ledger, *sql.DB, error) {
	database, err := sqliteutil.OpenDB(db.Schema, current.cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return subscriptions.NewLedger(database, current.tel), database, nil
}

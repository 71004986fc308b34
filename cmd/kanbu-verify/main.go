// kanbu-verify checks the integrity of stored backup artifacts: it
// downloads, decrypts and re-hashes them against the checksums
// recorded at backup time.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kanbu/backup-integrity/internal/audit"
	"github.com/kanbu/backup-integrity/internal/cache"
	"github.com/kanbu/backup-integrity/internal/config"
	"github.com/kanbu/backup-integrity/internal/crypto"
	"github.com/kanbu/backup-integrity/internal/metrics"
	"github.com/kanbu/backup-integrity/internal/storage"
	"github.com/kanbu/backup-integrity/internal/store"
	"github.com/kanbu/backup-integrity/internal/tracing"
	"github.com/kanbu/backup-integrity/internal/verify"
)

var (
	version = "dev"
	commit  = "unknown"
)

var configPath string

// app holds everything a subcommand needs, wired once before the
// command runs and torn down after.
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	store    store.Store
	verifier *verify.Verifier
	shutdown []func()
}

func newApp() (*app, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	logger.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
	}).Debug("Starting backup verifier")

	a := &app{cfg: cfg, logger: logger}

	if cfg.Tracing.Enabled {
		stop, err := tracing.Init(context.Background(), tracing.Config{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: cfg.Tracing.ServiceVersion,
			Exporter:       cfg.Tracing.Exporter,
			OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
			SamplingRatio:  cfg.Tracing.SamplingRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		a.shutdown = append(a.shutdown, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := stop(ctx); err != nil {
				logger.WithError(err).Warn("Failed to flush traces")
			}
		})
	}

	st, err := store.Open(store.Options{
		Path:     cfg.Store.Path,
		InMemory: cfg.Store.InMemory,
		Logger:   logger,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.store = st
	a.shutdown = append(a.shutdown, func() {
		if err := st.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close metadata store")
		}
	})

	backend, err := newBackend(cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	engine := crypto.New(cfg.Encryption.Key)
	if !engine.IsEnabled() {
		logger.Warn("No encryption key configured, encrypted backups cannot be verified")
	}

	opts := verify.Options{
		ScratchDir: cfg.ScratchDir,
		Logger:     logger,
		Metrics:    metrics.New(),
	}
	if cfg.Audit.Enabled {
		opts.Trail = audit.NewTrail(cfg.Audit.MaxEvents)
	}
	if cfg.Cache.Enabled {
		opts.Listings = cache.NewListingCache(cfg.Cache.TTL)
	}
	a.verifier = verify.New(st, backend, engine, opts)

	if cfg.Encryption.KeyFile != "" {
		watcher, err := config.NewKeyWatcher(cfg.Encryption.KeyFile, logger, func(secret string) {
			a.verifier.SetEngine(crypto.New(secret))
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to watch encryption key file: %w", err)
		}
		a.shutdown = append(a.shutdown, watcher.Stop)
	}

	if cfg.MetricsAddr != "" {
		a.serveMetrics()
	}

	return a, nil
}

func newBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return storage.NewS3(storage.S3Config{
			Endpoint:     cfg.Storage.Endpoint,
			Region:       cfg.Storage.Region,
			AccessKey:    cfg.Storage.AccessKey,
			SecretKey:    cfg.Storage.SecretKey,
			Bucket:       cfg.Storage.Bucket,
			UsePathStyle: cfg.Storage.UsePathStyle,
		})
	case "gcs":
		return storage.NewGCS(context.Background(), storage.GCSConfig{
			Bucket: cfg.Storage.Bucket,
		})
	case "disk":
		return storage.NewDisk(cfg.Storage.Root)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// serveMetrics exposes /metrics and /healthz on the admin address.
func (a *app) serveMetrics() {
	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Warn("Metrics listener stopped")
		}
	}()
	a.shutdown = append(a.shutdown, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
}

func (a *app) close() {
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		a.shutdown[i]()
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// run wraps a subcommand body with app setup and teardown.
func run(body func(ctx context.Context, a *app, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return body(cmd.Context(), a, args)
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "kanbu-verify",
		Short:         "Verify the integrity of stored backup artifacts",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	verifyCmd := &cobra.Command{
		Use:   "verify <filename>",
		Short: "Fully verify a single backup artifact",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			result := a.verifier.VerifyBackup(ctx, args[0])
			if err := printJSON(result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("verification failed: %s", result.Message)
			}
			return nil
		}),
	}

	verifyAllCmd := &cobra.Command{
		Use:   "verify-all",
		Short: "Verify every pending backup artifact",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			batch, err := a.verifier.VerifyAllPending(ctx)
			if err != nil {
				return err
			}
			if err := printJSON(batch); err != nil {
				return err
			}
			if batch.Failed > 0 {
				return fmt.Errorf("%d of %d backups failed verification", batch.Failed, batch.Total)
			}
			return nil
		}),
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Report verification state counts across all completed backups",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			stats, err := a.verifier.Stats(ctx)
			if err != nil {
				return err
			}
			return printJSON(stats)
		}),
	}

	quickCheckCmd := &cobra.Command{
		Use:   "quick-check <filename>",
		Short: "Probe artifact presence and size without downloading",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			result := a.verifier.QuickCheck(ctx, args[0])
			if err := printJSON(result); err != nil {
				return err
			}
			if !result.Exists || !result.SizeMatch {
				return fmt.Errorf("quick check failed for %s", args[0])
			}
			return nil
		}),
	}

	rootCmd.AddCommand(verifyCmd, verifyAllCmd, statsCmd, quickCheckCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

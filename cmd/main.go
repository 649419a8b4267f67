package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"medtrack/internal/alert"
	"medtrack/internal/config"
	"medtrack/internal/handlers"
	"medtrack/internal/logger"
	"medtrack/internal/reminder"
	"medtrack/internal/scheduler"
	"medtrack/internal/storage"
	"medtrack/internal/timer"
	"medtrack/internal/tracker"
)

var (
	configPath  string
	storageFlag string
	addrFlag    string

	rootCmd = &cobra.Command{
		Use:   "medtrack",
		Short: "Medicine reminder scheduler with stock tracking",
		Long: `medtrack fires medicine reminders at their scheduled minute, tracks pill
stock as doses are taken and falls back to alternative medicines when a
primary runs out.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	validateConfigCmd = &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the configuration, then exit",
		RunE:  runValidateConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.Flags().StringVar(&storageFlag, "storage", "",
		"storage backend: memory, file, sqlite, mongo, redis, badger or postgres (overrides config)")
	rootCmd.Flags().StringVar(&addrFlag, "addr", "", "HTTP listen address (overrides config)")

	rootCmd.AddCommand(validateConfigCmd)
}

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if storageFlag != "" {
		cfg.Storage.Backend = storageFlag
	}
	if addrFlag != "" {
		cfg.Server.Addr = addrFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runValidateConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "config OK (storage=%s, interval=%s, timer=%q)\n",
		cfg.Storage.Backend, cfg.Scheduler.Interval, cfg.Timer.BaseURL)
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level, _ := logger.ParseLevel(cfg.Log.Level)
	log, closer, err := logger.New(logger.Config{Level: level, OutputPath: cfg.Log.Output, Format: cfg.Log.Format})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closer.Close()

	backend, err := openStorage(cfg.Storage, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := reminder.NewStore(backend, cfg.Storage.Key, log)
	store.Load(ctx)

	dispatcher := newDispatcher(cfg.Alert, log)
	defer dispatcher.Close()

	var timerService timer.Service = timer.Disabled{}
	if cfg.Timer.BaseURL != "" {
		timerService = timer.NewClient(cfg.Timer.BaseURL, cfg.Timer.Timeout, log)
		log.Info("reminder timer service configured", "base_url", cfg.Timer.BaseURL)
	} else {
		log.Warn("reminder timer service disabled, guardian escalation is off")
	}

	svc := tracker.New(store, timerService, dispatcher, log)
	sched := scheduler.New(store, dispatcher, cfg.Scheduler.Interval, log)
	api := handlers.NewAPI(svc, log)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(cfg.Server.StaticDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sched.Start(gCtx)
		<-gCtx.Done()
		sched.Stop()
		return nil
	})

	g.Go(func() error {
		var err error
		if cfg.Server.TLSCert != "" {
			log.Info("starting medtrack with HTTPS", "addr", srv.Addr, "static_dir", cfg.Server.StaticDir)
			err = srv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			log.Info("starting medtrack with HTTP", "addr", srv.Addr, "static_dir", cfg.Server.StaticDir)
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("could not start HTTP server: %w", err)
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("medtrack stopped")
	return err
}

func openStorage(cfg config.StorageConfig, log *slog.Logger) (storage.Snapshots, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		log.Info("using memory storage")
		return storage.NewMemoryStorage(), nil
	case config.BackendFile:
		log.Info("using file storage", "dir", cfg.File.Dir)
		return storage.NewFileStorage(cfg.File.Dir)
	case config.BackendSQLite:
		log.Info("using SQLite storage", "path", cfg.SQLite.Path)
		return storage.NewSQLiteStorage(cfg.SQLite.Path)
	case config.BackendMongo:
		log.Info("using MongoDB storage", "database", cfg.Mongo.Database)
		return storage.NewMongoStorage(cfg.Mongo.URI, cfg.Mongo.Database)
	case config.BackendRedis:
		log.Info("using Redis storage", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		return storage.NewRedisStorage(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	case config.BackendBadger:
		log.Info("using Badger storage", "path", cfg.Badger.Path)
		return storage.NewBadgerStorage(cfg.Badger.Path)
	case config.BackendPostgres:
		log.Info("using PostgreSQL storage")
		return storage.NewPostgresStorage(cfg.Postgres.DSN)
	default:
		return nil, fmt.Errorf("invalid storage type: %s", cfg.Backend)
	}
}

func newDispatcher(cfg config.AlertConfig, log *slog.Logger) *alert.Dispatcher {
	opts := []alert.Option{
		alert.WithLogger(log),
		alert.WithRepeatDelay(cfg.RepeatDelay),
		alert.WithNotifyTimeout(cfg.Telegram.Timeout),
		alert.WithSpeaker(alert.NewCommandSpeaker(cfg.Speech.Command), alert.Voice{
			Rate:   cfg.Voice.Rate,
			Pitch:  cfg.Voice.Pitch,
			Volume: cfg.Voice.Volume,
		}),
	}

	telegram, permission := alert.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Telegram.Timeout, log)
	// Keep the interface nil rather than holding a nil *TelegramNotifier.
	var notifier alert.Notifier
	if telegram != nil {
		notifier = telegram
	}
	opts = append(opts, alert.WithNotifier(notifier, permission))

	if cfg.Audio.File != "" {
		opts = append(opts, alert.WithAudioCue(alert.NewCommandAudio(cfg.Audio.Player, cfg.Audio.File)))
	}

	d := alert.NewDispatcher(opts...)
	log.Info("alert dispatcher ready", "notification_permission", d.Permission(), "repeat_delay", cfg.RepeatDelay)
	return d
}

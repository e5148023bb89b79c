package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wp-user-migration/internal/config"
	"wp-user-migration/internal/db"
	apihttp "wp-user-migration/internal/http"
	"wp-user-migration/internal/logging"
	"wp-user-migration/internal/media"
	"wp-user-migration/internal/repository"
	"wp-user-migration/internal/service"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		limit       int
		chunkSize   int
		since       string
		workers     int
		failFast    bool
		refreshMeta bool
	)

	cmd := &cobra.Command{
		Use:           "migrate-users",
		Short:         "Migrate apit users into WordPress users and usermeta",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
				log.Printf("warning: loading .env: %v", err)
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			flags := cmd.Flags()
			if flags.Changed("limit") {
				cfg.Limit = limit
			}
			if flags.Changed("chunk-size") {
				cfg.ChunkSize = chunkSize
			}
			if flags.Changed("since") {
				cfg.Since = since
			}
			if flags.Changed("workers") {
				cfg.Workers = workers
			}
			if flags.Changed("fail-fast") {
				cfg.FailFast = failFast
			}
			if flags.Changed("refresh-meta") {
				cfg.RefreshMeta = refreshMeta
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&limit, "limit", 100, "max users to process")
	flags.IntVar(&chunkSize, "chunk-size", 10, "users per page (capped to limit)")
	flags.StringVar(&since, "since", "1970-01-01 0:00", "only users with last login >= this date")
	flags.IntVar(&workers, "workers", service.DefaultWorkers, "concurrent workers per page")
	flags.BoolVar(&failFast, "fail-fast", false, "stop after the page where the first user fails")
	flags.BoolVar(&refreshMeta, "refresh-meta", false, "rewrite derived usermeta for existing users")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, closeLog, err := logging.New(logging.Config{
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		File:        cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	sinceTime, err := cfg.SinceTime()
	if err != nil {
		return err
	}

	legacyPool, err := db.NewPool(ctx, cfg.LegacyDatabaseURL, int32(cfg.Workers+1))
	if err != nil {
		logger.Error("legacy db connect", zap.Error(err))
		return err
	}
	defer legacyPool.Close()
	wpPool, err := db.NewPool(ctx, cfg.WPDatabaseURL, int32(cfg.Workers))
	if err != nil {
		logger.Error("wordpress db connect", zap.Error(err))
		return err
	}
	defer wpPool.Close()

	if err := db.Ping(ctx, legacyPool); err != nil {
		logger.Error("legacy db ping", zap.Error(err))
		return err
	}
	if err := db.Ping(ctx, wpPool); err != nil {
		logger.Error("wordpress db ping", zap.Error(err))
		return err
	}

	importer := media.NewDisabledImporter()
	if cfg.WPBaseURL != "" {
		importer = media.NewWPRESTClient(cfg.WPBaseURL, cfg.WPUsername, cfg.WPAppPassword, logger)
	} else {
		logger.Warn("WP_BASE_URL not configured, avatars will not be imported")
	}

	tracker := service.NewProgressTracker(runID)
	sinks := service.MultiProgress{tracker, service.NewBarProgress(os.Stderr)}

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, progress mirror disabled", zap.Error(err))
		} else {
			sinks = append(sinks, service.NewRedisProgress(redisClient, runID, logger))
		}
		cancel()
	}

	if cfg.StatusAddr != "" {
		status := apihttp.NewStatusServer(logger, cfg.StatusAddr, tracker)
		status.Start()
		defer func() {
			if err := status.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("status server shutdown", zap.Error(err))
			}
		}()
	}

	sessions := repository.NewPgSessionFactory(legacyPool, wpPool, cfg.WPTablePrefix)
	migrator := service.NewUserMigrator(logger, sessions, importer, cfg.RefreshMeta)
	userImporter := service.NewUserImporter(logger, repository.NewPgLegacyUserRepository(legacyPool), migrator, sinks, runID)

	summary, err := userImporter.ImportUsers(ctx, service.ImportOptions{
		Limit:     cfg.Limit,
		ChunkSize: cfg.ChunkSize,
		Since:     sinceTime,
		Workers:   cfg.Workers,
		FailFast:  cfg.FailFast,
	})
	printSummary(summary)
	if err != nil {
		logger.Error("import aborted", zap.Error(err))
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d users failed, see %s", summary.Failed, summary.Processed, cfg.LogFile)
	}
	return nil
}

func printSummary(s service.Summary) {
	fmt.Fprintf(os.Stderr, "\nrun %s: processed %d/%d (created %d, updated %d, unchanged %d, not found %d, failed %d)\n",
		s.RunID, s.Processed, s.Total, s.Created, s.Updated, s.Unchanged, s.NotFound, s.Failed)
	for _, f := range s.Failures {
		fmt.Fprintf(os.Stderr, "  legacy user %d: %s\n", f.LegacyID, f.Reason)
	}
}

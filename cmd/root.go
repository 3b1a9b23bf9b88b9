package cmd

import (
	"context"
	"time"

	coreconfig "github.com/storylinehq/publisher/core/config"
	coreDB "github.com/storylinehq/publisher/core/database"
	domainAccount "github.com/storylinehq/publisher/domains/account"
	domainContent "github.com/storylinehq/publisher/domains/content"
	domainScheduler "github.com/storylinehq/publisher/domains/scheduler"
	"github.com/storylinehq/publisher/infrastructure/media"
	"github.com/storylinehq/publisher/platforms"
	"github.com/storylinehq/publisher/platforms/facebook"
	"github.com/storylinehq/publisher/platforms/instagram"
	"github.com/storylinehq/publisher/platforms/tiktok"
	"github.com/storylinehq/publisher/pkg/pubworker"
	"github.com/storylinehq/publisher/pkg/utils"
	"github.com/storylinehq/publisher/repository"
	"github.com/storylinehq/publisher/usecase"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	contentRepo domainContent.IContentRepository
	accountRepo domainAccount.IAccountRepository

	registry       *platforms.Registry
	publishPool    *pubworker.Pool
	mediaGenerator domainContent.IMediaGenerator

	schedulerUsecase domainScheduler.ISchedulerUsecase
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "publisher",
	Short: "Scheduled publication orchestrator for social platforms",
	Long: `Publishes scheduled content items to Facebook, Instagram and TikTok,
ranking target accounts by health, refreshing credentials before dispatch
and retrying transient failures with exponential backoff.`,
}

func init() {
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initApp)
}

func initFlags() {
	rootCmd.PersistentFlags().String("port", "", "HTTP port for the API server")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("cron", "", "Cron expression for the publication cycle")

	_ = viper.BindPFlag("app_port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("app_debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("cron_expression", rootCmd.PersistentFlags().Lookup("cron"))
}

func initApp() {
	cfg, err := coreconfig.LoadConfig()
	if err != nil {
		logrus.Fatalf("[INIT] Failed to load configuration: %v", err)
	}

	if viper.GetBool("app_debug") {
		cfg.App.Debug = true
	}
	if v := viper.GetString("app_port"); v != "" {
		cfg.App.Port = v
	}
	if v := viper.GetString("cron_expression"); v != "" {
		cfg.Scheduler.CronExpression = v
	}

	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	if err := utils.CreateFolder(cfg.Paths.Storages); err != nil {
		logrus.Fatalf("[INIT] Failed to create storage folder: %v", err)
	}

	db, err := coreDB.NewDatabase(cfg)
	if err != nil {
		logrus.Fatalf("[INIT] Failed to connect database: %v", err)
	}
	coreDB.GlobalDB = db

	contentRepo = repository.NewContentRepository(db)
	accountRepo = repository.NewAccountRepository(db)

	registry = platforms.NewRegistry()
	if cfg.Platforms.Facebook.Enabled {
		registry.Register(facebook.NewAdapter(cfg.Platforms.Facebook))
	}
	if cfg.Platforms.Instagram.Enabled {
		registry.Register(instagram.NewAdapter(cfg.Platforms.Instagram))
	}
	if cfg.Platforms.TikTok.Enabled {
		registry.Register(tiktok.NewAdapter(cfg.Platforms.TikTok))
	}

	mediaGenerator = media.NewGenerator(cfg.Media)

	publishPool = pubworker.NewPool(cfg.Scheduler.DispatchParallelism, cfg.Scheduler.MaxQueueSize)
	publishPool.Start(context.Background())

	coordinator := usecase.NewDispatchCoordinator(registry, publishPool, cfg.Scheduler.PublishTimeout)
	refresher := usecase.NewCredentialRefresher(accountRepo, registry, cfg.Scheduler.TokenRefreshWindow)

	schedulerUsecase = usecase.NewSchedulerService(
		cfg.Scheduler,
		contentRepo,
		accountRepo,
		coordinator,
		refresher,
		mediaGenerator,
	)

	logrus.Infof("[INIT] Publisher initialized, platforms: %v", registry.Platforms())
}

// StopApp shuts down the scheduler and worker pool in dependency order.
func StopApp() {
	if schedulerUsecase != nil {
		schedulerUsecase.Stop()
	}
	if publishPool != nil {
		publishPool.Stop()
	}
	if coreDB.GlobalDB != nil {
		if sqlDB, err := coreDB.GlobalDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatalf("[CMD] %v", err)
	}
}

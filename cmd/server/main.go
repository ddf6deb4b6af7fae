package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dropcast/dropcast/internal/config"
	"github.com/dropcast/dropcast/internal/server"
	"github.com/dropcast/dropcast/internal/service"
	"github.com/dropcast/dropcast/internal/service/notify"
	"github.com/dropcast/dropcast/internal/service/secrets"
	"github.com/dropcast/dropcast/internal/service/wizard"
	"github.com/dropcast/dropcast/internal/store"
	"github.com/dropcast/dropcast/pkg/logger"
)

var (
	configPath  string
	accountName string
	version     = "0.1.0"
	gitCommit   = "unknown"
	buildTime   = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "dropcast",
	Short: "Dropcast - Dropbox to Instagram publishing automation",
	Long:  `Dropcast watches a Dropbox inbox folder and publishes its media files to Instagram on a configurable weekly schedule.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one publish run and exit",
	RunE:  runOnce,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin API, the Telegram bot and the periodic runner",
	RunE:  runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Dropcast %s\n", version)
		fmt.Printf("Git commit: %s\n", gitCommit)
		fmt.Printf("Build time: %s\n", buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/server.yaml", "config file path")
	runCmd.Flags().StringVarP(&accountName, "account", "a", "", "account to publish (default: all configured accounts)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// app is the assembled service graph shared by the run and serve commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.Store
	pipeline *service.Pipeline
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	records, err := store.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Telegram.Token != "" {
		notifier, err = notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, appLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize notifier: %w", err)
		}
	}

	secretStore := secrets.NewClient(cfg.GitHub.APIBase, cfg.GitHub.Repository, cfg.GitHub.Token, appLogger)
	creds := service.NewCredentialService(cfg.Dropbox.TokenURL, secretStore, appLogger)

	evaluator, err := service.NewEvaluator(&cfg.Schedule, records, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize schedule evaluator: %w", err)
	}

	pipeline, err := service.NewPipeline(cfg, records, creds, evaluator, notifier, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   appLogger,
		store:    records,
		pipeline: pipeline,
	}, nil
}

func runOnce(*cobra.Command, []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	accounts := a.cfg.AccountNames()
	if accountName != "" {
		accounts = []string{accountName}
	}

	ctx := context.Background()
	for _, name := range accounts {
		if err := a.pipeline.Run(ctx, name); err != nil {
			a.logger.Error("Publish run failed",
				zap.String("account", name),
				zap.Error(err))
		}
	}
	return nil
}

func runServer(*cobra.Command, []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	a.logger.Info("Starting Dropcast server", zap.String("version", version))

	runner := service.NewRunner(&a.cfg.Runner, a.pipeline, a.cfg.AccountNames(), a.logger)
	srv := server.NewServer(a.cfg, a.store, a.pipeline, runner, a.logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return srv.Start(groupCtx)
	})

	if a.cfg.Telegram.Token != "" {
		secretStore := secrets.NewClient(a.cfg.GitHub.APIBase, a.cfg.GitHub.Repository, a.cfg.GitHub.Token, a.logger)
		wiz := wizard.New(a.cfg, a.store, secretStore, wizard.NewMemoryStore(), a.logger)
		bot, err := wizard.NewBot(a.cfg.Telegram.Token, wiz, a.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize telegram bot: %w", err)
		}
		group.Go(func() error {
			return bot.Run(groupCtx)
		})
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		a.logger.Info("Shutting down server...")
	case <-groupCtx.Done():
		a.logger.Info("Server context cancelled")
	}

	// Graceful shutdown
	if err := srv.Shutdown(context.Background()); err != nil {
		a.logger.Error("Server forced to shutdown", zap.Error(err))
	}
	cancel()
	_ = group.Wait()

	a.logger.Info("Server exited")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

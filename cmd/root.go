package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/questledger/internal/app"
	"github.com/JakeFAU/questledger/internal/cache"
	"github.com/JakeFAU/questledger/internal/catalog"
	"github.com/JakeFAU/questledger/internal/config"
	"github.com/JakeFAU/questledger/internal/logging"
	"github.com/JakeFAU/questledger/internal/reconcile"
	"github.com/JakeFAU/questledger/internal/store"
	"github.com/JakeFAU/questledger/internal/update"
)

type appKeyType string

const appKey appKeyType = "app"

// App is the service container the commands use.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Store() *store.Store
	Cache() *cache.Cache
	Baseline() catalog.Catalog
	CategoryOrder() []string
	Sync(ctx context.Context, onProgress func(reconcile.Progress)) (*reconcile.Result, error)
	CheckForUpdate(ctx context.Context) (update.Result, error)
}

// newApp is the application factory; tests replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		profile string
	)
	cmd := &cobra.Command{
		Use:   "questledger",
		Short: "Track quest completion across profiles.",
		Long: `questledger records per-profile progress through a catalog of quests
that it keeps in sync with the wiki's quest list pages.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			if profile != "" {
				switchStartupProfile(cmd.Context(), appInstance, profile)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default ./questledger.yaml or $HOME/.questledger/questledger.yaml)")
	cmd.PersistentFlags().StringVar(&profile, "profile", "", "profile to switch to on startup")

	cmd.AddCommand(
		newProfileCmd(),
		newStatusCmd(),
		newResetCmd(),
		newHistoryCmd(),
		newExportCmd(),
		newImportCmd(),
		newSyncCmd(),
		newCatalogCmd(),
		newSummaryCmd(),
		newCacheCmd(),
		newRunsCmd(),
		newVersionCmd(),
	)
	return cmd
}

// switchStartupProfile selects name when it exists and otherwise keeps the
// persisted profile.
func switchStartupProfile(ctx context.Context, a App, name string) {
	if err := a.Store().SwitchProfile(ctx, name); err != nil {
		a.Logger().Warn("switch profile failed", zap.String("profile", name), zap.Error(err))
		return
	}
	if a.Store().CurrentProfile() != name {
		a.Logger().Warn("unknown profile; keeping current",
			zap.String("requested", name),
			zap.String("current", a.Store().CurrentProfile()))
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

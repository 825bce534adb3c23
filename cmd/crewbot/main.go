// Package main provides the CLI entry point for crewbot, a Discord bot that
// answers moderator-defined prefix commands from an in-memory snapshot cache
// backed by SQLite.
//
// # Basic Usage
//
// Start the bot:
//
//	crewbot serve --config crewbot.yaml
//
// # Environment Variables
//
//   - CREWBOT_CONFIG: Path to configuration file (default: crewbot.yaml)
//   - DISCORD_TOKEN: referenced from the config file as ${DISCORD_TOKEN}
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/wingbits/crewbot/internal/admin"
	"github.com/wingbits/crewbot/internal/cache"
	"github.com/wingbits/crewbot/internal/cachesync"
	"github.com/wingbits/crewbot/internal/config"
	"github.com/wingbits/crewbot/internal/discord"
	"github.com/wingbits/crewbot/internal/observability"
	"github.com/wingbits/crewbot/internal/resolver"
	"github.com/wingbits/crewbot/internal/scheduler"
	"github.com/wingbits/crewbot/internal/store"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "crewbot",
		Short:         "Discord prefix-command bot with a cache-backed resolution engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(buildServeCmd(), buildVersionCmd(), buildAdminCmd())
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the crewbot version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "crewbot", version)
		},
	}
}

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and serve prefix commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("CREWBOT_CONFIG")
			}
			if configPath == "" {
				configPath = "crewbot.yaml"
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	slog.SetDefault(logger)
	logger.Info("starting crewbot", "version", version)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			logger.Info("metrics endpoint listening", "addr", cfg.Metrics.Listen)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	stores, err := store.NewSQLiteStoreSet(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}()

	cacheStore := cache.New(cache.Options{
		TTL:        cfg.CacheTTL(),
		MaxEntries: cfg.Engine.CacheMaxEntries,
	})
	cacheStore.Init()
	defer cacheStore.Shutdown()

	syncer := cachesync.New(cacheStore, stores, logger)
	syncer.LoadAll(ctx)
	logger.Info("initial cache load completed", "entries", cacheStore.Len())

	adapter, err := discord.NewAdapter(discord.Config{
		Token:           cfg.Discord.Token,
		GuildID:         cfg.Discord.GuildID,
		ModLogChannelID: cfg.Discord.ModLogChannelID,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("creating discord adapter: %w", err)
	}
	if err := adapter.Start(ctx); err != nil {
		return fmt.Errorf("connecting to discord: %w", err)
	}

	var modLog admin.ModLogger
	if cfg.Discord.ModLogChannelID != "" {
		modLog = adapter
	}
	adminService := admin.New(stores, syncer, logger, metrics, modLog)

	engine, err := resolver.New(cacheStore, adapter, resolver.Config{
		Prefix:                     cfg.Engine.Prefix,
		PermissionErrorDeleteDelay: cfg.PermissionErrorDeleteDelay(),
		DefaultEmbedColor:          cfg.Engine.DefaultEmbedColor,
		PickerTimeout:              cfg.PickerTimeout(),
		Logger:                     logger,
		Metrics:                    metrics,
	})
	if err != nil {
		return fmt.Errorf("creating resolver: %w", err)
	}

	refreshScheduler, err := scheduler.New(syncer, scheduler.Config{
		Interval: cfg.RefreshInterval(),
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	if err := refreshScheduler.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	// One goroutine per message; picker sessions keep their goroutine alive
	// for up to the session timeout.
	var inflight sync.WaitGroup
	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	cacheUpdateTrigger := cfg.Engine.Prefix + "cacheupdate"
	go func() {
		for msg := range adapter.Messages() {
			inflight.Add(1)
			go func(msg discord.Incoming) {
				defer inflight.Done()
				if msg.Content == cacheUpdateTrigger && len(cfg.Engine.AdminRoles) > 0 {
					handleCacheUpdate(dispatchCtx, adapter, adminService, cfg.Engine.AdminRoles, msg, logger)
					return
				}
				engine.HandleMessage(dispatchCtx, msg)
			}(msg)
		}
	}()

	logger.Info("crewbot is running", "guild_id", cfg.Discord.GuildID, "prefix", cfg.Engine.Prefix)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	refreshScheduler.Stop()
	if err := adapter.Stop(); err != nil {
		logger.Warn("failed to stop discord adapter", "error", err)
	}
	cancelDispatch()
	inflight.Wait()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to stop metrics server", "error", err)
		}
	}

	logger.Info("cleanup completed, exiting")
	return nil
}

// handleCacheUpdate runs the built-in forced reconciliation trigger. Only
// members holding one of the configured admin roles may invoke it.
func handleCacheUpdate(ctx context.Context, adapter *discord.Adapter, service *admin.Service,
	adminRoles []string, msg discord.Incoming, logger *slog.Logger) {

	held, err := adapter.MemberRoles(ctx, msg.GuildID, msg.AuthorID)
	if err != nil {
		logger.Warn("failed to fetch member roles for cacheupdate", "user_id", msg.AuthorID, "error", err)
		return
	}
	allowed := false
	for _, roleID := range held {
		for _, adminRole := range adminRoles {
			if roleID == adminRole {
				allowed = true
			}
		}
	}
	if !allowed {
		return
	}

	elapsed, err := service.UpdateCache(ctx)
	if err != nil {
		logger.Error("forced cache update failed", "error", err)
		return
	}
	out := discord.Outgoing{
		Title:   "Cache Update",
		Content: fmt.Sprintf("All caches refreshed in %.2fs.", elapsed.Seconds()),
		IsEmbed: true,
		Footer:  "Executed by " + msg.AuthorTag + " - " + msg.AuthorID,
	}
	if _, err := adapter.Reply(ctx, msg, out); err != nil {
		logger.Warn("failed to acknowledge cacheupdate", "error", err)
	}
}

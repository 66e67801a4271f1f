package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nextlevelbuilder/weclaw/internal/bus"
	"github.com/nextlevelbuilder/weclaw/internal/channels"
	"github.com/nextlevelbuilder/weclaw/internal/channels/wechat"
	"github.com/nextlevelbuilder/weclaw/internal/config"
	"github.com/nextlevelbuilder/weclaw/internal/gateway"
	"github.com/nextlevelbuilder/weclaw/internal/store"
)

func runGateway() {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	msgBus := bus.New()

	pairingStore := openPairingStore(cfg)
	if pairingStore != nil {
		defer pairingStore.Close()
	}

	manager := channels.NewManager(msgBus)
	registered := 0
	for _, accountID := range cfg.Channels.WeChat.ListAccountIDs() {
		account, err := cfg.Channels.WeChat.ResolveAccount(accountID)
		if err != nil {
			slog.Error("wechat account config invalid", "account", accountID, "error", err)
			continue
		}
		if !account.Enabled {
			continue
		}

		ch, err := wechat.New(account, cfg.Channels.WeChat, msgBus, pairingStore)
		if err != nil {
			slog.Error("wechat channel init failed", "account", accountID, "error", err)
			continue
		}

		manager.RegisterChannel(ch.Name(), ch)
		registered++
	}

	if registered == 0 {
		slog.Error("no wechat accounts configured, nothing to do",
			"hint", "set channels.wechat.api_key and channels.wechat.proxy_url",
		)
		os.Exit(1)
	}

	agentClient, err := gateway.NewAgentClient(
		cfg.Agent.Endpoint,
		cfg.Agent.Token,
		time.Duration(cfg.Agent.TimeoutSec)*time.Second,
	)
	if err != nil {
		slog.Error("agent endpoint config invalid", "error", err)
		os.Exit(1)
	}

	consumer := gateway.NewConsumer(
		msgBus, agentClient,
		cfg.Agent.AgentID, cfg.Sessions,
		time.Duration(cfg.Agent.TimeoutSec)*time.Second,
	)

	if err := manager.StartAll(ctx); err != nil {
		slog.Error("channel startup failed", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		consumer.Run(gctx)
		return nil
	})

	slog.Info("weclaw gateway running", "version", Version, "accounts", registered)

	<-gctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = manager.StopAll(shutdownCtx)
	_ = g.Wait()
}

// setupLogging installs the slog default: text to stdout, optionally teeing
// into a size-rotated file.
func setupLogging(cfg config.LoggingConfig) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   config.ExpandHome(cfg.File),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: level,
	})))
}

func openPairingStore(cfg *config.Config) store.PairingStore {
	path := config.ExpandHome(cfg.Pairing.Database)
	if path == "" {
		return nil
	}
	ps, err := store.NewSQLitePairingStore(path)
	if err != nil {
		slog.Warn("pairing store unavailable, pairing policy degrades to allowlist",
			"path", path,
			"error", err,
		)
		return nil
	}
	return ps
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/account"
	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/bot"
	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/config"
	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/handlers"
	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/logger"
	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/pgp"
	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/server"
	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/siyuan"
)

func runServe(configPath string) {
	fx.New(
		fx.Provide(
			func() (config.Config, error) { return provideConfig(configPath) },
			provideLogger,
			provideKeyStore,
			pgp.NewGateway,
			provideStore,
			providePatcher,
			provideRegistry,
			bot.NewRouter,
			provideTelegramAdapter,
			handlers.NewPingHandler,
			handlers.NewKeyHandler,
			provideServer,
		),
		fx.Invoke(
			startTelegramAdapter,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig(path string) (config.Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideKeyStore(log *slog.Logger, cfg config.Config) (*pgp.KeyStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.PGP.KeyFile), 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	keys := pgp.NewKeyStore(log, cfg.PGP.KeyFile, cfg.PGP.Passphrase, cfg.PGP.Name, cfg.PGP.Comment, cfg.PGP.Email)
	if err := keys.Ensure(); err != nil {
		return nil, fmt.Errorf("ensure pgp identity: %w", err)
	}
	return keys, nil
}

func provideStore(log *slog.Logger, cfg config.Config) (*account.Store, error) {
	if err := os.MkdirAll(cfg.Data.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return account.NewStore(log, cfg.Data.AccountsFile())
}

func providePatcher(gateway *pgp.Gateway) *account.Patcher {
	return account.NewPatcher(gateway)
}

func provideRegistry(log *slog.Logger, cfg config.Config) (*siyuan.Registry, error) {
	cache := siyuan.CacheDirs{
		Images: cfg.Data.AssetsDir("image"),
		Audios: cfg.Data.AssetsDir("audio"),
		Videos: cfg.Data.AssetsDir("video"),
	}
	for _, dir := range []string{cache.Images, cache.Audios, cache.Videos} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	return siyuan.NewRegistry(log, siyuan.CloudEndpoints{
		AddURL:         cfg.Cloud.AddURL,
		UploadURL:      cfg.Cloud.UploadURL,
		UserAgentKey:   cfg.Cloud.UserAgentKey,
		UserAgentValue: cfg.Cloud.UserAgentValue,
		BizTypeKey:     cfg.Cloud.BizTypeKey,
		BizTypeValue:   cfg.Cloud.BizTypeValue,
		MetaTypeKey:    cfg.Cloud.MetaTypeKey,
		MetaTypeValue:  cfg.Cloud.MetaTypeValue,
	}, cache), nil
}

func provideTelegramAdapter(log *slog.Logger, cfg config.Config, router *bot.Router) (*bot.TelegramAdapter, error) {
	return bot.NewTelegramAdapter(log, cfg.Telegram.BotToken, router)
}

func provideServer(log *slog.Logger, cfg config.Config, pingHandler *handlers.PingHandler, keyHandler *handlers.KeyHandler) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, pingHandler, keyHandler)
}

func startTelegramAdapter(lc fx.Lifecycle, log *slog.Logger, adapter *bot.TelegramAdapter, shutdowner fx.Shutdowner) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := adapter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("telegram adapter stopped", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, cfg config.Config, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				log.Info("http server listening", slog.String("addr", cfg.Server.Addr))
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

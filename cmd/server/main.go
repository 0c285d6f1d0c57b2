// Package main is the entry point for the runbox MCP server.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/language"
	"github.com/isdmx/runbox/logger"
	"github.com/isdmx/runbox/mcpserver"
	"github.com/isdmx/runbox/opsserver"
	"github.com/isdmx/runbox/sandbox"
)

func main() {
	fx.New(
		fx.Options(options()...),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	).Run()
}

func options() []fx.Option {
	return []fx.Option{
		// Provide dependencies
		fx.Provide(
			config.New,
			logger.NewFromConfig,
			newRegistry,
			newRuntime,
			fx.Annotate(
				sandbox.NewExecutorFromConfig,
				fx.As(new(sandbox.SandboxExecutor)),
			),
			mcpserver.New,
		),

		fx.Invoke(
			registerOpsServer,
			registerTransport,
		),
	}
}

func newRegistry(cfg *config.Config, log *zap.Logger) (*language.Registry, error) {
	registry, err := language.New(cfg.Sandbox.LanguagesFile)
	if err != nil {
		return nil, err
	}
	log.Info("language table loaded",
		zap.String("file", cfg.Sandbox.LanguagesFile),
		zap.Int("languages", len(registry.IDs())))
	return registry, nil
}

func newRuntime(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config) (sandbox.ContainerRuntime, error) {
	rt, err := sandbox.NewRuntime(log, cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(rt.Close))
	return rt, nil
}

func registerOpsServer(lc fx.Lifecycle, cfg *config.Config, registry *language.Registry, log *zap.Logger) {
	if cfg.Server.OpsAddr == "" {
		log.Info("ops server disabled")
		return
	}

	srv := opsserver.New(cfg.Server.OpsAddr, registry, log)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return srv.Start()
		},
		OnStop: srv.Shutdown,
	})
}

// registerTransport serves MCP in the background and stops the app when the
// transport ends
func registerTransport(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg *config.Config, server *mcpserver.MCPServer, log *zap.Logger) {
	serve := server.ServeStdio
	if cfg.Server.Transport == "http" {
		serve = server.ServeHTTP
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				err := serve()
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("MCP transport failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
					return
				}
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
		OnStop: server.Shutdown,
	})
}

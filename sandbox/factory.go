package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/language"
)

// DefaultPodmanHost is the rootful Podman API socket
const DefaultPodmanHost = "unix:///run/podman/podman.sock"

// NewRuntime creates the container runtime for the configured backend.
// Podman is reached through its Docker-compatible API.
func NewRuntime(logger *zap.Logger, cfg *config.Config) (*DockerRuntime, error) {
	host := cfg.Sandbox.Host

	switch cfg.Sandbox.Backend {
	case config.BackendDocker:
	case config.BackendPodman:
		if host == "" {
			host = DefaultPodmanHost
		}
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}

	logger.Info("using container runtime",
		zap.String("backend", cfg.Sandbox.Backend),
		zap.String("host", host))
	return NewDockerRuntime(logger, host)
}

// NewExecutorFromConfig creates an Executor using the sandbox settings of cfg
func NewExecutorFromConfig(logger *zap.Logger, cfg *config.Config, registry *language.Registry, rt ContainerRuntime) *Executor {
	return NewExecutor(logger, registry, rt,
		WithImage(cfg.Sandbox.Image),
		WithCleanupTimeout(cfg.GetCleanupTimeout()),
	)
}

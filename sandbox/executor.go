package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/language"
)

// Defaults used when no option overrides them
const (
	DefaultImage          = "ds-code-user-code"
	DefaultCleanupTimeout = 10 * time.Second
)

// SandboxExecutor runs one request and returns its combined output
type SandboxExecutor interface {
	Execute(ctx context.Context, req Request) (string, error)
}

// Executor runs each request in its own single-use container
type Executor struct {
	logger         *zap.Logger
	registry       *language.Registry
	runtime        ContainerRuntime
	image          string
	cleanupTimeout time.Duration
}

var _ SandboxExecutor = (*Executor)(nil)

// ExecutorOption defines a functional option for Executor
type ExecutorOption func(*Executor)

// WithImage sets the sandbox base image
func WithImage(image string) ExecutorOption {
	return func(e *Executor) {
		e.image = image
	}
}

// WithCleanupTimeout bounds the explicit delete issued after each run
func WithCleanupTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.cleanupTimeout = timeout
	}
}

// NewExecutor creates an Executor on top of a container runtime
func NewExecutor(logger *zap.Logger, registry *language.Registry, rt ContainerRuntime, opts ...ExecutorOption) *Executor {
	executor := &Executor{
		logger:         logger,
		registry:       registry,
		runtime:        rt,
		image:          DefaultImage,
		cleanupTimeout: DefaultCleanupTimeout,
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Execute runs req.Code in a fresh sandbox and returns stdout and stderr
// interleaved in arrival order. On any failure it returns a *RunError and no
// output. The sandbox is deleted before Execute returns whatever happened.
func (e *Executor) Execute(ctx context.Context, req Request) (output string, err error) {
	started := time.Now()
	log := e.logger.With(zap.String("run_id", uuid.NewString()), zap.String("language", req.Language))

	spec, err := e.registry.Lookup(req.Language)
	if err != nil {
		runErr := &RunError{Stage: StageUnknownLanguage, Err: err}
		log.Info("rejected run", zap.Error(err))
		observeRun(unknownLanguageLabel, started, runErr)
		return "", runErr
	}
	defer func() {
		observeRun(spec.ID, started, err)
	}()

	sb, err := e.provision(ctx, spec)
	if err != nil {
		log.Error("sandbox run failed", zap.String("stage", string(StageProvision)), zap.Error(err))
		return "", err
	}
	log = log.With(zap.String("container", sb.ID))
	log.Debug("sandbox provisioned", zap.String("name", sb.Name))
	activeSandboxes.Inc()
	defer e.reap(log, sb)

	output, err = e.run(ctx, log, sb, spec, []byte(req.Code))
	if err != nil {
		log.Error("sandbox run failed", zap.String("stage", string(StageOf(err))), zap.Error(err))
		return "", err
	}

	log.Info("sandbox run completed", zap.Int("output_len", len(output)), zap.Duration("duration", time.Since(started)))
	return output, nil
}

// run takes a provisioned sandbox from Injected to Completed
func (e *Executor) run(ctx context.Context, log *zap.Logger, sb Sandbox, spec language.Spec, code []byte) (string, error) {
	if err := e.runtime.CopyFileInto(ctx, sb.ID, spec.CodeFile, code); err != nil {
		return "", &RunError{Stage: StageInject, Err: err}
	}
	log.Debug("code injected", zap.String("path", spec.CodeFile), zap.Int("size", len(code)))

	// Attach before start so output written right after start is not lost.
	stream, err := e.runtime.Attach(ctx, sb.ID)
	if err != nil {
		return "", &RunError{Stage: StageAttach, Err: err}
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			log.Debug("failed to close output stream", zap.Error(closeErr))
		}
	}()
	log.Debug("attached to sandbox output")

	if err := e.runtime.Start(ctx, sb.ID); err != nil {
		return "", &RunError{Stage: StageStart, Err: err}
	}
	log.Debug("sandbox started")

	return collect(ctx, stream)
}

// provision creates the container for spec under the fixed isolation policy
func (e *Executor) provision(ctx context.Context, spec language.Spec) (Sandbox, error) {
	sb := Sandbox{
		Name:      "runbox-" + uuid.NewString(),
		Image:     e.image,
		Cmd:       spec.Command,
		Isolation: isolationPolicy,
	}

	id, err := e.runtime.Create(ctx, CreateOptions{
		Name:      sb.Name,
		Image:     sb.Image,
		Cmd:       sb.Cmd,
		Isolation: sb.Isolation,
	})
	if err != nil {
		return Sandbox{}, &RunError{Stage: StageProvision, Err: err}
	}
	sb.ID = id
	return sb, nil
}

// collect drains stream into one buffer. The stdin direction carries
// nothing on this leg and is skipped.
func collect(ctx context.Context, stream ChunkStream) (string, error) {
	var out strings.Builder
	for {
		chunk, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out.String(), nil
		}
		if err != nil {
			return "", &RunError{Stage: StageStream, Err: err}
		}

		if chunk.Stream == Stdin {
			continue
		}
		if !utf8.Valid(chunk.Data) {
			return "", &RunError{Stage: StageDecode, Err: fmt.Errorf("%s chunk is not valid UTF-8", chunk.Stream)}
		}
		out.Write(chunk.Data)
	}
}

// reap deletes the sandbox. Auto-remove usually got there first; failures
// are logged and never reach the caller.
func (e *Executor) reap(log *zap.Logger, sb Sandbox) {
	defer activeSandboxes.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), e.cleanupTimeout)
	defer cancel()

	if err := e.runtime.Delete(ctx, sb.ID); err != nil {
		cleanupFailures.Inc()
		log.Warn("failed to remove sandbox", zap.String("stage", string(StageCleanup)), zap.Error(err))
		return
	}
	log.Debug("sandbox reaped")
}

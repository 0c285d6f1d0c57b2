// Package sandbox provides secure code execution capabilities.
//
// The DockerRuntime talks to the Docker Engine API. Podman is served by the
// same runtime through its Docker-compatible socket.
package sandbox

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	docker "github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
)

// FilePermission is the mode injected source files get inside the container
const FilePermission = 0644

// DockerAPI is the subset of the Docker client used by DockerRuntime
type DockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options types.CopyToContainerOptions) error
	ContainerAttach(ctx context.Context, containerID string, options types.ContainerAttachOptions) (types.HijackedResponse, error)
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
	Close() error
}

// DockerRuntime implements ContainerRuntime using the Docker Engine API
type DockerRuntime struct {
	logger *zap.Logger
	cli    DockerAPI
}

var _ ContainerRuntime = (*DockerRuntime)(nil)

// DockerRuntimeOption defines a functional option for DockerRuntime
type DockerRuntimeOption func(*DockerRuntime)

// WithDockerClient sets the API client used by DockerRuntime
func WithDockerClient(cli DockerAPI) DockerRuntimeOption {
	return func(d *DockerRuntime) {
		d.cli = cli
	}
}

// NewDockerRuntime creates a DockerRuntime. An empty host falls back to the
// DOCKER_HOST environment and then to the default socket.
func NewDockerRuntime(logger *zap.Logger, host string, opts ...DockerRuntimeOption) (*DockerRuntime, error) {
	rt := &DockerRuntime{logger: logger}
	for _, opt := range opts {
		opt(rt)
	}

	if rt.cli == nil {
		clientOpts := []docker.Opt{docker.FromEnv, docker.WithAPIVersionNegotiation()}
		if host != "" {
			clientOpts = append(clientOpts, docker.WithHost(host))
		}
		cli, err := docker.NewClientWithOpts(clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create docker client: %w", err)
		}
		rt.cli = cli
	}

	return rt, nil
}

// Create makes a stopped container with the requested isolation
func (d *DockerRuntime) Create(ctx context.Context, opts CreateOptions) (string, error) {
	cfg, hostCfg := containerConfigs(opts)
	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	for _, warning := range resp.Warnings {
		d.logger.Warn("container create warning", zap.String("container", resp.ID), zap.String("warning", warning))
	}
	return resp.ID, nil
}

// containerConfigs translates CreateOptions into Docker API types.
// No mounts are ever attached.
func containerConfigs(opts CreateOptions) (*container.Config, *container.HostConfig) {
	cfg := &container.Config{
		Image:           opts.Image,
		Cmd:             opts.Cmd,
		AttachStdout:    opts.Isolation.AttachStdout,
		AttachStderr:    opts.Isolation.AttachStderr,
		NetworkDisabled: opts.Isolation.NetworkDisabled,
		Tty:             false,
		OpenStdin:       false,
	}

	hostCfg := &container.HostConfig{
		AutoRemove: opts.Isolation.AutoRemove,
	}
	if opts.Isolation.NetworkDisabled {
		hostCfg.NetworkMode = "none"
	}

	return cfg, hostCfg
}

// CopyFileInto writes content verbatim at path inside the container
func (d *DockerRuntime) CopyFileInto(ctx context.Context, id, filePath string, content []byte) error {
	archive, err := singleFileTar(path.Base(filePath), content)
	if err != nil {
		return fmt.Errorf("failed to build archive: %w", err)
	}

	if err := d.cli.CopyToContainer(ctx, id, path.Dir(filePath), archive, types.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("failed to copy %s into container: %w", filePath, err)
	}
	return nil
}

func singleFileTar(name string, content []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	header := &tar.Header{
		Name:     name,
		Mode:     FilePermission,
		Size:     int64(len(content)),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(header); err != nil {
		return nil, err
	}
	if _, err := tw.Write(content); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	return &buf, nil
}

// Attach opens the multiplexed stdout/stderr stream of a container
func (d *DockerRuntime) Attach(ctx context.Context, id string) (ChunkStream, error) {
	resp, err := d.cli.ContainerAttach(ctx, id, types.ContainerAttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to container: %w", err)
	}
	return &dockerStream{resp: resp, reader: resp.Reader}, nil
}

// Start starts a created container
func (d *DockerRuntime) Start(ctx context.Context, id string) error {
	if err := d.cli.ContainerStart(ctx, id, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// Delete force-removes a container, treating an already removed one as success
func (d *DockerRuntime) Delete(ctx context.Context, id string) error {
	err := d.cli.ContainerRemove(ctx, id, types.ContainerRemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// Close releases the underlying API client
func (d *DockerRuntime) Close() error {
	return d.cli.Close()
}

// dockerStream reads frames off a hijacked attach connection
type dockerStream struct {
	resp   types.HijackedResponse
	reader *bufio.Reader
}

// Next blocks until a frame arrives, the stream ends or ctx is done.
// A done ctx closes the connection, so the stream is unusable afterwards.
func (s *dockerStream) Next(ctx context.Context) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	stop := context.AfterFunc(ctx, s.resp.Close)
	defer stop()

	chunk, err := readFrame(s.reader)
	if err != nil && ctx.Err() != nil {
		return Chunk{}, ctx.Err()
	}
	return chunk, err
}

func (s *dockerStream) Close() error {
	s.resp.Close()
	return nil
}

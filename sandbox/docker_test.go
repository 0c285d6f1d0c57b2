package sandbox

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	docker "github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/runbox/config"
)

// MockDockerAPI implements DockerAPI for testing
type MockDockerAPI struct {
	createConfig     *container.Config
	createHostConfig *container.HostConfig
	createName       string
	createResponse   container.CreateResponse
	createErr        error

	copyContainer string
	copyPath      string
	copyArchive   []byte
	copyErr       error

	attachOptions  types.ContainerAttachOptions
	attachResponse types.HijackedResponse
	attachErr      error

	startContainer string
	startErr       error

	removeContainer string
	removeOptions   types.ContainerRemoveOptions
	removeErr       error

	closed bool
}

func (m *MockDockerAPI) ContainerCreate(_ context.Context, config *container.Config, hostConfig *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	m.createConfig = config
	m.createHostConfig = hostConfig
	m.createName = containerName
	return m.createResponse, m.createErr
}

func (m *MockDockerAPI) CopyToContainer(_ context.Context, containerID, dstPath string, content io.Reader, _ types.CopyToContainerOptions) error {
	m.copyContainer = containerID
	m.copyPath = dstPath
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	m.copyArchive = data
	return m.copyErr
}

func (m *MockDockerAPI) ContainerAttach(_ context.Context, _ string, options types.ContainerAttachOptions) (types.HijackedResponse, error) {
	m.attachOptions = options
	return m.attachResponse, m.attachErr
}

func (m *MockDockerAPI) ContainerStart(_ context.Context, containerID string, _ types.ContainerStartOptions) error {
	m.startContainer = containerID
	return m.startErr
}

func (m *MockDockerAPI) ContainerRemove(_ context.Context, containerID string, options types.ContainerRemoveOptions) error {
	m.removeContainer = containerID
	m.removeOptions = options
	return m.removeErr
}

func (m *MockDockerAPI) Close() error {
	m.closed = true
	return nil
}

func newMockRuntime(t *testing.T, api *MockDockerAPI) *DockerRuntime {
	t.Helper()
	rt, err := NewDockerRuntime(zaptest.NewLogger(t), "", WithDockerClient(api))
	require.NoError(t, err)
	return rt
}

type part struct {
	stream stdcopy.StdType
	data   string
}

// frames multiplexes payloads the way the daemon does for a non-tty container
func frames(t *testing.T, parts ...part) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, p := range parts {
		_, err := stdcopy.NewStdWriter(&buf, p.stream).Write([]byte(p.data))
		require.NoError(t, err)
	}
	return buf.Bytes()
}

func hijacked(t *testing.T, payload []byte) types.HijackedResponse {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { server.Close() })
	return types.HijackedResponse{Conn: client, Reader: bufio.NewReader(bytes.NewReader(payload))}
}

func TestReadFrame(t *testing.T) {
	t.Run("Sequence", func(t *testing.T) {
		r := bytes.NewReader(frames(t,
			part{stdcopy.Stdout, "hello\n"},
			part{stdcopy.Stderr, "oops\n"},
			part{stdcopy.Stdin, "ignored"},
			part{stdcopy.Stdout, "bye\n"},
		))

		var got []Chunk
		for {
			chunk, err := readFrame(r)
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			got = append(got, chunk)
		}

		assert.Equal(t, []Chunk{
			{Stream: Stdout, Data: []byte("hello\n")},
			{Stream: Stderr, Data: []byte("oops\n")},
			{Stream: Stdin, Data: []byte("ignored")},
			{Stream: Stdout, Data: []byte("bye\n")},
		}, got)
	})

	t.Run("SystemError", func(t *testing.T) {
		_, err := readFrame(bytes.NewReader(frames(t, part{stdcopy.Systemerr, "daemon exploded"})))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "daemon exploded")
	})

	t.Run("UnknownStreamType", func(t *testing.T) {
		header := make([]byte, frameHeaderLen)
		header[0] = 7
		_, err := readFrame(bytes.NewReader(header))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unrecognized stream type")
	})

	t.Run("TruncatedHeader", func(t *testing.T) {
		_, err := readFrame(bytes.NewReader([]byte{1, 0, 0}))
		require.Error(t, err)
		assert.NotErrorIs(t, err, io.EOF)
	})

	t.Run("TruncatedPayload", func(t *testing.T) {
		header := make([]byte, frameHeaderLen)
		header[0] = byte(stdcopy.Stdout)
		binary.BigEndian.PutUint32(header[4:], 10)
		_, err := readFrame(bytes.NewReader(append(header, "abc"...)))
		require.Error(t, err)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestDockerRuntimeCreate(t *testing.T) {
	api := &MockDockerAPI{createResponse: container.CreateResponse{ID: "abc123", Warnings: []string{"low memory"}}}
	rt := newMockRuntime(t, api)

	id, err := rt.Create(context.Background(), CreateOptions{
		Name:      "runbox-test",
		Image:     "ds-code-user-code",
		Cmd:       []string{"timeout", "2s", "lua", "/user_code.lua"},
		Isolation: IsolationPolicy(),
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
	assert.Equal(t, "runbox-test", api.createName)

	cfg := api.createConfig
	require.NotNil(t, cfg)
	assert.Equal(t, "ds-code-user-code", cfg.Image)
	assert.Equal(t, []string{"timeout", "2s", "lua", "/user_code.lua"}, []string(cfg.Cmd))
	assert.True(t, cfg.NetworkDisabled)
	assert.True(t, cfg.AttachStdout)
	assert.True(t, cfg.AttachStderr)
	assert.False(t, cfg.Tty)
	assert.False(t, cfg.OpenStdin)
	assert.Empty(t, cfg.Volumes)

	hostCfg := api.createHostConfig
	require.NotNil(t, hostCfg)
	assert.Equal(t, container.NetworkMode("none"), hostCfg.NetworkMode)
	assert.True(t, hostCfg.AutoRemove)
	assert.Empty(t, hostCfg.Binds)
	assert.Empty(t, hostCfg.Mounts)
	assert.Empty(t, hostCfg.VolumesFrom)
}

func TestDockerRuntimeCreateError(t *testing.T) {
	api := &MockDockerAPI{createErr: errdefs.NotFound(errors.New("no such image"))}
	rt := newMockRuntime(t, api)

	_, err := rt.Create(context.Background(), CreateOptions{Image: "missing", Isolation: IsolationPolicy()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create container")
	assert.Contains(t, err.Error(), "no such image")
}

func TestDockerRuntimeCopyFileInto(t *testing.T) {
	api := &MockDockerAPI{}
	rt := newMockRuntime(t, api)

	code := []byte("print('hi')\n\x00\xff")
	require.NoError(t, rt.CopyFileInto(context.Background(), "abc", "/user_code.py", code))
	assert.Equal(t, "abc", api.copyContainer)
	assert.Equal(t, "/", api.copyPath)

	tr := tar.NewReader(bytes.NewReader(api.copyArchive))
	header, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "user_code.py", header.Name)
	assert.Equal(t, int64(FilePermission), header.Mode)
	assert.Equal(t, byte(tar.TypeReg), header.Typeflag)
	content, err := io.ReadAll(tr)
	require.NoError(t, err)
	assert.Equal(t, code, content)

	_, err = tr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDockerRuntimeCopyFileIntoNestedPath(t *testing.T) {
	api := &MockDockerAPI{copyErr: errors.New("disk full")}
	rt := newMockRuntime(t, api)

	err := rt.CopyFileInto(context.Background(), "abc", "/work/src/main.rs", []byte("fn main() {}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, "/work/src", api.copyPath)
}

func TestDockerRuntimeAttach(t *testing.T) {
	payload := frames(t,
		part{stdcopy.Stdout, "1\n"},
		part{stdcopy.Stderr, "warning\n"},
		part{stdcopy.Stdout, "2\n"},
	)
	api := &MockDockerAPI{attachResponse: hijacked(t, payload)}
	rt := newMockRuntime(t, api)

	stream, err := rt.Attach(context.Background(), "abc")
	require.NoError(t, err)
	defer stream.Close()

	assert.True(t, api.attachOptions.Stream)
	assert.True(t, api.attachOptions.Stdout)
	assert.True(t, api.attachOptions.Stderr)
	assert.False(t, api.attachOptions.Stdin)
	assert.False(t, api.attachOptions.Logs)

	output, err := collect(context.Background(), stream)
	require.NoError(t, err)
	assert.Equal(t, "1\nwarning\n2\n", output)
}

func TestDockerRuntimeAttachError(t *testing.T) {
	api := &MockDockerAPI{attachErr: errors.New("connection refused")}
	rt := newMockRuntime(t, api)

	_, err := rt.Attach(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to attach to container")
}

func TestDockerStreamHonoursContext(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	stream := &dockerStream{
		resp:   types.HijackedResponse{Conn: client, Reader: bufio.NewReader(client)},
		reader: bufio.NewReader(client),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := stream.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDockerRuntimeStart(t *testing.T) {
	api := &MockDockerAPI{}
	rt := newMockRuntime(t, api)
	require.NoError(t, rt.Start(context.Background(), "abc"))
	assert.Equal(t, "abc", api.startContainer)

	api.startErr = errors.New("exec format error")
	err := rt.Start(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start container")
}

func TestDockerRuntimeDelete(t *testing.T) {
	t.Run("Removed", func(t *testing.T) {
		api := &MockDockerAPI{}
		rt := newMockRuntime(t, api)
		require.NoError(t, rt.Delete(context.Background(), "abc"))
		assert.Equal(t, "abc", api.removeContainer)
		assert.True(t, api.removeOptions.Force)
		assert.True(t, api.removeOptions.RemoveVolumes)
	})

	t.Run("AlreadyAutoRemoved", func(t *testing.T) {
		api := &MockDockerAPI{removeErr: errdefs.NotFound(errors.New("No such container: abc"))}
		rt := newMockRuntime(t, api)
		assert.NoError(t, rt.Delete(context.Background(), "abc"))
	})

	t.Run("Failure", func(t *testing.T) {
		api := &MockDockerAPI{removeErr: errors.New("daemon unreachable")}
		rt := newMockRuntime(t, api)
		err := rt.Delete(context.Background(), "abc")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to remove container")
	})
}

func TestDockerRuntimeClose(t *testing.T) {
	api := &MockDockerAPI{}
	rt := newMockRuntime(t, api)
	require.NoError(t, rt.Close())
	assert.True(t, api.closed)
}

func TestNewRuntime(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tests := []struct {
		name     string
		backend  string
		host     string
		expected string
		hasError bool
	}{
		{"DockerExplicitHost", "docker", "tcp://127.0.0.1:2375", "tcp://127.0.0.1:2375", false},
		{"PodmanDefaultSocket", "podman", "", DefaultPodmanHost, false},
		{"PodmanRootless", "podman", "unix:///run/user/1000/podman/podman.sock", "unix:///run/user/1000/podman/podman.sock", false},
		{"Unsupported", "local", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Sandbox: config.SandboxConfig{Backend: tt.backend, Host: tt.host}}
			rt, err := NewRuntime(logger, cfg)
			if tt.hasError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer rt.Close()

			cli, ok := rt.cli.(*docker.Client)
			require.True(t, ok)
			assert.Equal(t, tt.expected, cli.DaemonHost())
		})
	}
}

func TestNewExecutorFromConfig(t *testing.T) {
	cfg := &config.Config{Sandbox: config.SandboxConfig{Image: "img:1", CleanupTimeoutSec: 3}}
	executor := NewExecutorFromConfig(zaptest.NewLogger(t), cfg, nil, newFakeRuntime())
	assert.Equal(t, "img:1", executor.image)
	assert.Equal(t, 3*time.Second, executor.cleanupTimeout)
}

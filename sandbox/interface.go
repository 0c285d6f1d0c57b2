// Package sandbox provides secure code execution capabilities.
//
// The sandbox package implements the execution engine for running untrusted
// code in single-use containers. The Executor drives one container per
// request through provision, inject, attach, start, drain and reap.
package sandbox

import (
	"context"
	"fmt"
)

// Request represents the parameters for code execution
type Request struct {
	Language string
	Code     string
}

// StreamType tags the origin of an output chunk
type StreamType byte

// Stream identifiers as carried by the multiplexed attach protocol
const (
	Stdin StreamType = iota
	Stdout
	Stderr
)

func (s StreamType) String() string {
	switch s {
	case Stdin:
		return "stdin"
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("stream(%d)", byte(s))
	}
}

// Chunk is one unit of captured output
type Chunk struct {
	Stream StreamType
	Data   []byte
}

// ChunkStream yields output chunks in arrival order.
// Next returns io.EOF once the process has exited and the stream is closed.
type ChunkStream interface {
	Next(ctx context.Context) (Chunk, error)
	Close() error
}

// Isolation holds the flags a sandbox is created with
type Isolation struct {
	NetworkDisabled bool
	AutoRemove      bool
	AttachStdout    bool
	AttachStderr    bool
}

// isolationPolicy is applied to every sandbox and is not configurable.
var isolationPolicy = Isolation{
	NetworkDisabled: true,
	AutoRemove:      true,
	AttachStdout:    true,
	AttachStderr:    true,
}

// IsolationPolicy returns the flags every sandbox is created with
func IsolationPolicy() Isolation {
	return isolationPolicy
}

// CreateOptions holds the parameters for creating a container
type CreateOptions struct {
	Name      string
	Image     string
	Cmd       []string
	Isolation Isolation
}

// ContainerRuntime is the minimal contract the executor needs from a container engine
type ContainerRuntime interface {
	// Create makes a stopped container and returns its id
	Create(ctx context.Context, opts CreateOptions) (string, error)
	// CopyFileInto writes content at path inside a container that has not started yet
	CopyFileInto(ctx context.Context, id, path string, content []byte) error
	// Attach opens the combined output stream; it must be called before Start
	Attach(ctx context.Context, id string) (ChunkStream, error)
	Start(ctx context.Context, id string) error
	// Delete force-removes the container. A container that is already gone is not an error.
	Delete(ctx context.Context, id string) error
}

// Sandbox is the handle of one container owned by a single request
type Sandbox struct {
	ID        string
	Name      string
	Image     string
	Cmd       []string
	Isolation Isolation
}

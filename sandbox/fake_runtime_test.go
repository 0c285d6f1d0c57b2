package sandbox

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// fakeRuntime implements ContainerRuntime in memory and records every call
type fakeRuntime struct {
	mu         sync.Mutex
	nextID     int
	calls      []string
	created    []CreateOptions
	copied     map[string][]byte
	containers map[string]*fakeContainer
	streams    []*fakeStream

	createErr error
	copyErr   error
	attachErr error
	startErr  error
	deleteErr error
	// streamErr is delivered after the program output instead of EOF
	streamErr error
}

type fakeContainer struct {
	opts   CreateOptions
	files  map[string][]byte
	stream *fakeStream
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		copied:     make(map[string][]byte),
		containers: make(map[string]*fakeContainer),
	}
}

func (f *fakeRuntime) record(call, id string) {
	f.calls = append(f.calls, call+":"+id)
}

func (f *fakeRuntime) Create(_ context.Context, opts CreateOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.created = append(f.created, opts)
	if f.createErr != nil {
		f.record("create", "")
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("c%d", f.nextID)
	f.containers[id] = &fakeContainer{opts: opts, files: make(map[string][]byte)}
	f.record("create", id)
	return id, nil
}

func (f *fakeRuntime) CopyFileInto(_ context.Context, id, path string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("copy", id)
	if f.copyErr != nil {
		return f.copyErr
	}
	c, ok := f.containers[id]
	if !ok {
		return fmt.Errorf("no such container: %s", id)
	}
	c.files[path] = append([]byte(nil), content...)
	f.copied[id] = c.files[path]
	return nil
}

func (f *fakeRuntime) Attach(_ context.Context, id string) (ChunkStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("attach", id)
	if f.attachErr != nil {
		return nil, f.attachErr
	}
	c, ok := f.containers[id]
	if !ok {
		return nil, fmt.Errorf("no such container: %s", id)
	}
	c.stream = &fakeStream{items: make(chan fakeItem, 64), done: make(chan struct{})}
	f.streams = append(f.streams, c.stream)
	return c.stream, nil
}

// Start runs the fake program. Output produced before anyone attached is lost.
func (f *fakeRuntime) Start(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("start", id)
	if f.startErr != nil {
		return f.startErr
	}
	c, ok := f.containers[id]
	if !ok {
		return fmt.Errorf("no such container: %s", id)
	}

	chunks, hang := fakeInterpreter(c.opts.Cmd, c.files)
	if c.stream == nil {
		return nil
	}
	streamErr := f.streamErr
	go c.stream.feed(chunks, hang, streamErr)
	return nil
}

func (f *fakeRuntime) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("delete", id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.containers, id)
	return nil
}

func (f *fakeRuntime) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRuntime) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.containers)
}

func (f *fakeRuntime) Streams() []*fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeStream(nil), f.streams...)
}

func (f *fakeRuntime) CallsFor(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, call := range f.calls {
		if strings.HasSuffix(call, ":"+id) {
			out = append(out, strings.TrimSuffix(call, ":"+id))
		}
	}
	return out
}

type fakeItem struct {
	chunk Chunk
	err   error
}

type fakeStream struct {
	items     chan fakeItem
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

func (s *fakeStream) feed(chunks []Chunk, hang bool, streamErr error) {
	for _, c := range chunks {
		select {
		case s.items <- fakeItem{chunk: c}:
		case <-s.done:
			return
		}
	}
	if hang {
		return
	}
	if streamErr != nil {
		select {
		case s.items <- fakeItem{err: streamErr}:
		case <-s.done:
		}
		return
	}
	close(s.items)
}

func (s *fakeStream) Next(ctx context.Context) (Chunk, error) {
	select {
	case item, ok := <-s.items:
		if !ok {
			return Chunk{}, io.EOF
		}
		return item.chunk, item.err
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	}
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
	})
	return nil
}

// fakeInterpreter executes the code file named by the last argument of cmd.
// Each line is one statement:
//
//	print(x)   writes "x\n" to stdout
//	eprint(x)  writes "x\n" to stderr
//	stdin(x)   emits a stdin-tagged chunk
//	binary     writes invalid UTF-8 to stdout
//	count(n)   prints 0..n-1, standing in for a loop cut off by its timeout
//	hang       never exits
func fakeInterpreter(cmd []string, files map[string][]byte) ([]Chunk, bool) {
	if len(cmd) == 0 {
		return nil, false
	}
	code, ok := files[cmd[len(cmd)-1]]
	if !ok {
		return []Chunk{{Stream: Stderr, Data: []byte("can't open file " + cmd[len(cmd)-1] + "\n")}}, false
	}

	var chunks []Chunk
	for _, line := range strings.Split(string(code), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "hang":
			return chunks, true
		case line == "binary":
			chunks = append(chunks, Chunk{Stream: Stdout, Data: []byte{0xff, 0xfe}})
		case strings.HasPrefix(line, "print(") && strings.HasSuffix(line, ")"):
			chunks = append(chunks, Chunk{Stream: Stdout, Data: []byte(line[len("print("):len(line)-1] + "\n")})
		case strings.HasPrefix(line, "eprint(") && strings.HasSuffix(line, ")"):
			chunks = append(chunks, Chunk{Stream: Stderr, Data: []byte(line[len("eprint("):len(line)-1] + "\n")})
		case strings.HasPrefix(line, "stdin(") && strings.HasSuffix(line, ")"):
			chunks = append(chunks, Chunk{Stream: Stdin, Data: []byte(line[len("stdin(") : len(line)-1])})
		case strings.HasPrefix(line, "count(") && strings.HasSuffix(line, ")"):
			var n int
			fmt.Sscanf(line, "count(%d)", &n)
			for i := 0; i < n; i++ {
				chunks = append(chunks, Chunk{Stream: Stdout, Data: []byte(fmt.Sprintf("%d\n", i))})
			}
		}
	}
	return chunks, false
}

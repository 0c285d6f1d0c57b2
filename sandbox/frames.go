package sandbox

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/pkg/stdcopy"
)

// frameHeaderLen is the size of the multiplexed stream header:
// [stream type, 0, 0, 0, size (big endian uint32)]
const frameHeaderLen = 8

// readFrame decodes one frame of a non-tty attach stream.
// It returns io.EOF only when the stream ends on a frame boundary.
func readFrame(r io.Reader) (Chunk, error) {
	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Chunk{}, io.EOF
		}
		return Chunk{}, fmt.Errorf("failed to read frame header: %w", err)
	}

	size := binary.BigEndian.Uint32(header[4:])
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return Chunk{}, fmt.Errorf("failed to read %d byte frame: %w", size, err)
	}

	switch stdcopy.StdType(header[0]) {
	case stdcopy.Stdin:
		return Chunk{Stream: Stdin, Data: data}, nil
	case stdcopy.Stdout:
		return Chunk{Stream: Stdout, Data: data}, nil
	case stdcopy.Stderr:
		return Chunk{Stream: Stderr, Data: data}, nil
	case stdcopy.Systemerr:
		return Chunk{}, fmt.Errorf("error from daemon in stream: %s", data)
	default:
		return Chunk{}, fmt.Errorf("unrecognized stream type: %d", header[0])
	}
}

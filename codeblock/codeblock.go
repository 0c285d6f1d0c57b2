// Package codeblock extracts runnable code from chat messages.
//
// A message carries its code in a fenced block whose opening fence line
// names the language:
//
//	~run
//	```python
//	print("hi")
//	```
package codeblock

import (
	"errors"
	"strings"
)

// Fence delimits a code block
const Fence = "```"

// ErrNoCodeBlock is returned for messages without a fenced block
var ErrNoCodeBlock = errors.New("can not find code block")

// Block is the content of one fenced code block
type Block struct {
	Language string
	Code     string
}

// Extract returns the first fenced block of message. An unterminated fence
// runs to the end of the message.
func Extract(message string) (Block, error) {
	parts := strings.Split(message, Fence)
	if len(parts) < 2 {
		return Block{}, ErrNoCodeBlock
	}

	lines := strings.Split(parts[1], "\n")
	return Block{
		Language: strings.TrimSpace(lines[0]),
		Code:     strings.Join(lines[1:], "\n"),
	}, nil
}

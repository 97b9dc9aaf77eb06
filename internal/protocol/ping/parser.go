// Package ping implements the synthetic line-oriented PING/PONG calibration
// protocol: a single command per line, no payload.
package ping

import (
	"bytes"
	"errors"

	"github.com/ehrlich-b/corecache/internal/protocol"
)

var crlf = []byte("\r\n")

var errUnknownCommand = errors.New("ping: unrecognized command")

// Parser implements protocol.Parser for the ping dialect.
type Parser struct{}

func (Parser) Parse(buf []byte, maxValueSize int) protocol.Verdict {
	idx := bytes.Index(buf, crlf)
	if idx < 0 {
		if len(buf) > 64 {
			return protocol.Verdict{Kind: protocol.VerdictError, Err: errUnknownCommand}
		}
		return protocol.Verdict{Kind: protocol.VerdictIncomplete}
	}
	line := bytes.TrimSpace(buf[:idx])
	consumed := idx + 2

	switch {
	case bytes.EqualFold(line, []byte("ping")):
		return protocol.Verdict{Kind: protocol.VerdictComplete, Consumed: consumed, Command: protocol.Command{Op: protocol.OpPing}}
	case bytes.EqualFold(line, []byte("quit")):
		return protocol.Verdict{Kind: protocol.VerdictComplete, Consumed: consumed, Command: protocol.Command{Op: protocol.OpQuit}}
	default:
		return protocol.Verdict{Kind: protocol.VerdictError, Err: errUnknownCommand}
	}
}

// Pong is the fixed reply to PING.
func Pong() []byte { return []byte("PONG\r\n") }

// Package resp implements the subset of the Redis RESP2/3 protocol named
// in the specification: PING, GET, SET (with EX/PX/NX/XX), DEL, HELLO, and
// COMMAND. Commands arrive as RESP arrays of bulk strings; the dialect
// (RESP2 vs RESP3) is tracked per connection and only affects which frame
// shapes replies use, not which commands parse.
package resp

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ehrlich-b/corecache/internal/protocol"
)

var crlf = []byte("\r\n")

// Framing errors: the bytes themselves don't parse as a RESP array of
// bulk strings, so the stream cannot be resynchronized.
var (
	errMalformed = errors.New("resp: malformed frame")
	errNotArray  = errors.New("resp: command must be an array of bulk strings")
)

// Semantic errors: the array of bulk strings parsed cleanly, but the
// command it names is invalid. Exported so the runtime layer can map
// them to a reply without re-deriving the message.
var (
	ErrBadArity   = errors.New("resp: wrong number of arguments")
	ErrUnknownCmd = errors.New("resp: unknown command")
	ErrSyntax     = errors.New("resp: syntax error")
)

// Parser implements protocol.Parser for the RESP dialect.
type Parser struct{}

// readLine finds the next CRLF-terminated line starting at off. Returns
// the line's content (without CRLF), the offset just past the CRLF, and
// whether a full line was found.
func readLine(buf []byte, off int) ([]byte, int, bool) {
	idx := bytes.Index(buf[off:], crlf)
	if idx < 0 {
		return nil, off, false
	}
	return buf[off : off+idx], off + idx + 2, true
}

// Parse implements protocol.Parser. It expects the top-level frame to be
// a RESP array of bulk strings (the only shape a client uses to issue a
// command); any other leading byte is a framing error.
func (Parser) Parse(buf []byte, maxValueSize int) protocol.Verdict {
	if len(buf) == 0 {
		return protocol.Verdict{Kind: protocol.VerdictIncomplete}
	}
	if buf[0] != '*' {
		return protocol.Verdict{Kind: protocol.VerdictError, Err: errNotArray}
	}

	line, off, ok := readLine(buf, 1)
	if !ok {
		return protocol.Verdict{Kind: protocol.VerdictIncomplete}
	}
	count, err := strconv.Atoi(string(line))
	if err != nil || count < 0 {
		return protocol.Verdict{Kind: protocol.VerdictError, Err: errMalformed}
	}

	args := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if off >= len(buf) {
			return protocol.Verdict{Kind: protocol.VerdictIncomplete}
		}
		if buf[off] != '$' {
			return protocol.Verdict{Kind: protocol.VerdictError, Err: errNotArray}
		}
		lenLine, next, ok := readLine(buf, off+1)
		if !ok {
			return protocol.Verdict{Kind: protocol.VerdictIncomplete}
		}
		blen, err := strconv.Atoi(string(lenLine))
		if err != nil || blen < 0 {
			return protocol.Verdict{Kind: protocol.VerdictError, Err: errMalformed}
		}
		if blen > maxValueSize {
			return protocol.Verdict{Kind: protocol.VerdictValueTooLarge}
		}
		if next+blen+2 > len(buf) {
			return protocol.Verdict{Kind: protocol.VerdictNeedValue, Consumed: next}
		}
		if !bytes.Equal(buf[next+blen:next+blen+2], crlf) {
			return protocol.Verdict{Kind: protocol.VerdictError, Err: errMalformed}
		}
		args = append(args, buf[next:next+blen])
		off = next + blen + 2
	}

	return buildCommand(args, off)
}

func buildCommand(args [][]byte, consumed int) protocol.Verdict {
	if len(args) == 0 {
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: consumed, Err: ErrBadArity}
	}
	name := strings.ToUpper(string(args[0]))

	switch name {
	case "PING":
		cmd := protocol.Command{Op: protocol.OpPing}
		if len(args) > 1 {
			cmd.Value = append([]byte(nil), args[1]...)
		}
		return protocol.Verdict{Kind: protocol.VerdictComplete, Consumed: consumed, Command: cmd}

	case "GET":
		if len(args) != 2 {
			return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: consumed, Err: ErrBadArity}
		}
		return protocol.Verdict{Kind: protocol.VerdictComplete, Consumed: consumed,
			Command: protocol.Command{Op: protocol.OpGet, Keys: [][]byte{append([]byte(nil), args[1]...)}}}

	case "SET":
		return buildSet(args, consumed)

	case "DEL":
		if len(args) < 2 {
			return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: consumed, Err: ErrBadArity}
		}
		keys := make([][]byte, 0, len(args)-1)
		for _, k := range args[1:] {
			keys = append(keys, append([]byte(nil), k...))
		}
		return protocol.Verdict{Kind: protocol.VerdictComplete, Consumed: consumed,
			Command: protocol.Command{Op: protocol.OpDelete, Keys: keys}}

	case "HELLO":
		cmd := protocol.Command{Op: protocol.OpUnknown, Raw: []byte("HELLO")}
		if len(args) > 1 {
			cmd.Delta = parseProtoVer(args[1])
		}
		return protocol.Verdict{Kind: protocol.VerdictComplete, Consumed: consumed, Command: cmd}

	case "COMMAND":
		return protocol.Verdict{Kind: protocol.VerdictComplete, Consumed: consumed,
			Command: protocol.Command{Op: protocol.OpUnknown, Raw: []byte("COMMAND")}}

	default:
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: consumed, Err: ErrUnknownCmd}
	}
}

func parseProtoVer(b []byte) uint64 {
	n, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 2
	}
	return n
}

func buildSet(args [][]byte, consumed int) protocol.Verdict {
	if len(args) < 3 {
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: consumed, Err: ErrBadArity}
	}
	cmd := protocol.Command{
		Op:    protocol.OpSet,
		Keys:  [][]byte{append([]byte(nil), args[1]...)},
		Value: append([]byte(nil), args[2]...),
	}
	for i := 3; i < len(args); i++ {
		opt := strings.ToUpper(string(args[i]))
		switch opt {
		case "EX", "PX":
			if i+1 >= len(args) {
				return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: consumed, Err: ErrBadArity}
			}
			n, err := strconv.ParseInt(string(args[i+1]), 10, 64)
			if err != nil {
				return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: consumed, Err: ErrSyntax}
			}
			if opt == "EX" {
				cmd.Exptime = time.Now().Unix() + n
			} else {
				cmd.Exptime = time.Now().Unix() + n/1000
			}
			i++
		case "NX":
			cmd.Op = protocol.OpAdd
		case "XX":
			cmd.Op = protocol.OpReplace
		default:
			return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: consumed, Err: ErrSyntax}
		}
	}
	return protocol.Verdict{Kind: protocol.VerdictComplete, Consumed: consumed, Command: cmd}
}

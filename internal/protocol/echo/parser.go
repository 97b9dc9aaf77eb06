// Package echo implements the synthetic length-prefixed echo calibration
// protocol: a decimal length line followed by exactly that many raw bytes,
// echoed back byte-for-byte.
package echo

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/ehrlich-b/corecache/internal/protocol"
)

var crlf = []byte("\r\n")

var (
	errBadLength = errors.New("echo: invalid length header")
)

// Parser implements protocol.Parser for the echo dialect.
type Parser struct{}

func (Parser) Parse(buf []byte, maxValueSize int) protocol.Verdict {
	idx := bytes.Index(buf, crlf)
	if idx < 0 {
		if len(buf) > 32 {
			return protocol.Verdict{Kind: protocol.VerdictError, Err: errBadLength}
		}
		return protocol.Verdict{Kind: protocol.VerdictIncomplete}
	}
	headerLen := idx + 2
	length, err := strconv.Atoi(string(buf[:idx]))
	if err != nil || length < 0 {
		return protocol.Verdict{Kind: protocol.VerdictError, Err: errBadLength}
	}
	if length > maxValueSize {
		return protocol.Verdict{Kind: protocol.VerdictValueTooLarge}
	}

	total := headerLen + length
	if len(buf) < total {
		return protocol.Verdict{Kind: protocol.VerdictNeedValue, Consumed: headerLen}
	}

	payload := append([]byte(nil), buf[headerLen:total]...)
	return protocol.Verdict{
		Kind:     protocol.VerdictComplete,
		Consumed: total,
		Command:  protocol.Command{Op: protocol.OpEcho, Value: payload},
	}
}

// Frame formats the length-prefixed reply for payload, identical in shape
// to the inbound framing.
func Frame(payload []byte) []byte {
	header := strconv.Itoa(len(payload)) + "\r\n"
	out := make([]byte, 0, len(header)+len(payload))
	out = append(out, header...)
	out = append(out, payload...)
	return out
}

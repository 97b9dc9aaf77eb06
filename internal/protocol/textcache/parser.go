// Package textcache implements the memcached-style text wire protocol:
// CRLF-delimited command lines, storage commands carrying a declared
// payload length followed by that many raw bytes and a trailing CRLF.
package textcache

import (
	"bytes"
	"strconv"

	"github.com/ehrlich-b/corecache/internal/constants"
	"github.com/ehrlich-b/corecache/internal/protocol"
)

// Parser implements protocol.Parser for the text cache dialect.
type Parser struct{}

var crlf = []byte("\r\n")

// Parse implements protocol.Parser. It is stateless: all in-progress
// accumulation lives on the caller's connection, not here.
func (Parser) Parse(buf []byte, maxValueSize int) protocol.Verdict {
	idx := bytes.Index(buf, crlf)
	if idx < 0 {
		if len(buf) > 8192 {
			// A command line this long without a terminator cannot be a
			// legitimate request; treat it as framing corruption rather
			// than buffering forever.
			return protocol.Verdict{Kind: protocol.VerdictError, Err: errFramingTooLong}
		}
		return protocol.Verdict{Kind: protocol.VerdictIncomplete}
	}

	line := buf[:idx]
	headerLen := idx + 2
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrEmptyCommand}
	}

	cmd := bytesToLowerString(fields[0])

	switch cmd {
	case "get", "gets":
		return parseRetrieval(cmd, fields, headerLen)
	case "set", "add", "replace", "append", "prepend":
		return parseStorage(cmd, fields, buf, headerLen, maxValueSize)
	case "cas":
		return parseCAS(fields, buf, headerLen, maxValueSize)
	case "incr", "decr":
		return parseIncrDecr(cmd, fields, headerLen)
	case "delete":
		return parseDelete(fields, headerLen)
	case "flush_all":
		return parseFlushAll(fields, headerLen)
	case "stats":
		return protocol.Verdict{Kind: protocol.VerdictComplete, Consumed: headerLen, Command: protocol.Command{Op: protocol.OpStats}}
	case "version":
		return protocol.Verdict{Kind: protocol.VerdictComplete, Consumed: headerLen, Command: protocol.Command{Op: protocol.OpVersion}}
	case "quit":
		return protocol.Verdict{Kind: protocol.VerdictComplete, Consumed: headerLen, Command: protocol.Command{Op: protocol.OpQuit}}
	default:
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrUnknownCommand}
	}
}

func bytesToLowerString(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func validKey(k []byte) bool {
	if len(k) == 0 || len(k) > constants.MaxKeyLength {
		return false
	}
	for _, c := range k {
		if c <= 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}

func parseRetrieval(cmd string, fields [][]byte, headerLen int) protocol.Verdict {
	if len(fields) < 2 {
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadArity}
	}
	keys := fields[1:]
	if len(keys) > constants.MaxMultiGetKeys {
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrTooManyKeys}
	}
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if !validKey(k) {
			return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadKey}
		}
		out = append(out, append([]byte(nil), k...))
	}
	op := protocol.OpGet
	if cmd == "gets" {
		op = protocol.OpGets
	}
	return protocol.Verdict{
		Kind:     protocol.VerdictComplete,
		Consumed: headerLen,
		Command:  protocol.Command{Op: op, Keys: out},
	}
}

func parseStorage(cmd string, fields [][]byte, buf []byte, headerLen int, maxValueSize int) protocol.Verdict {
	// <cmd> <key> <flags> <exptime> <bytes> [noreply]
	if len(fields) < 5 || len(fields) > 6 {
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadArity}
	}
	key := fields[1]
	if !validKey(key) {
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadKey}
	}
	flags, err1 := strconv.ParseUint(string(fields[2]), 10, 32)
	exptime, err2 := strconv.ParseInt(string(fields[3]), 10, 64)
	length, err3 := strconv.ParseInt(string(fields[4]), 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || length < 0 {
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadNumeric}
	}
	noreply := false
	if len(fields) == 6 {
		if string(fields[5]) != "noreply" {
			return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadArity}
		}
		noreply = true
	}

	if int(length) > maxValueSize {
		return protocol.Verdict{Kind: protocol.VerdictValueTooLarge}
	}

	total := headerLen + int(length) + 2
	if len(buf) < total {
		return protocol.Verdict{Kind: protocol.VerdictNeedValue, Consumed: headerLen}
	}
	value := buf[headerLen : headerLen+int(length)]
	if !bytes.Equal(buf[headerLen+int(length):total], crlf) {
		return protocol.Verdict{Kind: protocol.VerdictError, Err: errBadTrailer}
	}

	var op protocol.Op
	switch cmd {
	case "set":
		op = protocol.OpSet
	case "add":
		op = protocol.OpAdd
	case "replace":
		op = protocol.OpReplace
	case "append":
		op = protocol.OpAppend
	case "prepend":
		op = protocol.OpPrepend
	}

	return protocol.Verdict{
		Kind:     protocol.VerdictComplete,
		Consumed: total,
		Command: protocol.Command{
			Op: op, Keys: [][]byte{append([]byte(nil), key...)},
			Value: append([]byte(nil), value...), Flags: uint32(flags), Exptime: exptime, NoReply: noreply,
		},
	}
}

func parseCAS(fields [][]byte, buf []byte, headerLen int, maxValueSize int) protocol.Verdict {
	// cas <key> <flags> <exptime> <bytes> <cas> [noreply]
	if len(fields) < 6 || len(fields) > 7 {
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadArity}
	}
	key := fields[1]
	if !validKey(key) {
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadKey}
	}
	flags, err1 := strconv.ParseUint(string(fields[2]), 10, 32)
	exptime, err2 := strconv.ParseInt(string(fields[3]), 10, 64)
	length, err3 := strconv.ParseInt(string(fields[4]), 10, 64)
	casTok, err4 := strconv.ParseUint(string(fields[5]), 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || length < 0 {
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadNumeric}
	}
	noreply := false
	if len(fields) == 7 {
		if string(fields[6]) != "noreply" {
			return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadArity}
		}
		noreply = true
	}

	if int(length) > maxValueSize {
		return protocol.Verdict{Kind: protocol.VerdictValueTooLarge}
	}

	total := headerLen + int(length) + 2
	if len(buf) < total {
		return protocol.Verdict{Kind: protocol.VerdictNeedValue, Consumed: headerLen}
	}
	value := buf[headerLen : headerLen+int(length)]
	if !bytes.Equal(buf[headerLen+int(length):total], crlf) {
		return protocol.Verdict{Kind: protocol.VerdictError, Err: errBadTrailer}
	}

	return protocol.Verdict{
		Kind:     protocol.VerdictComplete,
		Consumed: total,
		Command: protocol.Command{
			Op: protocol.OpCAS, Keys: [][]byte{append([]byte(nil), key...)},
			Value: append([]byte(nil), value...), Flags: uint32(flags), Exptime: exptime,
			CAS: casTok, NoReply: noreply,
		},
	}
}

func parseIncrDecr(cmd string, fields [][]byte, headerLen int) protocol.Verdict {
	if len(fields) < 3 || len(fields) > 4 {
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadArity}
	}
	key := fields[1]
	if !validKey(key) {
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadKey}
	}
	delta, err := strconv.ParseUint(string(fields[2]), 10, 64)
	if err != nil {
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadNumeric}
	}
	noreply := false
	if len(fields) == 4 {
		if string(fields[3]) != "noreply" {
			return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadArity}
		}
		noreply = true
	}
	op := protocol.OpIncr
	if cmd == "decr" {
		op = protocol.OpDecr
	}
	return protocol.Verdict{
		Kind:     protocol.VerdictComplete,
		Consumed: headerLen,
		Command:  protocol.Command{Op: op, Keys: [][]byte{append([]byte(nil), key...)}, Delta: delta, NoReply: noreply},
	}
}

func parseDelete(fields [][]byte, headerLen int) protocol.Verdict {
	if len(fields) < 2 || len(fields) > 3 {
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadArity}
	}
	key := fields[1]
	if !validKey(key) {
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadKey}
	}
	noreply := false
	if len(fields) == 3 {
		if string(fields[2]) != "noreply" {
			return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadArity}
		}
		noreply = true
	}
	return protocol.Verdict{
		Kind:     protocol.VerdictComplete,
		Consumed: headerLen,
		Command:  protocol.Command{Op: protocol.OpDelete, Keys: [][]byte{append([]byte(nil), key...)}, NoReply: noreply},
	}
}

func parseFlushAll(fields [][]byte, headerLen int) protocol.Verdict {
	var delay int64
	noreply := false
	rest := fields[1:]
	if len(rest) > 0 && string(rest[len(rest)-1]) == "noreply" {
		noreply = true
		rest = rest[:len(rest)-1]
	}
	if len(rest) == 1 {
		d, err := strconv.ParseInt(string(rest[0]), 10, 64)
		if err != nil || d < 0 {
			return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadNumeric}
		}
		delay = d
	} else if len(rest) > 1 {
		return protocol.Verdict{Kind: protocol.VerdictSemanticError, Consumed: headerLen, Err: ErrBadArity}
	}
	return protocol.Verdict{
		Kind:     protocol.VerdictComplete,
		Consumed: headerLen,
		Command:  protocol.Command{Op: protocol.OpFlushAll, FlushDelaySeconds: delay, NoReply: noreply},
	}
}

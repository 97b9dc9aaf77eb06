package runtime

import (
	"github.com/ehrlich-b/corecache/internal/conn"
	"github.com/ehrlich-b/corecache/internal/protocol"
	"github.com/ehrlich-b/corecache/internal/protocol/echo"
	"github.com/ehrlich-b/corecache/internal/protocol/ping"
	"github.com/ehrlich-b/corecache/internal/protocol/resp"
	"github.com/ehrlich-b/corecache/internal/protocol/textcache"
)

// ParserFor selects the stateless wire parser for a connection's pinned
// protocol. Both backends call this once per worker (the parser itself
// holds no state) rather than duplicating the switch.
func ParserFor(p conn.Protocol) protocol.Parser {
	switch p {
	case conn.ProtocolRESP:
		return resp.Parser{}
	case conn.ProtocolPing:
		return ping.Parser{}
	case conn.ProtocolEcho:
		return echo.Parser{}
	default:
		return textcache.Parser{}
	}
}

// ErrorReplyFor builds the protocol-appropriate error line for a fatal
// parse outcome (spec.md §4.4/§7: "caller emits a protocol-appropriate
// error and closes"). Ping and echo have no error framing defined by
// spec — both are synthetic calibration protocols with no error verb in
// their wire format — so callers close those connections silently.
func ErrorReplyFor(p conn.Protocol, fatal error) []byte {
	switch p {
	case conn.ProtocolTextCache:
		switch fatal {
		case ErrValueTooLarge:
			return textcache.ClientError("value too large")
		case ErrProtocolViolation:
			return textcache.Error()
		}
	case conn.ProtocolRESP:
		switch fatal {
		case ErrValueTooLarge:
			return resp.Error("value too large")
		case ErrProtocolViolation:
			return resp.Error("Protocol error")
		}
	}
	return nil
}

// SemanticReplyFor builds the protocol-appropriate error line for a
// semantic parse outcome (spec.md §7: "syntactically valid but logically
// invalid ... emit error reply; keep connection open"). Unlike
// ErrorReplyFor's two fatal outcomes, the caller does not close the
// connection afterward — ping and echo have no VerdictSemanticError
// sites in their parsers, so they never reach this function.
func SemanticReplyFor(p conn.Protocol, err error) []byte {
	switch p {
	case conn.ProtocolTextCache:
		switch err {
		case textcache.ErrUnknownCommand, textcache.ErrEmptyCommand:
			return textcache.Error()
		case textcache.ErrTooManyKeys:
			return textcache.ClientError("too many keys in multiget")
		case textcache.ErrBadArity, textcache.ErrBadKey, textcache.ErrBadNumeric:
			return textcache.ClientError("bad command line format")
		}
	case conn.ProtocolRESP:
		switch err {
		case resp.ErrUnknownCmd:
			return resp.Error("unknown command")
		case resp.ErrBadArity:
			return resp.Error("wrong number of arguments")
		case resp.ErrSyntax:
			return resp.Error("syntax error")
		}
	}
	return nil
}

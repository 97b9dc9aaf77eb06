// Package protocol defines the shared vocabulary every wire-format parser
// speaks: a Command the dispatcher can execute, and a Verdict describing
// how much of an inbound buffer a parse attempt consumed. Each concrete
// dialect (textcache, resp, ping, echo) lives in its own subpackage and
// implements the Parser interface.
package protocol

// Op identifies which storage operation a parsed Command invokes.
type Op int

const (
	OpGet Op = iota
	OpGets
	OpSet
	OpAdd
	OpReplace
	OpAppend
	OpPrepend
	OpCAS
	OpDelete
	OpIncr
	OpDecr
	OpFlushAll
	OpStats
	OpVersion
	OpQuit
	OpPing
	OpEcho
	OpUnknown
)

// Command is the dialect-neutral representation of one parsed request.
// Not every field is meaningful for every Op; parsers populate only what
// their dialect supports.
type Command struct {
	Op       Op
	Keys     [][]byte
	Value    []byte
	Flags    uint32
	Exptime  int64
	CAS      uint64
	Delta    uint64
	NoReply  bool
	FlushDelaySeconds int64

	// Raw is set only by the RESP parser, for commands that parse as
	// OpUnknown but are answered without storage (HELLO, COMMAND).
	Raw []byte
}

// VerdictKind enumerates what a parser determined about the bytes it was
// given.
type VerdictKind int

const (
	// VerdictIncomplete means the buffer holds a partial command; the
	// caller must read more bytes before parsing again.
	VerdictIncomplete VerdictKind = iota
	// VerdictNeedValue means a header parsed successfully and named a
	// value of a known length, but the value bytes themselves have not
	// all arrived yet.
	VerdictNeedValue
	// VerdictComplete means a full command parsed; Command and Consumed
	// are valid.
	VerdictComplete
	// VerdictError means the bytes violate the dialect's framing (the
	// parser cannot tell where the malformed command ends) and the
	// connection must be closed; the stream cannot be resynchronized.
	VerdictError
	// VerdictSemanticError means a command parsed with valid framing —
	// Consumed bytes are known and the stream stays in sync — but the
	// command itself is logically invalid (unknown verb, wrong arity,
	// bad key, non-numeric argument to a numeric op). The caller emits
	// an error reply and keeps the connection open for the next
	// pipelined command.
	VerdictSemanticError
	// VerdictValueTooLarge means a header named a value length exceeding
	// the configured admission ceiling; the connection must be closed
	// without waiting for the oversized payload to arrive.
	VerdictValueTooLarge
)

// Verdict is the result of one parse attempt.
type Verdict struct {
	Kind     VerdictKind
	Command  Command
	Consumed int   // bytes of the input consumed when Kind == VerdictComplete or VerdictSemanticError
	Err      error // set when Kind == VerdictError or VerdictSemanticError
}

// Parser parses one dialect's wire format. Implementations must be
// stateless across calls except for the RESP dialect's HELLO-driven
// protocol version, which the caller keeps on the connection
// (conn.Conn.RESP3) and passes to Dispatcher.Dispatch rather than
// parser-internal state.
type Parser interface {
	// Parse attempts to parse one command from buf. maxValueSize bounds
	// how large a value's declared length may be before the parser
	// reports VerdictValueTooLarge instead of VerdictNeedValue.
	Parse(buf []byte, maxValueSize int) Verdict
}

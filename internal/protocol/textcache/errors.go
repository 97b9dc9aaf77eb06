package textcache

import "errors"

// Semantic errors: the command line parsed cleanly (framing stayed in
// sync) but the command itself is invalid. Exported so the runtime layer
// can map them to the right error reply without re-deriving the message.
var (
	ErrEmptyCommand   = errors.New("textcache: empty command line")
	ErrUnknownCommand = errors.New("textcache: unknown command")
	ErrBadArity       = errors.New("textcache: wrong number of arguments")
	ErrBadKey         = errors.New("textcache: invalid key")
	ErrTooManyKeys    = errors.New("textcache: too many keys in multi-get")
	ErrBadNumeric     = errors.New("textcache: invalid numeric field")
)

// Framing errors: the bytes themselves desynchronize the stream, so the
// connection must close rather than continue to the next command.
var (
	errBadTrailer     = errors.New("textcache: missing value trailer")
	errFramingTooLong = errors.New("textcache: command line exceeds framing limit")
)

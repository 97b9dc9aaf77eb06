package textcache

import (
	"strconv"
)

// Reply builders. Each returns the exact on-wire bytes for a given
// outcome; dispatch.Dispatcher calls these rather than hand-formatting
// strings so the byte-exact framing required by spec stays in one place.

func Stored() []byte    { return []byte("STORED\r\n") }
func NotStored() []byte { return []byte("NOT_STORED\r\n") }
func Deleted() []byte   { return []byte("DELETED\r\n") }
func NotFound() []byte  { return []byte("NOT_FOUND\r\n") }
func Exists() []byte    { return []byte("EXISTS\r\n") }
func Ok() []byte        { return []byte("OK\r\n") }
func Error() []byte     { return []byte("ERROR\r\n") }

func ClientError(msg string) []byte {
	return []byte("CLIENT_ERROR " + msg + "\r\n")
}

func ServerError(msg string) []byte {
	return []byte("SERVER_ERROR " + msg + "\r\n")
}

func Version(v string) []byte {
	return []byte("VERSION " + v + "\r\n")
}

func NumericReply(n uint64) []byte {
	return []byte(strconv.FormatUint(n, 10) + "\r\n")
}

// Value formats one VALUE line plus its payload and trailing CRLF, for
// get/gets. withCAS controls whether the cas token is appended (gets).
func Value(key string, flags uint32, value []byte, cas uint64, withCAS bool) []byte {
	head := "VALUE " + key + " " + strconv.FormatUint(uint64(flags), 10) + " " + strconv.Itoa(len(value))
	if withCAS {
		head += " " + strconv.FormatUint(cas, 10)
	}
	head += "\r\n"
	out := make([]byte, 0, len(head)+len(value)+2+5)
	out = append(out, head...)
	out = append(out, value...)
	out = append(out, "\r\n"...)
	return out
}

func End() []byte { return []byte("END\r\n") }

// Stats formats the stats snapshot per the `STAT <name> <value>\r\n` ...
// `END\r\n` framing.
func Stats(snapshot map[string]string) []byte {
	out := make([]byte, 0, 32*len(snapshot)+5)
	for k, v := range snapshot {
		out = append(out, "STAT "...)
		out = append(out, k...)
		out = append(out, ' ')
		out = append(out, v...)
		out = append(out, "\r\n"...)
	}
	out = append(out, "END\r\n"...)
	return out
}

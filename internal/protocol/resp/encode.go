package resp

import "strconv"

// SimpleString encodes a `+...` frame.
func SimpleString(s string) []byte {
	return []byte("+" + s + "\r\n")
}

// Error encodes a `-ERR ...` frame.
func Error(msg string) []byte {
	return []byte("-ERR " + msg + "\r\n")
}

// Integer encodes a `:...` frame.
func Integer(n int64) []byte {
	return []byte(":" + strconv.FormatInt(n, 10) + "\r\n")
}

// BulkString encodes a `$len\r\ndata\r\n` frame.
func BulkString(data []byte) []byte {
	header := "$" + strconv.Itoa(len(data)) + "\r\n"
	out := make([]byte, 0, len(header)+len(data)+2)
	out = append(out, header...)
	out = append(out, data...)
	out = append(out, "\r\n"...)
	return out
}

// NullBulkString encodes RESP2's `$-1\r\n` null, which is also a valid
// RESP3 reply (RESP3's dedicated `_\r\n` null is not required by spec).
func NullBulkString() []byte {
	return []byte("$-1\r\n")
}

// Array encodes a `*n\r\n` header followed by the caller's already-encoded
// elements.
func Array(elements ...[]byte) []byte {
	header := "*" + strconv.Itoa(len(elements)) + "\r\n"
	size := len(header)
	for _, e := range elements {
		size += len(e)
	}
	out := make([]byte, 0, size)
	out = append(out, header...)
	for _, e := range elements {
		out = append(out, e...)
	}
	return out
}

// EmptyArray encodes `*0\r\n`, the reply this server chooses for COMMAND
// (a real command table is out of scope; an empty array is a valid,
// well-formed reply real clients handle without special-casing).
func EmptyArray() []byte {
	return []byte("*0\r\n")
}

// Hello encodes the HELLO handshake reply as a RESP map-shaped (RESP3) or
// flat array (RESP2) response describing server identity. proto is the
// negotiated protocol version (2 or 3).
func Hello(proto uint64, version string) []byte {
	pairs := [][2]string{
		{"server", "corecache"},
		{"version", version},
		{"proto", strconv.FormatUint(proto, 10)},
		{"mode", "standalone"},
		{"role", "master"},
	}
	elements := make([][]byte, 0, len(pairs)*2)
	for _, kv := range pairs {
		elements = append(elements, BulkString([]byte(kv[0])), BulkString([]byte(kv[1])))
	}
	if proto >= 3 {
		header := "%" + strconv.Itoa(len(pairs)) + "\r\n"
		size := len(header)
		for _, e := range elements {
			size += len(e)
		}
		out := make([]byte, 0, size)
		out = append(out, header...)
		for _, e := range elements {
			out = append(out, e...)
		}
		return out
	}
	return Array(elements...)
}

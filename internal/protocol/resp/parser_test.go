package resp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/corecache/internal/protocol"
)

func TestParseSet(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n"), 1<<20)
	require.Equal(t, protocol.VerdictComplete, v.Kind)
	assert.Equal(t, protocol.OpSet, v.Command.Op)
	assert.Equal(t, "key", string(v.Command.Keys[0]))
	assert.Equal(t, "value", string(v.Command.Value))
}

func TestParseGet(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("*2\r\n$3\r\nGET\r\n$3\r\nkey\r\n"), 1<<20)
	require.Equal(t, protocol.VerdictComplete, v.Kind)
	assert.Equal(t, protocol.OpGet, v.Command.Op)
	assert.Equal(t, "key", string(v.Command.Keys[0]))
}

func TestEncodeNullBulkForMiss(t *testing.T) {
	assert.Equal(t, []byte("$-1\r\n"), NullBulkString())
}

func TestParseDelMultiKey(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("*4\r\n$3\r\nDEL\r\n$1\r\na\r\n$1\r\nb\r\n$1\r\nc\r\n"), 1<<20)
	require.Equal(t, protocol.VerdictComplete, v.Kind)
	assert.Equal(t, protocol.OpDelete, v.Command.Op)
	require.Len(t, v.Command.Keys, 3)
}

func TestParseSetWithNX(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("*4\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n$2\r\nNX\r\n"), 1<<20)
	require.Equal(t, protocol.VerdictComplete, v.Kind)
	assert.Equal(t, protocol.OpAdd, v.Command.Op)
}

func TestParseHello(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("*2\r\n$5\r\nHELLO\r\n$1\r\n3\r\n"), 1<<20)
	require.Equal(t, protocol.VerdictComplete, v.Kind)
	assert.Equal(t, uint64(3), v.Command.Delta)
}

func TestParseIncompleteArray(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("*2\r\n$3\r\nGET\r\n$3\r\nke"), 1<<20)
	assert.Equal(t, protocol.VerdictNeedValue, v.Kind)
}

func TestParseNotAnArray(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("+PING\r\n"), 1<<20)
	assert.Equal(t, protocol.VerdictError, v.Kind)
}

func TestParseUnknownCommandIsSemanticNotFraming(t *testing.T) {
	p := Parser{}
	buf := []byte("*1\r\n$5\r\nBOGUS\r\n")
	v := p.Parse(buf, 1<<20)
	require.Equal(t, protocol.VerdictSemanticError, v.Kind)
	assert.Equal(t, ErrUnknownCmd, v.Err)
	assert.Equal(t, len(buf), v.Consumed)
}

func TestParseSetBadOptionIsSemanticAndStaysInSync(t *testing.T) {
	p := Parser{}
	buf := []byte("*4\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n$4\r\nBOGU\r\n*2\r\n$3\r\nGET\r\n$1\r\nk\r\n")
	v1 := p.Parse(buf, 1<<20)
	require.Equal(t, protocol.VerdictSemanticError, v1.Kind)
	assert.Equal(t, ErrSyntax, v1.Err)

	v2 := p.Parse(buf[v1.Consumed:], 1<<20)
	require.Equal(t, protocol.VerdictComplete, v2.Kind)
	assert.Equal(t, protocol.OpGet, v2.Command.Op)
}

func TestHelloEncodingRESP2VsRESP3(t *testing.T) {
	r2 := Hello(2, "0.1.0")
	r3 := Hello(3, "0.1.0")
	assert.Equal(t, byte('*'), r2[0])
	assert.Equal(t, byte('%'), r3[0])
}

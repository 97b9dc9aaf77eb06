package textcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/corecache/internal/protocol"
)

func TestParseSet(t *testing.T) {
	p := Parser{}
	buf := []byte("set foo 0 0 3\r\nbar\r\n")
	v := p.Parse(buf, 1<<20)

	require.Equal(t, protocol.VerdictComplete, v.Kind)
	assert.Equal(t, len(buf), v.Consumed)
	assert.Equal(t, protocol.OpSet, v.Command.Op)
	assert.Equal(t, "foo", string(v.Command.Keys[0]))
	assert.Equal(t, "bar", string(v.Command.Value))
}

func TestParseSetIncomplete(t *testing.T) {
	p := Parser{}
	// header complete but payload not fully arrived
	v := p.Parse([]byte("set foo 0 0 3\r\nba"), 1<<20)
	assert.Equal(t, protocol.VerdictNeedValue, v.Kind)
}

func TestParseGetMultiKey(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("get a b c\r\n"), 1<<20)
	require.Equal(t, protocol.VerdictComplete, v.Kind)
	assert.Equal(t, protocol.OpGet, v.Command.Op)
	require.Len(t, v.Command.Keys, 3)
}

func TestParseGetTooManyKeys(t *testing.T) {
	p := Parser{}
	line := "get"
	for i := 0; i < 65; i++ {
		line += " k" + string(rune('a'+i%26))
	}
	line += "\r\n"
	v := p.Parse([]byte(line), 1<<20)
	assert.Equal(t, protocol.VerdictSemanticError, v.Kind)
	assert.Equal(t, ErrTooManyKeys, v.Err)
}

func TestParseValueTooLarge(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("set big 0 0 20480\r\n"), 10240)
	assert.Equal(t, protocol.VerdictValueTooLarge, v.Kind)
}

func TestParseCAS(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("cas foo 0 0 3 42\r\nbaz\r\n"), 1<<20)
	require.Equal(t, protocol.VerdictComplete, v.Kind)
	assert.Equal(t, protocol.OpCAS, v.Command.Op)
	assert.Equal(t, uint64(42), v.Command.CAS)
}

func TestParseIncrDecr(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("incr n 5\r\n"), 1<<20)
	require.Equal(t, protocol.VerdictComplete, v.Kind)
	assert.Equal(t, protocol.OpIncr, v.Command.Op)
	assert.Equal(t, uint64(5), v.Command.Delta)
}

func TestParseDeleteNoreply(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("delete k noreply\r\n"), 1<<20)
	require.Equal(t, protocol.VerdictComplete, v.Kind)
	assert.True(t, v.Command.NoReply)
}

func TestParseFlushAllWithDelay(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("flush_all 30\r\n"), 1<<20)
	require.Equal(t, protocol.VerdictComplete, v.Kind)
	assert.Equal(t, int64(30), v.Command.FlushDelaySeconds)
}

func TestParseIncompleteLine(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("get fo"), 1<<20)
	assert.Equal(t, protocol.VerdictIncomplete, v.Kind)
}

func TestParseUnknownCommand(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("bogus\r\n"), 1<<20)
	assert.Equal(t, protocol.VerdictSemanticError, v.Kind)
	assert.Equal(t, ErrUnknownCommand, v.Err)
	assert.Equal(t, len("bogus\r\n"), v.Consumed)
}

func TestParseUnknownCommandThenValidCommandStaysInSync(t *testing.T) {
	p := Parser{}
	buf := []byte("bogus\r\nget a\r\n")
	v1 := p.Parse(buf, 1<<20)
	require.Equal(t, protocol.VerdictSemanticError, v1.Kind)
	v2 := p.Parse(buf[v1.Consumed:], 1<<20)
	require.Equal(t, protocol.VerdictComplete, v2.Kind)
	assert.Equal(t, "a", string(v2.Command.Keys[0]))
}

func TestParserDeterminismAcrossPrefixes(t *testing.T) {
	p := Parser{}
	full := []byte("get a\r\nget b\r\n")
	v1 := p.Parse(full, 1<<20)
	require.Equal(t, protocol.VerdictComplete, v1.Kind)
	v2 := p.Parse(full[v1.Consumed:], 1<<20)
	require.Equal(t, protocol.VerdictComplete, v2.Kind)
	assert.Equal(t, "b", string(v2.Command.Keys[0]))
}

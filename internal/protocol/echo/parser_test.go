package echo

import (
	"bytes"
	"crypto/md5"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/corecache/internal/protocol"
)

func TestEcho32KiB(t *testing.T) {
	payload := make([]byte, 32*1024)
	rand.New(rand.NewSource(1)).Read(payload)
	sum := md5.Sum(payload)

	framed := Frame(payload)
	buf := append([]byte("32768\r\n"), payload...)
	require.Equal(t, framed, buf)

	p := Parser{}
	v := p.Parse(buf, 1<<20)
	require.Equal(t, protocol.VerdictComplete, v.Kind)
	assert.Equal(t, len(buf), v.Consumed)
	assert.Equal(t, sum, md5.Sum(v.Command.Value))
}

func TestEchoIncompletePayload(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("10\r\nabc"), 1<<20)
	assert.Equal(t, protocol.VerdictNeedValue, v.Kind)
}

func TestEchoValueTooLarge(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("999999\r\n"), 1024)
	assert.Equal(t, protocol.VerdictValueTooLarge, v.Kind)
}

func TestEchoBadLength(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("notanumber\r\n"), 1024)
	assert.Equal(t, protocol.VerdictError, v.Kind)
}

func TestEchoEmptyPayload(t *testing.T) {
	p := Parser{}
	v := p.Parse([]byte("0\r\n"), 1024)
	require.Equal(t, protocol.VerdictComplete, v.Kind)
	assert.True(t, bytes.Equal(v.Command.Value, []byte{}))
}

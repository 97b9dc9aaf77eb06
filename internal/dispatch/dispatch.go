// Package dispatch implements the request dispatcher (spec.md §4.5): it
// takes a parsed protocol.Command and a Storage handle and produces a
// Result telling the I/O layer what to emit. It never retains references
// into the caller's parse buffer past the call that produced the command,
// since protocol.Command fields are already copies by the time a parser
// returns VerdictComplete.
package dispatch

import (
	"strconv"
	"time"

	"github.com/ehrlich-b/corecache/internal/bufpool"
	"github.com/ehrlich-b/corecache/internal/conn"
	"github.com/ehrlich-b/corecache/internal/constants"
	"github.com/ehrlich-b/corecache/internal/interfaces"
	"github.com/ehrlich-b/corecache/internal/protocol"
	"github.com/ehrlich-b/corecache/internal/protocol/echo"
	"github.com/ehrlich-b/corecache/internal/protocol/ping"
	"github.com/ehrlich-b/corecache/internal/protocol/resp"
	"github.com/ehrlich-b/corecache/internal/protocol/textcache"
)

// Kind enumerates what the I/O layer must do with a dispatch Result.
type Kind int

const (
	KindResponse Kind = iota
	KindLargeResponse
	KindNoReply
	KindClose
)

// Result is what Dispatch produces for one parsed command.
type Result struct {
	Kind  Kind
	Bytes []byte
	Chain *bufpool.Chain
}

// Dispatcher binds a Storage handle and a wire dialect together; one
// Dispatcher instance is shared read-only across all of a worker's
// connections speaking the same protocol.
type Dispatcher struct {
	Storage  interfaces.Storage
	Protocol conn.Protocol
	Pool     *bufpool.Pool

	// MaxChainBuffers bounds how many pool buffers a large-response
	// BufferChain may hold, the same ceil(max_value_size/buffer_size)
	// figure the read side uses via WorkerConfig.MaxChainBuffers — so a
	// deployment's configured -max_value_size/-buffer_size (not the
	// compiled-in defaults) governs how large a GET/ECHO reply chain may
	// legitimately grow.
	MaxChainBuffers int
}

// New creates a Dispatcher for one wire protocol. maxChainBuffers is the
// worker's configured chain-chunk ceiling (WorkerConfig.MaxChainBuffers).
func New(storage interfaces.Storage, proto conn.Protocol, pool *bufpool.Pool, maxChainBuffers int) *Dispatcher {
	return &Dispatcher{Storage: storage, Protocol: proto, Pool: pool, MaxChainBuffers: maxChainBuffers}
}

// Dispatch executes cmd against the Storage collaborator and returns the
// Result the caller's event loop should act on. resp3 only matters for
// the RESP dialect's HELLO negotiation.
func (d *Dispatcher) Dispatch(cmd protocol.Command, resp3 *bool) Result {
	switch d.Protocol {
	case conn.ProtocolTextCache:
		return d.dispatchTextCache(cmd)
	case conn.ProtocolRESP:
		return d.dispatchRESP(cmd, resp3)
	case conn.ProtocolPing:
		return d.dispatchPing(cmd)
	case conn.ProtocolEcho:
		return d.dispatchEcho(cmd)
	default:
		return Result{Kind: KindClose}
	}
}

func respond(b []byte, noreply bool) Result {
	if noreply {
		return Result{Kind: KindNoReply}
	}
	return Result{Kind: KindResponse, Bytes: b}
}

// maxInlineResponse is the largest reply this dispatcher will build as a
// single heap slice; longer replies (large GET values) go through a
// BufferChain instead, per spec.md §4.5.
const maxInlineResponse = 8192

func (d *Dispatcher) dispatchTextCache(cmd protocol.Command) Result {
	switch cmd.Op {
	case protocol.OpSet:
		err := d.Storage.Set(cmd.Keys[0], cmd.Value, cmd.Flags, cmd.Exptime)
		if err != nil {
			return respond(textcache.ServerError(err.Error()), cmd.NoReply)
		}
		return respond(textcache.Stored(), cmd.NoReply)

	case protocol.OpAdd:
		r, err := d.Storage.Add(cmd.Keys[0], cmd.Value, cmd.Flags, cmd.Exptime)
		if err != nil {
			return respond(textcache.ServerError(err.Error()), cmd.NoReply)
		}
		if r == interfaces.StoreStored {
			return respond(textcache.Stored(), cmd.NoReply)
		}
		return respond(textcache.NotStored(), cmd.NoReply)

	case protocol.OpReplace:
		r, err := d.Storage.Replace(cmd.Keys[0], cmd.Value, cmd.Flags, cmd.Exptime)
		if err != nil {
			return respond(textcache.ServerError(err.Error()), cmd.NoReply)
		}
		if r == interfaces.StoreStored {
			return respond(textcache.Stored(), cmd.NoReply)
		}
		return respond(textcache.NotStored(), cmd.NoReply)

	case protocol.OpAppend:
		r, err := d.Storage.Append(cmd.Keys[0], cmd.Value)
		return textCacheStoreResult(r, err, cmd.NoReply)

	case protocol.OpPrepend:
		r, err := d.Storage.Prepend(cmd.Keys[0], cmd.Value)
		return textCacheStoreResult(r, err, cmd.NoReply)

	case protocol.OpCAS:
		r, err := d.Storage.CAS(cmd.Keys[0], cmd.Value, cmd.Flags, cmd.Exptime, cmd.CAS)
		if err != nil {
			return respond(textcache.ServerError(err.Error()), cmd.NoReply)
		}
		switch r {
		case interfaces.CASStored:
			return respond(textcache.Stored(), cmd.NoReply)
		case interfaces.CASExists:
			return respond(textcache.Exists(), cmd.NoReply)
		default:
			return respond(textcache.NotFound(), cmd.NoReply)
		}

	case protocol.OpGet, protocol.OpGets:
		return d.dispatchTextCacheGet(cmd)

	case protocol.OpDelete:
		r, err := d.Storage.Delete(cmd.Keys[0])
		if err != nil {
			return respond(textcache.ServerError(err.Error()), cmd.NoReply)
		}
		if r == interfaces.DeleteDeleted {
			return respond(textcache.Deleted(), cmd.NoReply)
		}
		return respond(textcache.NotFound(), cmd.NoReply)

	case protocol.OpIncr, protocol.OpDecr:
		var r interfaces.IncrResult
		var err error
		if cmd.Op == protocol.OpIncr {
			r, err = d.Storage.Incr(cmd.Keys[0], cmd.Delta)
		} else {
			r, err = d.Storage.Decr(cmd.Keys[0], cmd.Delta)
		}
		if err != nil {
			return respond(textcache.ServerError(err.Error()), cmd.NoReply)
		}
		if !r.Found {
			return respond(textcache.NotFound(), cmd.NoReply)
		}
		if r.NonNumeric {
			return respond(textcache.ClientError("cannot increment or decrement non-numeric value"), cmd.NoReply)
		}
		return respond(textcache.NumericReply(r.Value), cmd.NoReply)

	case protocol.OpFlushAll:
		d.Storage.FlushAll(time.Duration(cmd.FlushDelaySeconds) * time.Second)
		return respond(textcache.Ok(), cmd.NoReply)

	case protocol.OpStats:
		return Result{Kind: KindResponse, Bytes: textcache.Stats(d.Storage.Stats())}

	case protocol.OpVersion:
		return Result{Kind: KindResponse, Bytes: textcache.Version(constants.Version)}

	case protocol.OpQuit:
		return Result{Kind: KindClose}

	default:
		return Result{Kind: KindResponse, Bytes: textcache.Error()}
	}
}

func textCacheStoreResult(r interfaces.StoreResult, err error, noreply bool) Result {
	if err != nil {
		return respond(textcache.ServerError(err.Error()), noreply)
	}
	if r == interfaces.StoreStored {
		return respond(textcache.Stored(), noreply)
	}
	return respond(textcache.NotStored(), noreply)
}

func (d *Dispatcher) dispatchTextCacheGet(cmd protocol.Command) Result {
	withCAS := cmd.Op == protocol.OpGets
	total := 0
	parts := make([][]byte, 0, len(cmd.Keys)+1)
	for _, k := range cmd.Keys {
		e, ok := d.Storage.Get(k)
		if !ok {
			continue
		}
		line := textcache.Value(string(k), e.Flags, e.Value, e.CAS, withCAS)
		parts = append(parts, line)
		total += len(line)
	}
	parts = append(parts, textcache.End())
	total += len(textcache.End())

	if total <= maxInlineResponse {
		out := make([]byte, 0, total)
		for _, p := range parts {
			out = append(out, p...)
		}
		return Result{Kind: KindResponse, Bytes: out}
	}

	maxChunks := d.MaxChainBuffers
	chain := bufpool.NewChain(d.Pool, maxChunks)
	for _, p := range parts {
		if !chain.Append(p) {
			chain.Release()
			return respond(textcache.ServerError("out of memory"), false)
		}
	}
	return Result{Kind: KindLargeResponse, Chain: chain}
}

func (d *Dispatcher) dispatchRESP(cmd protocol.Command, resp3 *bool) Result {
	switch cmd.Op {
	case protocol.OpPing:
		if cmd.Value != nil {
			return Result{Kind: KindResponse, Bytes: resp.BulkString(cmd.Value)}
		}
		return Result{Kind: KindResponse, Bytes: resp.SimpleString("PONG")}

	case protocol.OpSet, protocol.OpAdd, protocol.OpReplace:
		var ok bool
		var err error
		switch cmd.Op {
		case protocol.OpSet:
			err = d.Storage.Set(cmd.Keys[0], cmd.Value, cmd.Flags, cmd.Exptime)
			ok = err == nil
		case protocol.OpAdd:
			var r interfaces.StoreResult
			r, err = d.Storage.Add(cmd.Keys[0], cmd.Value, cmd.Flags, cmd.Exptime)
			ok = err == nil && r == interfaces.StoreStored
		case protocol.OpReplace:
			var r interfaces.StoreResult
			r, err = d.Storage.Replace(cmd.Keys[0], cmd.Value, cmd.Flags, cmd.Exptime)
			ok = err == nil && r == interfaces.StoreStored
		}
		if err != nil {
			return Result{Kind: KindResponse, Bytes: resp.Error(err.Error())}
		}
		if !ok {
			return Result{Kind: KindResponse, Bytes: resp.NullBulkString()}
		}
		return Result{Kind: KindResponse, Bytes: resp.SimpleString("OK")}

	case protocol.OpGet:
		e, ok := d.Storage.Get(cmd.Keys[0])
		if !ok {
			return Result{Kind: KindResponse, Bytes: resp.NullBulkString()}
		}
		if len(e.Value) <= maxInlineResponse {
			return Result{Kind: KindResponse, Bytes: resp.BulkString(e.Value)}
		}
		maxChunks := d.MaxChainBuffers
		chain := bufpool.NewChain(d.Pool, maxChunks)
		header := []byte("$" + strconv.Itoa(len(e.Value)) + "\r\n")
		if !chain.Append(header) || !chain.Append(e.Value) || !chain.Append([]byte("\r\n")) {
			chain.Release()
			return Result{Kind: KindResponse, Bytes: resp.Error("out of memory")}
		}
		return Result{Kind: KindLargeResponse, Chain: chain}

	case protocol.OpDelete:
		deleted := int64(0)
		for _, k := range cmd.Keys {
			r, err := d.Storage.Delete(k)
			if err == nil && r == interfaces.DeleteDeleted {
				deleted++
			}
		}
		return Result{Kind: KindResponse, Bytes: resp.Integer(deleted)}

	case protocol.OpUnknown:
		if string(cmd.Raw) == "HELLO" {
			proto := cmd.Delta
			if proto == 0 {
				proto = 2
			}
			*resp3 = proto >= 3
			return Result{Kind: KindResponse, Bytes: resp.Hello(proto, constants.Version)}
		}
		if string(cmd.Raw) == "COMMAND" {
			return Result{Kind: KindResponse, Bytes: resp.EmptyArray()}
		}
		return Result{Kind: KindResponse, Bytes: resp.Error("unknown command")}

	default:
		return Result{Kind: KindResponse, Bytes: resp.Error("unsupported command")}
	}
}

func (d *Dispatcher) dispatchPing(cmd protocol.Command) Result {
	switch cmd.Op {
	case protocol.OpPing:
		return Result{Kind: KindResponse, Bytes: ping.Pong()}
	case protocol.OpQuit:
		return Result{Kind: KindClose}
	default:
		return Result{Kind: KindClose}
	}
}

func (d *Dispatcher) dispatchEcho(cmd protocol.Command) Result {
	if cmd.Op != protocol.OpEcho {
		return Result{Kind: KindClose}
	}
	framed := echo.Frame(cmd.Value)
	if len(framed) <= maxInlineResponse {
		return Result{Kind: KindResponse, Bytes: framed}
	}
	maxChunks := d.MaxChainBuffers
	chain := bufpool.NewChain(d.Pool, maxChunks)
	if !chain.Append(framed) {
		chain.Release()
		return Result{Kind: KindClose}
	}
	return Result{Kind: KindLargeResponse, Chain: chain}
}

package engine

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kasuganosora/sheetengine/pkg/column"
	"github.com/kasuganosora/sheetengine/pkg/depgraph"
	"github.com/kasuganosora/sheetengine/pkg/formula"
	"github.com/kasuganosora/sheetengine/pkg/ids"
	"github.com/kasuganosora/sheetengine/pkg/wire"
)

// requestKey is the stable hash of one REQUEST() call's argument tuple: the
// exact bytes pkg/wire would put on the transport for [method, url, args],
// so two calls with byte-identical arguments always collide onto the same
// key with no separate canonicalization format to keep in sync with the
// wire codec, per spec.md §5.
type requestKey [sha256.Size]byte

// PendingValue is the stub a formula observes when its REQUEST() has no
// response yet. It is stored in the cell like any other value; the
// RespondToRequests user action that delivers the real result re-dirties
// every cell that saw the stub, and the follow-up recompute replaces it.
type PendingValue struct {
	Key         string
	Correlation string
}

type requestWaiter struct {
	node ids.Node
	row  ids.RowID
}

type requestEntry struct {
	done        bool
	correlation string
	value       interface{}
	waiters     []requestWaiter
}

// requestTable is the REQUEST() idempotency cache: identical argument
// tuples share one pending entry (and, once delivered, one result) for the
// engine instance's lifetime — there is no expiry, since a real deployment
// would back this with something TTL'd, out of scope here.
type requestTable struct {
	mu      sync.Mutex
	entries map[requestKey]*requestEntry
	byHex   map[string]requestKey
}

func newRequestTable() *requestTable {
	return &requestTable{
		entries: make(map[requestKey]*requestEntry),
		byHex:   make(map[string]requestKey),
	}
}

func hashRequestArgs(method, url string, args []interface{}) (requestKey, error) {
	var buf bytes.Buffer
	body := wire.CallBody("REQUEST", method, url, args)
	if err := wire.Encode(&buf, body); err != nil {
		return requestKey{}, fmt.Errorf("engine: hashing request args: %w", err)
	}
	return sha256.Sum256(buf.Bytes()), nil
}

// RequestKey returns the stable hex key for a REQUEST() argument tuple —
// the key a RespondToRequests user action addresses its responses to.
func (e *Engine) RequestKey(method, url string, args []interface{}) (string, error) {
	key, err := hashRequestArgs(method, url, args)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key[:]), nil
}

// Request implements the REQUEST() formula built-in's suspension contract
// (spec.md §5): if a response for this argument tuple has been delivered,
// it is returned (an error response raises in the calling formula, which
// stores it as a FormulaError). Otherwise the calling cell is registered as
// a waiter and a PendingValue stub comes back; the real result arrives in a
// follow-up RespondToRequests user action, which re-dirties the waiters.
func (e *Engine) Request(ctx *formula.EvalContext, method, url string, args []interface{}) (interface{}, error) {
	key, err := hashRequestArgs(method, url, args)
	if err != nil {
		return nil, &SchemaError{Msg: err.Error()}
	}

	e.pending.mu.Lock()
	defer e.pending.mu.Unlock()

	entry, ok := e.pending.entries[key]
	if !ok {
		entry = &requestEntry{correlation: uuid.NewString()}
		e.pending.entries[key] = entry
		e.pending.byHex[hex.EncodeToString(key[:])] = key
	}
	if entry.done {
		if exc, isExc := entry.value.(column.RaisedException); isExc {
			return nil, exc
		}
		return entry.value, nil
	}
	entry.waiters = append(entry.waiters, requestWaiter{node: ctx.Node, row: ctx.Row})
	return PendingValue{Key: hex.EncodeToString(key[:]), Correlation: entry.correlation}, nil
}

// deliverResponses fills pending REQUEST() entries from a RespondToRequests
// user action's payload (hex key -> response value; an EXC reply from the
// host arrives as a boxed RaisedException) and seeds dirty with every
// formula cell that observed a stub for one of them. Unknown keys are
// ignored; a key may only be delivered once.
func (e *Engine) deliverResponses(responses map[ids.ColID]interface{}, dirty depgraph.DirtyMap) {
	e.pending.mu.Lock()
	defer e.pending.mu.Unlock()

	for hexKey, val := range responses {
		key, ok := e.pending.byHex[string(hexKey)]
		if !ok {
			continue
		}
		entry := e.pending.entries[key]
		if entry.done {
			continue
		}
		entry.done = true
		entry.value = val
		for _, w := range entry.waiters {
			e.graph.Invalidate(w.node, ids.NewRows(w.row), dirty, true)
		}
		entry.waiters = nil
	}
}

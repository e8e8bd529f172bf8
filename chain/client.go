package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mb0/xelf/cor"

	"github.com/algorealm/triggr/doc"
	"github.com/algorealm/triggr/log"
	"github.com/algorealm/triggr/reg"
)

// rpcRequest is a minimal JSON-RPC 2.0 request frame.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// rpcNotification is a subscription push frame.
type rpcNotification struct {
	Method string `json:"method"`
	Params struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

// blockEvent is one decoded contract-event entry of a finalized block
// notification, per the wire shape this node's RPC peer is expected to
// push for a subscribed contract.
type blockEvent struct {
	BlockNumber     uint64 `json:"block_number"`
	ExtrinsicIndex  uint32 `json:"extrinsic_index"`
	ContractAddress string `json:"contract_address"`
	EventIndex      byte   `json:"event_index"`
	Data            string `json:"data"` // hex-encoded SCALE payload, args only
}

type blockNotification struct {
	Events []blockEvent `json:"events"`
}

// dial opens the websocket connection and issues the subscribe request,
// per spec §4.6 step 1-2.
func dial(ctx context.Context, endpoint, contractAddress string) (*websocket.Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := d.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, cor.Errorf("chain: dial %s: %w", endpoint, err)
	}
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "contracts_subscribeEvents",
		Params:  []interface{}{contractAddress},
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, cor.Errorf("chain: subscribe: %w", err)
	}
	return conn, nil
}

// backoff implements exponential backoff with full jitter, initial 1s
// capped at 30s, per spec §4.6.
type backoff struct {
	attempt int
}

func (b *backoff) next() time.Duration {
	base := time.Second << uint(min(b.attempt, 5)) // 1,2,4,8,16,32s before cap
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	b.attempt++
	return time.Duration(rand.Int63n(int64(base) + 1))
}

func (b *backoff) reset() { b.attempt = 0 }

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// SchemaLookup resolves a contract address to its owning project id and
// that project's contract event schema.
type SchemaLookup func(contractAddress string) (projectID string, schema reg.Schema, ok bool)

// Ingester maintains one long-lived subscription for (Endpoint,
// ContractAddress) and pushes DecodedEvent onto Out, per spec §4.6.
type Ingester struct {
	Endpoint        string
	ContractAddress string
	Lookup          SchemaLookup
	Out             chan<- DecodedEvent
	Log             log.Logger

	lastBlock atomic.Int64
	conn      atomic.Pointer[websocket.Conn]
}

// Stale reports whether no block notification has been observed for
// longer than threshold, for the liveness sweep supplementing reconnect
// backoff (spec §4.6).
func (in *Ingester) Stale(threshold time.Duration) bool {
	last := in.lastBlock.Load()
	if last == 0 {
		return false
	}
	return time.Since(time.Unix(0, last)) > threshold
}

// ForceResubscribe closes the current connection, if any, so Run's
// reconnect loop redials immediately instead of waiting on a read error.
func (in *Ingester) ForceResubscribe() {
	if c := in.conn.Load(); c != nil {
		c.Close()
	}
}

// DecodedEvent is pushed onto the router's intake channel, per spec §4.6
// step 4.
type DecodedEvent struct {
	ProjectID      string
	Name           string
	Fields         map[string]doc.Value
	BlockNumber    uint64
	ExtrinsicIndex uint32
}

// Run blocks, reconnecting with backoff on disconnect, until ctx is done.
func (in *Ingester) Run(ctx context.Context) {
	bo := &backoff{}
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := dial(ctx, in.Endpoint, in.ContractAddress)
		if err != nil {
			in.Log.Error("chain ingester connect failed", "endpoint", in.Endpoint, "contract", in.ContractAddress, "cause", err)
			in.sleep(ctx, bo.next())
			continue
		}
		bo.reset()
		in.conn.Store(conn)
		in.readLoop(ctx, conn)
		in.conn.Store(nil)
		conn.Close()
	}
}

func (in *Ingester) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (in *Ingester) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			in.Log.Error("chain ingester read failed", "endpoint", in.Endpoint, "cause", err)
			return
		}
		var note rpcNotification
		if err := json.Unmarshal(raw, &note); err != nil {
			continue
		}
		var blk blockNotification
		if err := json.Unmarshal(note.Params.Result, &blk); err != nil {
			continue
		}
		in.lastBlock.Store(time.Now().UnixNano())
		for _, ev := range blk.Events {
			in.handleEvent(ctx, ev)
		}
	}
}

func (in *Ingester) handleEvent(ctx context.Context, ev blockEvent) {
	projectID, schema, ok := in.Lookup(ev.ContractAddress)
	if !ok {
		return
	}
	var decl reg.EventDecl
	found := false
	for _, e := range schema.Events {
		if e.Index == ev.EventIndex {
			decl, found = e, true
			break
		}
	}
	if !found {
		in.Log.Error("chain ingester unknown event index", "contract", ev.ContractAddress, "index", ev.EventIndex)
		return
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(ev.Data, "0x"))
	if err != nil {
		in.Log.Error("chain ingester bad hex payload", "event", decl.Name, "data", ev.Data, "cause", err)
		return
	}
	fields, err := DecodeFields(decl.Fields, raw)
	if err != nil {
		in.Log.Error("chain ingester decode failed", "event", decl.Name, "raw", ev.Data, "cause", err)
		return
	}
	de := DecodedEvent{
		ProjectID:      projectID,
		Name:           decl.Name,
		Fields:         fields,
		BlockNumber:    ev.BlockNumber,
		ExtrinsicIndex: ev.ExtrinsicIndex,
	}
	// Backpressure: the intake channel is bounded and this send blocks
	// rather than dropping, per spec §4.6 — the ingester never loses a
	// decoded event once produced, only before decoding.
	select {
	case in.Out <- de:
	case <-ctx.Done():
	}
}

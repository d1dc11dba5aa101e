// Package chat implements the room coordinator: the single-writer owner of
// one room's live connections and its append-only history.
//
// Concurrency model: one mutex serializes OnConnect, OnMessage, and
// OnDisconnect for the room. The single-writer property is a hard
// requirement, not an optimization: it is what keeps store-assigned event
// ids gap-free without any locking inside the store, and what closes the
// race between the history snapshot sent to a joining connection and the
// join announcement that follows it.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/duochat/duochat/internal/domain"
)

// DefaultHistoryLimit is the number of events replayed to a joining
// connection when no explicit limit is configured.
const DefaultHistoryLimit = 50

// Conn is one live bidirectional connection as seen by the room.
//
// The attachment blob is the only legitimate carrier of per-connection state:
// the room serializes the session attachment into it at connect time and
// recovers it from the blob on every later event. It must survive whatever
// suspension the transport is subject to; the room never keeps a side map
// keyed by connection identity.
type Conn interface {
	// Send delivers one already-serialized payload. A failed send marks the
	// connection dead to the transport; the room never retries.
	Send(payload []byte) error
	// Attachment returns the opaque blob previously stored with SetAttachment,
	// or nil if none was attached.
	Attachment() []byte
	// SetAttachment stores the opaque per-connection blob.
	SetAttachment(blob []byte)
	// Close tears the connection down with a close code and reason.
	Close(code int, reason string) error
}

// Store is the append-only event log consumed by the room.
type Store interface {
	// Append persists one event and returns it with the assigned id.
	Append(ctx context.Context, kind, author, text string, timestamp int64) (*domain.ChatEvent, error)
	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]domain.ChatEvent, error)
}

// Attachment is the per-connection session state. Created once at connect
// time, immutable afterwards, destroyed with the connection.
type Attachment struct {
	Identity    string `json:"identity"`
	ConnectedAt int64  `json:"connected_at"`
}

// Room coordinates history replay, persistence, and fan-out for one room.
type Room struct {
	mu    sync.Mutex
	store Store
	conns map[Conn]struct{}

	historyLimit int
	now          func() time.Time
	log          zerolog.Logger
}

// NewRoom constructs a Room over the given store. historyLimit <= 0 selects
// DefaultHistoryLimit.
func NewRoom(store Store, historyLimit int, log zerolog.Logger) *Room {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Room{
		store:        store,
		conns:        make(map[Conn]struct{}),
		historyLimit: historyLimit,
		now:          time.Now,
		log:          log,
	}
}

// historyPayload is the one-shot replay sent to a joining connection.
type historyPayload struct {
	Type     string             `json:"type"`
	Messages []domain.ChatEvent `json:"messages"`
}

// errorPayload is sent to a single offending connection, never broadcast.
type errorPayload struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// inbound is the only accepted client-to-server shape.
type inbound struct {
	Text *string `json:"text"`
}

// Conns reports the number of live connections, for diagnostics and metrics.
func (r *Room) Conns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// OnConnect admits an authenticated connection to the room.
//
// Ordering is significant and runs under the room lock: the history snapshot
// reaches the new connection strictly before the join announcement, so the
// joining client never sees its own join notice duplicated or out of order
// relative to history it already holds. The returned error means the
// connection was not admitted and should be closed by the transport.
func (r *Room) OnConnect(ctx context.Context, identity string, c Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	events, err := r.store.Recent(ctx, r.historyLimit)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	// Newest-first from the store, chronological on the wire.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	if events == nil {
		events = []domain.ChatEvent{}
	}
	payload, err := json.Marshal(historyPayload{Type: "history", Messages: events})
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := c.Send(payload); err != nil {
		return fmt.Errorf("send history: %w", err)
	}

	blob, err := json.Marshal(Attachment{Identity: identity, ConnectedAt: r.now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("encode attachment: %w", err)
	}
	c.SetAttachment(blob)
	r.conns[c] = struct{}{}

	r.announce(ctx, fmt.Sprintf("%s joined the room.", identity))
	r.log.Info().Str("identity", identity).Int("conns", len(r.conns)).Msg("connection joined room")
	return nil
}

// OnMessage handles one inbound frame from a live connection.
//
// Malformed payloads earn the sender an error payload and nothing else: they
// are never persisted and never broadcast. Valid messages are persisted
// first; broadcast never precedes the write that assigned the event id. The
// stored copy, id included, is then fanned out to every connection,
// sender included, so clients reconcile against the authoritative record.
func (r *Room) OnMessage(ctx context.Context, c Conn, raw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	att, ok := r.recoverAttachment(c)
	if !ok {
		return
	}

	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil || in.Text == nil {
		r.sendError(c, "Invalid message format")
		return
	}

	event, err := r.store.Append(ctx, domain.KindMessage, att.Identity, *in.Text, r.now().UnixMilli())
	if err != nil {
		r.log.Error().Err(err).Str("identity", att.Identity).Msg("append message failed; nothing broadcast")
		return
	}
	r.broadcast(*event)
}

// OnDisconnect removes a connection and announces the departure to the
// remaining connections. The closing connection leaves the live set before
// the announcement; if the transport still delivers to it for one tick the
// send is best-effort like any other.
func (r *Room) OnDisconnect(ctx context.Context, c Conn, code int, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, c)

	att, ok := r.recoverAttachment(c)
	if !ok {
		return
	}
	r.announce(ctx, fmt.Sprintf("%s left the room.", att.Identity))
	r.log.Info().Str("identity", att.Identity).Int("code", code).Str("reason", reason).
		Int("conns", len(r.conns)).Msg("connection left room")
}

// announce persists a system notice and broadcasts it. Persistence failure
// suppresses the broadcast: no client may observe an event a later history
// fetch cannot reproduce.
func (r *Room) announce(ctx context.Context, text string) {
	event, err := r.store.Append(ctx, domain.KindSystem, "", text, r.now().UnixMilli())
	if err != nil {
		r.log.Error().Err(err).Str("text", text).Msg("append system notice failed; nothing broadcast")
		return
	}
	r.broadcast(*event)
}

// broadcast serializes the event once and sends the same bytes to every live
// connection. A failed send is logged and swallowed: the transport reaps
// dead connections through its own lifecycle, and retrying here would let
// one dead peer stall delivery to the rest.
func (r *Room) broadcast(event domain.ChatEvent) {
	payload, err := event.MarshalWire()
	if err != nil {
		r.log.Error().Err(err).Uint64("event_id", event.ID).Msg("encode broadcast payload")
		return
	}
	for c := range r.conns {
		if err := c.Send(payload); err != nil {
			r.log.Warn().Err(err).Uint64("event_id", event.ID).Msg("broadcast send dropped")
		}
	}
}

// recoverAttachment rebuilds the session attachment from the connection's
// own blob. A live connection without a recoverable attachment is an
// invariant violation: that connection is unusable and gets closed, but the
// room itself carries on.
func (r *Room) recoverAttachment(c Conn) (Attachment, bool) {
	var att Attachment
	blob := c.Attachment()
	if len(blob) == 0 {
		r.log.Error().Msg("live connection has no session attachment; closing it")
		delete(r.conns, c)
		_ = c.Close(1011, "session state lost")
		return att, false
	}
	if err := json.Unmarshal(blob, &att); err != nil {
		r.log.Error().Err(err).Msg("session attachment undecodable; closing connection")
		delete(r.conns, c)
		_ = c.Close(1011, "session state lost")
		return att, false
	}
	return att, true
}

// sendError reports a validation problem to the offending sender only.
func (r *Room) sendError(c Conn, msg string) {
	payload, err := json.Marshal(errorPayload{Type: "error", Error: msg})
	if err != nil {
		return
	}
	if err := c.Send(payload); err != nil {
		r.log.Warn().Err(err).Msg("error payload send dropped")
	}
}

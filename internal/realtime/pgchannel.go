package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RowDecoder turns the JSON of one table row into T.
type RowDecoder[T any] func(json.RawMessage) (T, error)

// RowLoader fetches the current state of one row by id.
type RowLoader[T any] func(ctx context.Context, id string) (T, error)

// payload is the notification body published by the change triggers. Rows too large
// for a notification arrive as ID with Truncated set and no New or Old.
type payload struct {
	Type      string          `json:"type"`
	OwnerID   string          `json:"owner_id"`
	New       json.RawMessage `json:"new"`
	Old       json.RawMessage `json:"old"`
	ID        string          `json:"id"`
	Truncated bool            `json:"truncated"`
}

// TruncatedError reports an insert or update whose row was left out of the
// notification. The row has to be loaded by ID.
type TruncatedError struct {
	Type EventType
	ID   string
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("%s notification for %s carries no row", e.Type, e.ID)
}

// ParsePayload decodes a notification. ok is false when the change belongs to a
// different owner. A truncated delete yields an Old row holding only the id; a
// truncated insert or update returns a *TruncatedError.
func ParsePayload[T any](raw string, ownerID string, decode RowDecoder[T]) (ev Event[T], ok bool, err error) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return ev, false, fmt.Errorf("decoding notification: %w", err)
	}
	if ownerID != "" && p.OwnerID != ownerID {
		return ev, false, nil
	}

	typ, err := ParseEventType(p.Type)
	if err != nil {
		return ev, false, err
	}
	ev.Type = typ

	if p.Truncated {
		if p.ID == "" {
			return ev, false, errors.New("truncated notification without id")
		}
		if typ != EventDelete {
			return ev, false, &TruncatedError{Type: typ, ID: p.ID}
		}
		key, err := json.Marshal(map[string]string{"id": p.ID, "owner_id": p.OwnerID})
		if err != nil {
			return ev, false, err
		}
		row, err := decode(key)
		if err != nil {
			return ev, false, err
		}
		ev.Old = &row
		return ev, true, nil
	}

	if isRow(p.New) {
		row, err := decode(p.New)
		if err != nil {
			return ev, false, err
		}
		ev.New = &row
	}
	if isRow(p.Old) {
		row, err := decode(p.Old)
		if err != nil {
			return ev, false, err
		}
		ev.Old = &row
	}
	return ev, true, nil
}

func isRow(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

const (
	initialReconnectDelay = 500 * time.Millisecond
	maxReconnectDelay     = 30 * time.Second
)

func nextReconnectDelay(d time.Duration) time.Duration {
	d *= 2
	if d > maxReconnectDelay {
		d = maxReconnectDelay
	}
	return d
}

// Listener is a push channel backed by PostgreSQL LISTEN/NOTIFY.
type Listener[T any] struct {
	pool    *pgxpool.Pool
	channel string
	decode  RowDecoder[T]
	load    RowLoader[T]
}

// NewListener creates a listener for channel.
func NewListener[T any](pool *pgxpool.Pool, channel string, decode RowDecoder[T]) *Listener[T] {
	return &Listener[T]{pool: pool, channel: channel, decode: decode}
}

// WithLoader sets how rows left out of oversized notifications are fetched. Without
// a loader such inserts and updates are logged and dropped.
func (l *Listener[T]) WithLoader(load RowLoader[T]) *Listener[T] {
	l.load = load
	return l
}

// resolve turns one notification into an event, loading the row when the
// notification was truncated.
func (l *Listener[T]) resolve(ctx context.Context, raw, ownerID string) (Event[T], bool, error) {
	ev, ok, err := ParsePayload(raw, ownerID, l.decode)
	var te *TruncatedError
	if !errors.As(err, &te) {
		return ev, ok, err
	}
	if l.load == nil {
		return ev, false, err
	}
	row, err := l.load(ctx, te.ID)
	if err != nil {
		return ev, false, fmt.Errorf("loading %s: %w", te.ID, err)
	}
	return Event[T]{Type: te.Type, New: &row}, true, nil
}

// listen acquires a connection and subscribes it to the channel.
func (l *Listener[T]) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listening on %s: %w", l.channel, err)
	}
	return conn, nil
}

func release(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := conn.Exec(ctx, "UNLISTEN *"); err != nil {
		// The connection is in an unknown state; drop it instead of returning it to the pool.
		conn.Conn().Close(ctx)
	}
	conn.Release()
}

// Subscribe holds a dedicated connection and delivers every change for ownerID to
// onEvent, in arrival order, until ctx is done or unsubscribe is called. Malformed
// notifications are logged and skipped. A lost connection is re-established with
// exponential backoff; changes made while disconnected are not replayed.
func (l *Listener[T]) Subscribe(ctx context.Context, ownerID string, onEvent func(Event[T])) (unsubscribe func(), err error) {
	conn, err := l.listen(ctx)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer func() {
			if conn != nil {
				release(conn)
			}
		}()

		slog.Info("Listener: subscribed", "channel", l.channel, "owner", ownerID)
		for {
			n, err := conn.Conn().WaitForNotification(subCtx)
			if err != nil {
				if subCtx.Err() != nil {
					return
				}
				slog.Error("Listener: wait failed", "channel", l.channel, "error", err)
				release(conn)
				if conn = l.reconnect(subCtx); conn == nil {
					return
				}
				continue
			}
			ev, ok, err := l.resolve(subCtx, n.Payload, ownerID)
			if err != nil {
				slog.Warn("Listener: ignoring notification", "channel", l.channel, "error", err)
				continue
			}
			if ok {
				onEvent(ev)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

// reconnect retries listen until it succeeds or ctx is done, in which case it
// returns nil.
func (l *Listener[T]) reconnect(ctx context.Context) *pgxpool.Conn {
	delay := initialReconnectDelay
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		conn, err := l.listen(ctx)
		if err == nil {
			slog.Info("Listener: resubscribed", "channel", l.channel, "attempt", attempt)
			return conn
		}
		if ctx.Err() != nil {
			return nil
		}
		delay = nextReconnectDelay(delay)
		slog.Warn("Listener: reconnect failed", "channel", l.channel, "attempt", attempt,
			"retry_in", delay, "error", err)
	}
}

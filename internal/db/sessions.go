package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/netsync/internal/events"
)

// SessionRecord is one row of the audit log. OpenedAt or ClosedAt is nil
// when that side of the session has not been recorded.
type SessionRecord struct {
	ID       int64      `json:"id"`
	NetID    uint32     `json:"net_id"`
	Addr     string     `json:"addr"`
	OpenedAt *time.Time `json:"opened_at,omitempty"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

// Duration returns how long the session lasted, or zero while it is open.
func (r SessionRecord) Duration() time.Duration {
	if r.OpenedAt == nil || r.ClosedAt == nil {
		return 0
	}
	return r.ClosedAt.Sub(*r.OpenedAt)
}

// SessionLog records session lifecycle events.
type SessionLog struct {
	db *store
}

// NewSessionLog opens the audit log database at dbPath.
func NewSessionLog(dbPath string) (*SessionLog, error) {
	ctx := context.Background()
	st, err := openStore(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	sl := &SessionLog{db: st}
	if err := sl.migrate(ctx); err != nil {
		st.close()
		return nil, fmt.Errorf("failed to migrate session log: %w", err)
	}
	return sl, nil
}

func (sl *SessionLog) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			net_id    INTEGER NOT NULL,
			addr      TEXT    NOT NULL DEFAULT '',
			opened_at INTEGER,
			closed_at INTEGER,
			reason    TEXT    NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_net_id ON sessions(net_id);
	`
	_, err := sl.db.exec(ctx, schema)
	return err
}

// Close closes the underlying database.
func (sl *SessionLog) Close() error {
	return sl.db.close()
}

// RecordOpened stores the start of a session. Events can arrive out of
// order, so a close already recorded for netID is completed instead.
func (sl *SessionLog) RecordOpened(ctx context.Context, netID uint32, addr string, at time.Time) error {
	return sl.db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET opened_at = ?, addr = ? WHERE net_id = ? AND opened_at IS NULL`,
			at.UnixMilli(), addr, netID)
		if err != nil {
			return fmt.Errorf("failed to record session open: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sessions (net_id, addr, opened_at) VALUES (?, ?, ?)`,
			netID, addr, at.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to record session open: %w", err)
		}
		return nil
	})
}

// RecordClosed stores the end of a session.
func (sl *SessionLog) RecordClosed(ctx context.Context, netID uint32, addr, reason string, at time.Time) error {
	return sl.db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET closed_at = ?, reason = ?
			 WHERE id = (SELECT id FROM sessions
			             WHERE net_id = ? AND closed_at IS NULL AND opened_at IS NOT NULL
			             ORDER BY id DESC LIMIT 1)`,
			at.UnixMilli(), reason, netID)
		if err != nil {
			return fmt.Errorf("failed to record session close: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sessions (net_id, addr, closed_at, reason) VALUES (?, ?, ?, ?)`,
			netID, addr, at.UnixMilli(), reason)
		if err != nil {
			return fmt.Errorf("failed to record session close: %w", err)
		}
		return nil
	})
}

// Recent returns up to limit records, newest first.
func (sl *SessionLog) Recent(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := sl.db.query(ctx,
		`SELECT id, net_id, addr, opened_at, closed_at, reason
		 FROM sessions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var (
			r              SessionRecord
			opened, closed sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.NetID, &r.Addr, &opened, &closed, &r.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		r.OpenedAt = millis(opened)
		r.ClosedAt = millis(closed)
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountOpen returns the number of sessions with no recorded close.
func (sl *SessionLog) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := sl.db.queryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE closed_at IS NULL`).Scan(&n)
	return n, err
}

func millis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

// Attach subscribes the log to session events on bus.
func (sl *SessionLog) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventSessionOpened, "db.sessionOpened", func(ctx context.Context, e events.Event) error {
		p, ok := e.Payload.(events.SessionPayload)
		if !ok {
			return nil
		}
		return sl.RecordOpened(ctx, p.NetID, p.Addr, e.Time)
	})
	bus.Subscribe(events.EventSessionClosed, "db.sessionClosed", func(ctx context.Context, e events.Event) error {
		p, ok := e.Payload.(events.SessionPayload)
		if !ok {
			return nil
		}
		return sl.RecordClosed(ctx, p.NetID, p.Addr, string(p.Reason), e.Time)
	})
	log.Debug().Str("path", sl.db.file).Msg("session log attached")
}

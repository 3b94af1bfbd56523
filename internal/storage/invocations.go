package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Invocation is one audited tool call.
type Invocation struct {
	ID        uuid.UUID     `json:"id"`
	RequestID string        `json:"request_id,omitempty"`
	Transport string        `json:"transport"`
	Tool      string        `json:"tool"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"-"`
	CreatedAt time.Time     `json:"created_at"`

	DurationMS float64 `json:"duration_ms"`
}

// MaxRecent caps RecentInvocations.
const MaxRecent = 1000

// InsertInvocation appends inv. A zero ID or CreatedAt is filled in.
func (db *DB) InsertInvocation(ctx context.Context, inv Invocation) (Invocation, error) {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	inv.DurationMS = durationMS(inv.Duration)

	err := WithRetry(ctx, 3, 10*time.Millisecond, func() error {
		_, err := db.db.ExecContext(ctx,
			`INSERT INTO invocations (id, request_id, transport, tool, status, error, duration_us, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.ID.String(), inv.RequestID, inv.Transport, inv.Tool, inv.Status, inv.Error,
			inv.Duration.Microseconds(), inv.CreatedAt.UnixNano(),
		)
		return err
	})
	if err != nil {
		return Invocation{}, fmt.Errorf("storage: insert invocation: %w", err)
	}
	return inv, nil
}

// RecentInvocations returns up to limit invocations, newest first. A
// non-positive limit selects 50; limits above MaxRecent are clamped.
func (db *DB) RecentInvocations(ctx context.Context, limit int) ([]Invocation, error) {
	if limit <= 0 {
		limit = 50
	}
	limit = min(limit, MaxRecent)

	rows, err := db.db.QueryContext(ctx,
		`SELECT id, request_id, transport, tool, status, error, duration_us, created_at
		 FROM invocations ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: query invocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Invocation, 0, limit)
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate invocations: %w", err)
	}
	return out, nil
}

// GetInvocation returns one invocation by ID, or ErrNotFound.
func (db *DB) GetInvocation(ctx context.Context, id uuid.UUID) (Invocation, error) {
	row := db.db.QueryRowContext(ctx,
		`SELECT id, request_id, transport, tool, status, error, duration_us, created_at
		 FROM invocations WHERE id = ?`, id.String())
	inv, err := scanInvocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Invocation{}, ErrNotFound
	}
	return inv, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvocation(s scanner) (Invocation, error) {
	var (
		inv        Invocation
		id         string
		durationUS int64
		createdNS  int64
	)
	if err := s.Scan(&id, &inv.RequestID, &inv.Transport, &inv.Tool, &inv.Status, &inv.Error, &durationUS, &createdNS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Invocation{}, err
		}
		return Invocation{}, fmt.Errorf("storage: scan invocation: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Invocation{}, fmt.Errorf("storage: invocation id %q: %w", id, err)
	}
	inv.ID = parsed
	inv.Duration = time.Duration(durationUS) * time.Microsecond
	inv.DurationMS = durationMS(inv.Duration)
	inv.CreatedAt = time.Unix(0, createdNS).UTC()
	return inv, nil
}

func durationMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

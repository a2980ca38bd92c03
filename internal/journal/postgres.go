package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/himplant/crmsync/internal/db"
)

// Querier is the subset of *pgxpool.Pool the store uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps entries in the sync_journal table.
type PostgresStore struct {
	q   Querier
	now func() time.Time
}

// NewPostgresStore wraps a pool.
func NewPostgresStore(q Querier) *PostgresStore {
	return &PostgresStore{q: q, now: time.Now}
}

const insertEntry = `
INSERT INTO sync_journal (
  id, event_id, event_type, booking_id, outcome, person_kind, person_id,
  meeting_id, meeting_action, deal_id, error, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

func (s *PostgresStore) Record(ctx context.Context, e Entry) error {
	if e.EventID == "" {
		return errors.New("journal: event id is required")
	}
	e = prepare(e, s.now())
	_, err := s.q.Exec(ctx, insertEntry,
		pgtype.UUID{Bytes: e.ID, Valid: true},
		e.EventID, e.EventType, e.BookingID, string(e.Outcome), e.PersonKind, e.PersonID,
		e.MeetingID, e.MeetingAction, e.DealID, e.Error,
		pgtype.Timestamptz{Time: e.CreatedAt, Valid: true},
	)
	// A concurrent delivery of the same event already recorded it as applied.
	if db.IsUniqueViolation(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("journal record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Applied(ctx context.Context, eventID string) (bool, error) {
	var ok bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sync_journal WHERE event_id = $1 AND outcome = 'applied')`,
		eventID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("journal applied: %w", err)
	}
	return ok, nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.q.Query(ctx, `
SELECT id, event_id, event_type, booking_id, outcome, person_kind, person_id,
       meeting_id, meeting_action, deal_id, error, created_at
FROM sync_journal
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			id        pgtype.UUID
			outcome   string
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &e.EventID, &e.EventType, &e.BookingID, &outcome, &e.PersonKind, &e.PersonID,
			&e.MeetingID, &e.MeetingAction, &e.DealID, &e.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("journal recent scan: %w", err)
		}
		e.ID = id.Bytes
		e.Outcome = Outcome(outcome)
		e.CreatedAt = db.TimeFromPg(createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal recent: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM sync_journal WHERE created_at < $1`,
		pgtype.Timestamptz{Time: before.UTC(), Valid: true})
	if err != nil {
		return 0, fmt.Errorf("journal prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

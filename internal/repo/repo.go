package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"trailhead/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// SnapshotRow is the stored form of a journey snapshot. Payload holds
// the full snapshot JSON; the engine owns its shape.
type SnapshotRow struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Payload   []byte `json:"payload_json"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

func scanSnapshot(scan func(...any) error) (SnapshotRow, error) {
	var row SnapshotRow
	var payload string
	err := scan(&row.ID, &row.UserID, &payload, &row.CreatedAt, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return row, ErrNotFound
	}
	if err != nil {
		return row, err
	}
	row.Payload = []byte(payload)
	return row, nil
}

const snapshotCols = `id,user_id,payload_json,created_at,updated_at`

// LatestSnapshot returns the most recently updated snapshot for a user.
func (r Repo) LatestSnapshot(ctx context.Context, userID string) (SnapshotRow, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots WHERE user_id=? ORDER BY updated_at DESC, id DESC LIMIT 1`, userID)
	return scanSnapshot(row.Scan)
}

// LatestSnapshotTx is LatestSnapshot inside a transaction.
func (r Repo) LatestSnapshotTx(ctx context.Context, tx *sql.Tx, userID string) (SnapshotRow, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots WHERE user_id=? ORDER BY updated_at DESC, id DESC LIMIT 1`, userID)
	return scanSnapshot(row.Scan)
}

// GetSnapshot returns a snapshot row by id.
func (r Repo) GetSnapshot(ctx context.Context, id string) (SnapshotRow, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+snapshotCols+` FROM snapshots WHERE id=?`, id)
	return scanSnapshot(row.Scan)
}

func (r Repo) InsertSnapshot(ctx context.Context, tx *sql.Tx, row SnapshotRow) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO snapshots(id,user_id,payload_json,created_at,updated_at) VALUES (?,?,?,?,?)`,
		row.ID, row.UserID, string(row.Payload), row.CreatedAt, row.UpdatedAt)
	return err
}

func (r Repo) UpdateSnapshot(ctx context.Context, tx *sql.Tx, row SnapshotRow) error {
	res, err := tx.ExecContext(ctx, `UPDATE snapshots SET payload_json=?, updated_at=? WHERE id=?`,
		string(row.Payload), row.UpdatedAt, row.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountSnapshots returns the number of stored snapshots for a user.
func (r Repo) CountSnapshots(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM snapshots WHERE user_id=?`, userID).Scan(&n)
	return n, err
}

// EventFilters narrows event log reads.
type EventFilters struct {
	UserID     string
	Type       string
	EntityKind string
	EntityID   string
}

// LatestEvents returns the newest events first.
func (r Repo) LatestEvents(ctx context.Context, limit int, f EventFilters) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, f)
}

// LatestEventsFrom pages backwards through the event log from a cursor.
func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, f EventFilters) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,user_id,entity_kind,entity_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.UserID, &e.EntityKind, &entityID, &payload); err != nil {
			return nil, err
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, userID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if userID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, userID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,user_id,entity_kind,entity_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.UserID, &e.EntityKind, &entityID, &payload); err != nil {
			return nil, err
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID for a user.
func (r Repo) LatestEventID(ctx context.Context, userID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE user_id=?`, userID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the turn engine.
const (
	TypeGoalSet       = "goal.set"
	TypeContextAdded  = "context.added"
	TypeReflection    = "reflection.processed"
	TypeTaskServed    = "task.served"
	TypeTaskCompleted = "task.completed"
	TypeTreeRebalance = "tree.rebalanced"
	TypeStageReached  = "stage.reached"
	TypeHorizonSet    = "horizon.set"
	TypePathSet       = "path.set"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event row inside the caller's transaction, so the
// audit trail commits or rolls back with the state change it records.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, userID, entityKind, entityID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,user_id,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, userID, entityKind, nullable(entityID), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

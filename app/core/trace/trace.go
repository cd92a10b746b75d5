package trace

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	"calagent/app/core/store"
)

// TurnTrace captures what one chat turn did: the classified intent, which
// slots were extracted, any superseded extractions, and the executor outcome.
type TurnTrace struct {
	UserID     string
	ChannelID  string
	Utterance  string
	Intent     string
	Confidence float64
	Slots      map[string]string
	Superseded []SupersededExtraction
	Outcome    string
	Error      string
}

type SupersededExtraction struct {
	Slot      string
	Kept      string
	Discarded string
}

type Recorder interface {
	Record(ctx context.Context, tr TurnTrace) error
}

// SQLiteRecorder persists turn traces as JSON payloads.
type SQLiteRecorder struct {
	db *store.DB
}

func NewSQLiteRecorder(database *store.DB) *SQLiteRecorder {
	return &SQLiteRecorder{db: database}
}

func (r *SQLiteRecorder) Record(ctx context.Context, tr TurnTrace) error {
	if r == nil {
		return nil
	}
	payload, err := buildPayload(tr)
	if err != nil {
		return fmt.Errorf("build trace payload: %w", err)
	}
	_, err = r.db.Conn().ExecContext(ctx,
		`INSERT INTO turn_traces (id, user_id, channel_id, created_at, payload) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), strings.TrimSpace(tr.UserID), tr.ChannelID, time.Now().Unix(), payload)
	return err
}

// Sweep removes traces older than the retention window.
func (r *SQLiteRecorder) Sweep(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().Add(-retention).Unix()
	res, err := r.db.Conn().ExecContext(ctx, `DELETE FROM turn_traces WHERE created_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("trace sweep: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Printf("[Trace] Swept %d expired turn traces", n)
	}
	return nil
}

// Count is used by health reporting and tests.
func (r *SQLiteRecorder) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM turn_traces`).Scan(&n)
	return n, err
}

func buildPayload(tr TurnTrace) (string, error) {
	payload := "{}"
	var err error
	set := func(path string, value interface{}) {
		if err != nil {
			return
		}
		payload, err = sjson.Set(payload, path, value)
	}

	set("utterance", tr.Utterance)
	set("intent", tr.Intent)
	set("confidence", tr.Confidence)
	if tr.Outcome != "" {
		set("outcome", tr.Outcome)
	}
	if tr.Error != "" {
		set("error", tr.Error)
	}
	for slot, value := range tr.Slots {
		set("slots."+slot, value)
	}
	for i, sup := range tr.Superseded {
		prefix := fmt.Sprintf("superseded.%d.", i)
		set(prefix+"slot", sup.Slot)
		set(prefix+"kept", sup.Kept)
		set(prefix+"discarded", sup.Discarded)
	}
	return payload, err
}

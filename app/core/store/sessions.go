package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"calagent/app/core/dialogue"
)

// SessionStore persists dialogue slot state per user so a half-filled
// scheduling request survives a restart.
type SessionStore struct {
	db *DB
}

func NewSessionStore(database *DB) *SessionStore {
	return &SessionStore{db: database}
}

// Load returns the stored state and whether a row existed. A missing row is
// the IDLE state, not an error.
func (s *SessionStore) Load(ctx context.Context, userID string) (dialogue.SlotState, bool, error) {
	query := `SELECT active, subject, date, time, meridiem_assumed FROM dialogue_sessions WHERE user_id = ?`
	var (
		state    dialogue.SlotState
		active   int
		meridiem int
	)
	err := s.db.Conn().QueryRowContext(ctx, query, strings.TrimSpace(userID)).Scan(
		&active, &state.Subject, &state.Date, &state.Time, &meridiem)
	if err == sql.ErrNoRows {
		return dialogue.SlotState{}, false, nil
	}
	if err != nil {
		return dialogue.SlotState{}, false, err
	}
	state.Active = active != 0
	state.MeridiemAssumed = meridiem != 0
	return state, true, nil
}

func (s *SessionStore) Save(ctx context.Context, userID string, state dialogue.SlotState) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}
	query := `INSERT INTO dialogue_sessions (user_id, active, subject, date, time, meridiem_assumed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			active = excluded.active,
			subject = excluded.subject,
			date = excluded.date,
			time = excluded.time,
			meridiem_assumed = excluded.meridiem_assumed,
			updated_at = excluded.updated_at`
	_, err := s.db.Conn().ExecContext(ctx, query,
		userID, boolToInt(state.Active), state.Subject, state.Date, state.Time,
		boolToInt(state.MeridiemAssumed), time.Now().Unix())
	return err
}

func (s *SessionStore) Delete(ctx context.Context, userID string) error {
	_, err := s.db.Conn().ExecContext(ctx,
		`DELETE FROM dialogue_sessions WHERE user_id = ?`, strings.TrimSpace(userID))
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

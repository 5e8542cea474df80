package store

import (
	"database/sql"
	"fmt"
	"time"

	"calsplit/internal/model"
)

// SessionStore persists the bearer credential and, transiently, the
// anti-forgery state for an in-flight authorization redirect. Both tables
// hold at most one row.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// SaveCredential stores the credential, replacing any previous one.
func (s *SessionStore) SaveCredential(cred model.Credential) error {
	_, err := s.db.Exec(
		`INSERT INTO auth_credential (id, access_token, expires_at, created_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET access_token = excluded.access_token,
		 expires_at = excluded.expires_at, created_at = excluded.created_at`,
		cred.Token, cred.Expiry.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Credential returns the stored credential, or nil if none exists.
func (s *SessionStore) Credential() (*model.Credential, error) {
	var token string
	var expiry time.Time
	err := s.db.QueryRow(`SELECT access_token, expires_at FROM auth_credential WHERE id = 1`).
		Scan(&token, &expiry)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &model.Credential{Token: token, Expiry: expiry}, nil
}

// ClearCredential removes the stored credential. Clearing an empty store is
// not an error.
func (s *SessionStore) ClearCredential() error {
	if _, err := s.db.Exec(`DELETE FROM auth_credential WHERE id = 1`); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

// SaveState stores the anti-forgery state for the redirect now in flight,
// replacing any previous one.
func (s *SessionStore) SaveState(state string) error {
	_, err := s.db.Exec(
		`INSERT INTO auth_state (id, state, created_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET state = excluded.state, created_at = excluded.created_at`,
		state, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// TakeState returns the stored anti-forgery state and deletes it. The state
// is single use: every callback outcome consumes it. Returns "" if none was
// stored.
func (s *SessionStore) TakeState() (string, error) {
	var state string
	err := s.db.QueryRow(`SELECT state FROM auth_state WHERE id = 1`).Scan(&state)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM auth_state WHERE id = 1`); err != nil {
		return "", fmt.Errorf("delete state: %w", err)
	}
	return state, nil
}

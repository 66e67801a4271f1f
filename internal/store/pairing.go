// Package store provides persistent storage backends.
package store

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// PairingStore manages DM pairing: unknown senders get a short code the
// bot owner approves before their messages reach the agent.
type PairingStore interface {
	// IsPaired reports whether the sender is approved on the channel.
	IsPaired(senderID, channel string) bool

	// RequestPairing records a pending request and returns its code.
	// Repeated requests from the same sender return the existing code.
	RequestPairing(senderID, channel, chatID, agentID string) (string, error)

	// Approve marks the request with the given code as paired and returns
	// the sender it belonged to.
	Approve(code string) (string, error)

	// ListPending returns all unapproved requests.
	ListPending() ([]PairingRequest, error)

	Close() error
}

// PairingRequest is one pairing entry.
type PairingRequest struct {
	ID        string
	Code      string
	SenderID  string
	Channel   string
	ChatID    string
	AgentID   string
	Approved  bool
	CreatedAt time.Time
}

// SQLitePairingStore persists pairing state in a local sqlite database.
type SQLitePairingStore struct {
	db *sql.DB
}

var _ PairingStore = (*SQLitePairingStore)(nil)

// NewSQLitePairingStore opens (and migrates) the pairing database at path.
func NewSQLitePairingStore(path string) (*SQLitePairingStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("pairing store: create dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("pairing store: open: %w", err)
	}
	// sqlite handles one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pairing (
			id         TEXT PRIMARY KEY,
			code       TEXT NOT NULL UNIQUE,
			sender_id  TEXT NOT NULL,
			channel    TEXT NOT NULL,
			chat_id    TEXT NOT NULL DEFAULT '',
			agent_id   TEXT NOT NULL DEFAULT 'default',
			approved   INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (sender_id, channel)
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("pairing store: migrate: %w", err)
	}

	return &SQLitePairingStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLitePairingStore) Close() error { return s.db.Close() }

// IsPaired reports whether the sender has an approved entry on the channel.
func (s *SQLitePairingStore) IsPaired(senderID, channel string) bool {
	var approved bool
	err := s.db.QueryRow(
		`SELECT approved FROM pairing WHERE sender_id = ? AND channel = ?`,
		senderID, channel,
	).Scan(&approved)
	return err == nil && approved
}

// RequestPairing records a pending request, returning the existing code if
// the sender already asked.
func (s *SQLitePairingStore) RequestPairing(senderID, channel, chatID, agentID string) (string, error) {
	var code string
	err := s.db.QueryRow(
		`SELECT code FROM pairing WHERE sender_id = ? AND channel = ? AND approved = 0`,
		senderID, channel,
	).Scan(&code)
	if err == nil {
		return code, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("pairing store: lookup: %w", err)
	}

	code, err = generatePairingCode()
	if err != nil {
		return "", err
	}
	if agentID == "" {
		agentID = "default"
	}

	_, err = s.db.Exec(
		`INSERT INTO pairing (id, code, sender_id, channel, chat_id, agent_id, approved, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		uuid.NewString(), code, senderID, channel, chatID, agentID, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("pairing store: insert: %w", err)
	}
	return code, nil
}

// Approve marks the request as paired and returns its sender id.
func (s *SQLitePairingStore) Approve(code string) (string, error) {
	var senderID string
	err := s.db.QueryRow(`SELECT sender_id FROM pairing WHERE code = ?`, code).Scan(&senderID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("pairing code %q not found", code)
	}
	if err != nil {
		return "", fmt.Errorf("pairing store: lookup: %w", err)
	}

	if _, err := s.db.Exec(`UPDATE pairing SET approved = 1 WHERE code = ?`, code); err != nil {
		return "", fmt.Errorf("pairing store: approve: %w", err)
	}
	return senderID, nil
}

// ListPending returns unapproved requests, oldest first.
func (s *SQLitePairingStore) ListPending() ([]PairingRequest, error) {
	rows, err := s.db.Query(
		`SELECT id, code, sender_id, channel, chat_id, agent_id, created_at
		 FROM pairing WHERE approved = 0 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("pairing store: list: %w", err)
	}
	defer rows.Close()

	var out []PairingRequest
	for rows.Next() {
		var req PairingRequest
		if err := rows.Scan(&req.ID, &req.Code, &req.SenderID, &req.Channel, &req.ChatID, &req.AgentID, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("pairing store: scan: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

const pairingCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generatePairingCode returns an 8-character code without look-alike
// characters (0/O, 1/I).
func generatePairingCode() (string, error) {
	code := make([]byte, 8)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(pairingCodeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("pairing code: %w", err)
		}
		code[i] = pairingCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

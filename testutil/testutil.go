// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/livepoll/cliparse"
	"github.com/danielhkuo/livepoll/db"
)

// TestDialect is the dialect of databases returned by SetupTestDB.
var TestDialect = db.Dialect{Type: db.TypeSQLite}

// SetupTestDB creates a fresh SQLite database file with the full schema.
// The database is closed when the test finishes.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "livepoll_test.db")
	conn, _, err := db.Open(context.Background(), db.TypeSQLite, path)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:           3318,
		DatabaseURL:    "file:test.db",
		DatabaseType:   db.TypeSQLite,
		AdminKeySalt:   "test-admin-salt",
		LeaderboardTTL: 10 * time.Second,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// CreateTestPoll inserts a poll with the given options and returns its ID and
// option IDs in display order. Pass an expiry in the past for an expired poll.
func CreateTestPoll(t *testing.T, conn *sql.DB, question string, options []string, expiresAt time.Time) (pollID string, optionIDs []string) {
	t.Helper()

	pollID = uuid.NewString()
	createdAt := expiresAt.Add(-time.Hour)

	_, err := conn.Exec(`
		INSERT INTO poll (id, question, total_votes, created_at, expires_at)
		VALUES ($1, $2, 0, $3, $4)
	`, pollID, question, createdAt.UTC(), expiresAt.UTC())
	if err != nil {
		t.Fatalf("Failed to create test poll: %v", err)
	}

	for i, text := range options {
		optionIDs = append(optionIDs, AddTestOption(t, conn, pollID, text, i))
	}

	return pollID, optionIDs
}

// CreateOpenPoll creates a poll expiring an hour from now
func CreateOpenPoll(t *testing.T, conn *sql.DB, options ...string) (string, []string) {
	t.Helper()
	return CreateTestPoll(t, conn, "Test Poll", options, time.Now().Add(time.Hour))
}

// AddTestOption adds an option to a poll and returns the option ID
func AddTestOption(t *testing.T, conn *sql.DB, pollID, text string, position int) string {
	t.Helper()

	optionID := uuid.NewString()
	_, err := conn.Exec(`
		INSERT INTO option (id, poll_id, text, position, vote_count)
		VALUES ($1, $2, $3, $4, 0)
	`, optionID, pollID, text, position)
	if err != nil {
		t.Fatalf("Failed to create test option: %v", err)
	}

	return optionID
}

// AddTestVotes records n votes for an option from generated voters, keeping
// the counters in step with the ledger.
func AddTestVotes(t *testing.T, conn *sql.DB, pollID, optionID string, n int) {
	t.Helper()

	for range n {
		_, err := conn.Exec(`
			INSERT INTO vote (id, poll_id, option_id, voter_id, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.NewString(), pollID, optionID, "voter-"+uuid.NewString(), time.Now().UTC())
		if err != nil {
			t.Fatalf("Failed to create test vote: %v", err)
		}
	}

	if _, err := conn.Exec(`UPDATE option SET vote_count = vote_count + $1 WHERE id = $2`, n, optionID); err != nil {
		t.Fatalf("Failed to update option counter: %v", err)
	}
	if _, err := conn.Exec(`UPDATE poll SET total_votes = total_votes + $1 WHERE id = $2`, n, pollID); err != nil {
		t.Fatalf("Failed to update poll counter: %v", err)
	}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body any, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}

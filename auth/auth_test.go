// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateAdminKey(t *testing.T) {
	tests := []struct {
		name   string
		pollID string
		salt   string
	}{
		{"standard", "0b5e6c1a-poll", "secret-salt"},
		{"empty poll id", "", "salt"},
		{"empty salt", "poll456", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := GenerateAdminKey(tt.pollID, tt.salt)

			if key == "" {
				t.Error("GenerateAdminKey() returned empty string")
			}

			// Should be deterministic
			if key != GenerateAdminKey(tt.pollID, tt.salt) {
				t.Error("GenerateAdminKey() is not deterministic")
			}

			// URL-safe without padding
			if strings.ContainsAny(key, "+/=") {
				t.Errorf("GenerateAdminKey() = %q, want URL-safe characters only", key)
			}

			if tt.salt != "" {
				if key == GenerateAdminKey(tt.pollID+"x", tt.salt) {
					t.Error("GenerateAdminKey() produced same key for different poll IDs")
				}
				if key == GenerateAdminKey(tt.pollID, tt.salt+"x") {
					t.Error("GenerateAdminKey() produced same key for different salts")
				}
			}
		})
	}
}

func TestValidateAdminKey(t *testing.T) {
	pollID := "poll-1"
	salt := "test-salt"
	valid := GenerateAdminKey(pollID, salt)

	tests := []struct {
		name    string
		pollID  string
		key     string
		salt    string
		wantErr error
	}{
		{"valid key", pollID, valid, salt, nil},
		{"wrong key", pollID, "wrong-key", salt, ErrInvalidAdminKey},
		{"key of another poll", "poll-2", valid, salt, ErrInvalidAdminKey},
		{"wrong salt", pollID, valid, "other-salt", ErrInvalidAdminKey},
		{"missing key", pollID, "", salt, ErrMissingAdminKey},
		{"no salt configured", pollID, valid, "", ErrNoSalt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAdminKey(tt.pollID, tt.key, tt.salt)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateAdminKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckRequest(t *testing.T) {
	salt := "test-salt"
	key := GenerateAdminKey("poll-1", salt)

	r := httptest.NewRequest("POST", "/polls/poll-1/audit", nil)
	if err := CheckRequest(r, "poll-1", salt); !errors.Is(err, ErrMissingAdminKey) {
		t.Errorf("CheckRequest() without header error = %v", err)
	}

	r.Header.Set(AdminKeyHeader, " "+key+" ")
	if err := CheckRequest(r, "poll-1", salt); err != nil {
		t.Errorf("CheckRequest() error = %v", err)
	}
}

func BenchmarkGenerateAdminKey(b *testing.B) {
	for i := 0; i < b.N; i++ {
		GenerateAdminKey("poll-1", "salt")
	}
}

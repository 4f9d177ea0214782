// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

// AdminKeyHeader carries the admin key of the poll a request targets.
const AdminKeyHeader = "X-Admin-Key"

var (
	ErrMissingAdminKey = errors.New("missing admin key")
	ErrInvalidAdminKey = errors.New("invalid admin key")
	ErrNoSalt          = errors.New("admin key salt not configured")
)

// GenerateAdminKey derives the admin key of a poll from its ID.
// The same ID and salt always produce the same key, so nothing is stored.
func GenerateAdminKey(pollID, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(pollID))
	// URL-safe base64 without padding
	return strings.TrimRight(base64.URLEncoding.EncodeToString(h.Sum(nil)), "=")
}

// ValidateAdminKey checks adminKey against the key of pollID.
func ValidateAdminKey(pollID, adminKey, salt string) error {
	if salt == "" {
		return ErrNoSalt
	}
	if adminKey == "" {
		return ErrMissingAdminKey
	}

	expected := GenerateAdminKey(pollID, salt)
	if !hmac.Equal([]byte(adminKey), []byte(expected)) {
		return ErrInvalidAdminKey
	}
	return nil
}

// CheckRequest validates the admin key header of r for pollID.
func CheckRequest(r *http.Request, pollID, salt string) error {
	return ValidateAdminKey(pollID, strings.TrimSpace(r.Header.Get(AdminKeyHeader)), salt)
}

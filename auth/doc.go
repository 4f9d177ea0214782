// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth derives and checks poll admin keys.

# Admin Keys

Admin keys use HMAC-SHA256 to create deterministic, verifiable keys:

	adminKey := auth.GenerateAdminKey(pollID, salt)
	err := auth.ValidateAdminKey(pollID, adminKey, salt)

The key is URL-safe base64 encoded without padding. Since it's deterministic,
the same poll ID and salt always produce the same key, and nothing is stored
in the database.

The key is returned once when the poll is created and guards the audit
endpoint through the X-Admin-Key header:

	if err := auth.CheckRequest(r, pollID, cfg.AdminKeySalt); err != nil {
		// 401
	}

Admin keys do not identify voters; voter IDs are taken as given.
*/
package auth

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package broadcast keeps the registry of live subscribers and fans
// leaderboard updates out to them.
//
// Broadcast never holds the registry lock while sending, and a slow or dead
// subscriber only affects itself. WSConn adapts a gorilla/websocket
// connection.
package broadcast

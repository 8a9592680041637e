// Package chat implements the session engine of the line chat server.
//
// A Hub owns the registry of live sessions and every piece of per-session
// state. All of it is mutated from the goroutine running Hub.Run: connection
// readers only frame lines and post them to the hub, connection writers only
// drain a per-session send queue, and delayed broadcasts post their action back
// onto the hub when their timer fires. Because of that single owner no lock
// guards the registry or the moderation counters.
package chat

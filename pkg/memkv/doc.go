// Package memkv is a sharded, thread-safe in-memory key/value store with
// per-key TTLs. Values are byte slices copied on the way in and out.
//
// A background goroutine removes keys as their deadlines pass; reads also
// drop expired keys lazily, so an expired key is never returned even if the
// expirer has not caught up yet.
//
// lanhop keeps its short-lived tables here: inbound stream sessions, the
// discovery peer table and the received-item history.
package memkv

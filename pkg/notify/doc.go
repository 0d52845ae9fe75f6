// Package notify delivers role change events pushed by the database.
//
// Role changes are announced with pg_notify on a well-known channel at
// the moment the change is recorded. The listener here subscribes to
// that channel, decodes the payloads, and hands them to a handler, so
// other processes can refresh cached role state without polling.
package notify

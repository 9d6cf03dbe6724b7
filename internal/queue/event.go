// Package queue defines the auth domain events exchanged over the message
// broker and the background consumer that records them.
package queue

// UserRegisteredEvent is published after a registration commits.  It carries
// enough for downstream consumers (welcome mail, analytics, audit log)
// without querying the primary database.
type UserRegisteredEvent struct {
	UserID       uint64 `json:"user_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	HasImage     bool   `json:"has_image"`
	RegisteredAt string `json:"registered_at"`
}

package domain

import "time"

// Installation records when the server first seeded its store.
type Installation struct {
	InstalledAt time.Time `json:"installed_at"`
	ID          string    `json:"id"`
	Version     string    `json:"version"`
}

package models

import "time"

// Session holds the conversational state for one client, keyed by phone
// number. At most one Intent is active at a time; further goals queue until
// the active one resolves or is abandoned.
type Session struct {
	Phone      string    `json:"phone"`
	ClientName string    `json:"client_name,omitempty"`
	Timezone   string    `json:"timezone"`
	Active     *Intent   `json:"active,omitempty"`
	Queue      []*Intent `json:"queue,omitempty"`
	History    []*Intent `json:"history,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// SessionSnapshot is the persisted form of a Session so conversation state
// survives a restart. Context carries the JSON-encoded Session.
type SessionSnapshot struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Phone     string    `json:"phone" gorm:"uniqueIndex"`
	Context   string    `json:"context"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

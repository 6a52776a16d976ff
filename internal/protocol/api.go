// Package protocol defines the API response types shared by the HTTP layers.
package protocol

import "time"

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Tenants int    `json:"tenants"`
}

// JournalEntry is one recorded mutation.
type JournalEntry struct {
	ID        int64     `json:"id"`
	Op        string    `json:"op"`
	Tenant    string    `json:"tenant"`
	Path      string    `json:"path"`
	Dst       string    `json:"dst,omitempty"`
	DocID     string    `json:"docId,omitempty"`
	Outcome   string    `json:"outcome"`
	Message   string    `json:"message,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// JournalResponse is returned by GET {route}/{vendor}/{alias}/v1/journal.
type JournalResponse struct {
	Tenant  string         `json:"tenant"`
	Entries []JournalEntry `json:"entries"`
}

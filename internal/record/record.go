package record

import "time"

// NotAvailable is stored for an absent or null email or address.
// It is never indexed.
const NotAvailable = "N/A"

// MinFields is the minimum number of tuple fields in a valid line.
const MinFields = 9

// Record is one ingested entity.
type Record struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	NetworkAddress string    `json:"ip"`
	EncodedEmail   string    `json:"encoded"`
	Source         string    `json:"source_file"`
	LoadedAt       time.Time `json:"loaded_at"`
}

// HasEmail reports whether the record carries an indexable email.
func (r Record) HasEmail() bool {
	return r.Email != "" && r.Email != NotAvailable
}

// HasAddress reports whether the record carries an indexable address.
func (r Record) HasAddress() bool {
	return r.NetworkAddress != "" && r.NetworkAddress != NotAvailable
}

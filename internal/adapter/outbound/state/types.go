// Package state provides file-based persistence for console session slots.
//
// The session file stores the named slots (bearer token, serialized admin
// profile) as one JSON document. This package provides atomic writes and
// file locking so that both slots always change together.
package state

import "time"

// SlotDocument is the top-level structure persisted in the session file.
type SlotDocument struct {
	// Version is the schema version for forward compatibility. Currently "1".
	Version string `json:"version"`

	// Slots maps slot names to their stored values.
	Slots map[string]string `json:"slots"`

	// UpdatedAt is when this file was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// newSlotDocument returns an empty document.
func newSlotDocument() *SlotDocument {
	return &SlotDocument{
		Version: "1",
		Slots:   map[string]string{},
	}
}

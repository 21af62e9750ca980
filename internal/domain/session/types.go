// Package session holds the administrator session: the bearer token handed
// out by the admin API and the profile of the admin it belongs to.
package session

import (
	"encoding/json"
	"errors"
)

// Slot names under which a session is persisted. Both slots are always
// written and cleared together.
const (
	TokenSlot = "adminToken"
	UserSlot  = "adminUser"
)

// ErrEmptyToken is returned when credentials are set without a token.
var ErrEmptyToken = errors.New("session token is empty")

// AdminUser is the profile of the logged-in administrator.
type AdminUser struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
}

// UnmarshalJSON accepts both the API's document shape ("_id", "is_admin")
// and the shape this package persists ("id", "isAdmin").
func (u *AdminUser) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        string `json:"id"`
		MongoID   string `json:"_id"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		IsAdmin   *bool  `json:"isAdmin"`
		SnakeFlag *bool  `json:"is_admin"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	u.ID = raw.ID
	if u.ID == "" {
		u.ID = raw.MongoID
	}
	u.Name = raw.Name
	u.Email = raw.Email
	switch {
	case raw.IsAdmin != nil:
		u.IsAdmin = *raw.IsAdmin
	case raw.SnakeFlag != nil:
		u.IsAdmin = *raw.SnakeFlag
	default:
		u.IsAdmin = false
	}
	return nil
}

// Session is a snapshot of who is logged in.
// The zero value is the logged-out session.
type Session struct {
	// Token is the opaque bearer credential. Empty when logged out.
	Token string
	// User is the admin profile, nil when absent or unreadable.
	User *AdminUser
}

// IsAuthenticated reports whether a token is present.
func (s Session) IsAuthenticated() bool {
	return s.Token != ""
}

// Clone returns a copy that shares no memory with s.
func (s Session) Clone() Session {
	out := Session{Token: s.Token}
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	return out
}

// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// NoLink is the stored value of a contact link the user did not provide.
// Links are never stored as the empty string.
const NoLink = "-"

// NormalizeLink trims a contact link and replaces a blank one with NoLink.
func NormalizeLink(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoLink
	}
	return s
}

// User represents a registered user account.
//
// WHY EmailVerified bool (stored as check_email INTEGER)?
// SQLite has no boolean type; the column holds 0 or 1. database/sql converts
// between the two, so Go code never sees the integer.
type User struct {
	ID            int64     `json:"id"            db:"id"`
	Nickname      string    `json:"nickname"      db:"nickname"` // unique login name
	Email         string    `json:"email"         db:"email"`    // unique
	PasswordHash  string    `json:"-"             db:"password_hash"`
	Name          string    `json:"name"          db:"name"`
	Surname       string    `json:"surname"       db:"surname"`
	Group         string    `json:"group"         db:"user_group"`
	EmailVerified bool      `json:"emailVerified" db:"check_email"`
	HrefVK        string    `json:"hrefVk"        db:"href_vk"`       // NoLink when unset
	HrefTelegram  string    `json:"hrefTelegram"  db:"href_telegram"` // NoLink when unset
	CreatedAt     time.Time `json:"createdAt"     db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt"     db:"updated_at"`
}

// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses forms, renders pages, redirects
//	Service (business layer) → validates, enforces ownership, sends mail
//	Repository (data layer)  → reads/writes SQLite
//
// Services take repository interfaces and a mail.Sender, never concrete
// types, so tests inject in-memory fakes (see fakes_test.go).
//
// Services return apperror values (ErrValidation, ErrConflict,
// ErrForbidden, ErrNotFound) and auth.ErrInvalidToken. Handlers decide how
// each one is shown; services know nothing about HTTP.
package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sakif/ivr-board/internal/apperror"
	"github.com/sakif/ivr-board/internal/model"
	"github.com/sakif/ivr-board/internal/session"
)

// ErrDelivery is returned when an email the caller asked for could not be
// handed to the mail transport.
var ErrDelivery = errors.New("service: email could not be delivered")

// IsOwner is the only authorization rule: a record may be changed by the
// user it belongs to and nobody else.
func IsOwner(actorID, ownerID int64) bool {
	return actorID != 0 && actorID == ownerID
}

// IdentityFor builds the session identity of u.
func IdentityFor(u *model.User) session.Identity {
	return session.Identity{
		UserID:        u.ID,
		Name:          u.Name,
		Surname:       u.Surname,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		HrefVK:        u.HrefVK,
		HrefTelegram:  u.HrefTelegram,
	}
}

// requireLength checks an already trimmed value.
func requireLength(field, value string, required bool, max int) error {
	if required && value == "" {
		return apperror.ValidationFailed(field, field+" is required")
	}
	if utf8.RuneCountInString(value) > max {
		return apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be %d characters or less", field, max))
	}
	return nil
}

// firstErr returns the first non-nil error.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func trim(s string) string { return strings.TrimSpace(s) }

package handler

// RESPONSE HELPERS:
// These functions standardise how a handler turns an outcome into a page.
//
// ERROR MAPPING:
// The service layer returns apperror sentinels; this file decides what the
// visitor sees for each of them:
//
//	ErrValidation, ErrConflict -> flash the message, 303 back to the form
//	ErrForbidden               -> 303 to the home page, logged as a warning
//	ErrNotFound                -> 404 page
//	auth.ErrInvalidToken       -> 400 page
//	service.ErrDelivery        -> flash "could not send the email", 303 back
//	anything else              -> 500 page, details only in the log
//
// A form that fails is answered with a redirect instead of a re-rendered
// page so a browser refresh never re-submits it.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/ivr-board/internal/apperror"
	"github.com/sakif/ivr-board/internal/auth"
	"github.com/sakif/ivr-board/internal/service"
	"github.com/sakif/ivr-board/internal/session"
)

const (
	msgDeliveryFailed = "could not send the email, try again later"
	msgInvalidLink    = "This link is invalid or has expired."
	msgNotFound       = "The page you are looking for does not exist."
	msgInternal       = "Something went wrong. Please try again later."
)

// errorPage is the data of error.html.
type errorPage struct {
	Status int
	Text   string
}

// base bundles what every handler needs to answer a request.
type base struct {
	render   *Renderer
	sessions *session.Manager
	logger   *slog.Logger
}

// page builds the common template data, consuming the pending flash message.
func (b *base) page(w http.ResponseWriter, r *http.Request, title string, data any) Page {
	p := Page{
		Title:   title,
		Message: b.sessions.TakeMessage(w, r),
		Data:    data,
	}
	if id, ok := session.IdentityFromContext(r.Context()); ok {
		p.Identity = &id
	}
	return p
}

// redirect sends a 303 so the browser follows with a GET.
func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// flashRedirect stores msg for the next page and redirects to it.
func (b *base) flashRedirect(w http.ResponseWriter, r *http.Request, msg, to string) {
	if err := b.sessions.Flash(w, r, msg); err != nil {
		b.logger.Error("failed to store flash message", slog.String("error", err.Error()))
	}
	redirect(w, r, to)
}

// renderError shows the error page with the given status.
func (b *base) renderError(w http.ResponseWriter, r *http.Request, status int, text string) {
	b.render.Render(w, status, "error", b.page(w, r, http.StatusText(status), errorPage{
		Status: status,
		Text:   text,
	}))
}

// fail maps a service error to a response. back is where a rejected form
// is sent with its message.
func (b *base) fail(w http.ResponseWriter, r *http.Request, err error, back string) {
	switch {
	case errors.Is(err, apperror.ErrValidation), errors.Is(err, apperror.ErrConflict):
		b.flashRedirect(w, r, apperror.UserMessage(err, "invalid input"), back)

	case errors.Is(err, apperror.ErrForbidden):
		b.logger.Warn("forbidden request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("reason", apperror.UserMessage(err, "")),
		)
		redirect(w, r, "/")

	case errors.Is(err, apperror.ErrNotFound):
		b.renderError(w, r, http.StatusNotFound, msgNotFound)

	case errors.Is(err, auth.ErrInvalidToken):
		b.renderError(w, r, http.StatusBadRequest, msgInvalidLink)

	case errors.Is(err, service.ErrDelivery):
		b.flashRedirect(w, r, msgDeliveryFailed, back)

	default:
		// NEVER expose internal error details to the visitor.
		b.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		b.renderError(w, r, http.StatusInternalServerError, msgInternal)
	}
}

// writeJSON sends a JSON response with the given status code.
// Headers must be set before the body is written.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; we can only log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/ivr-board/internal/apperror"
	"github.com/sakif/ivr-board/internal/catalog"
	"github.com/sakif/ivr-board/internal/model"
	"github.com/sakif/ivr-board/internal/service"
	"github.com/sakif/ivr-board/internal/session"
)

const (
	msgUnknownAction   = "unknown action"
	msgConfirmSent     = "a confirmation link was sent to your email"
	msgCredentialsSent = "your login details were sent to your email"
	msgNoSuchEmail     = "no user with this email"
	msgProfileSaved    = "profile saved"
)

// AccountHandler serves login, registration, email confirmation,
// credential recovery and the profile page.
type AccountHandler struct {
	base
	accounts *service.AccountService
	posts    *service.PostService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(
	accounts *service.AccountService,
	posts *service.PostService,
	render *Renderer,
	sessions *session.Manager,
	logger *slog.Logger,
) *AccountHandler {
	return &AccountHandler{
		base:     base{render: render, sessions: sessions, logger: logger},
		accounts: accounts,
		posts:    posts,
	}
}

// indexPage is the data of index.html.
type indexPage struct {
	Feed      catalog.Feed
	PostTypes []model.PostType
}

// HandleIndex shows the feed to a signed-in visitor and the login page to
// everyone else.
//
// HTTP: GET /
func (h *AccountHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	id, ok := session.IdentityFromContext(r.Context())
	if !ok {
		h.render.Render(w, http.StatusOK, "login", h.page(w, r, "Sign in", nil))
		return
	}

	feed, err := h.posts.PublicFeed(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, err, "/")
		return
	}
	h.render.Render(w, http.StatusOK, "index", h.page(w, r, "Board", indexPage{
		Feed:      feed,
		PostTypes: model.PostTypes,
	}))
}

// HandleIndexForm handles both forms of the login page. The submit button
// named "btn" tells them apart.
//
// HTTP: POST /
func (h *AccountHandler) HandleIndexForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.flashRedirect(w, r, msgUnknownAction, "/")
		return
	}

	var (
		user *model.User
		err  error
	)
	switch r.PostForm.Get("btn") {
	case "login":
		user, err = h.accounts.Login(r.Context(), r.PostForm.Get("nickname"), r.PostForm.Get("password"))
	case "register":
		user, err = h.accounts.Register(r.Context(), service.RegisterInput{
			Nickname: r.PostForm.Get("nickname"),
			Email:    r.PostForm.Get("email"),
			Password: r.PostForm.Get("password"),
			Name:     r.PostForm.Get("name"),
			Surname:  r.PostForm.Get("surname"),
			Group:    r.PostForm.Get("group"),
		})
	default:
		h.flashRedirect(w, r, msgUnknownAction, "/")
		return
	}
	if err != nil {
		h.fail(w, r, err, "/")
		return
	}

	h.signIn(w, r, user, "")
	redirect(w, r, "/")
}

// HandleLogout drops the session cookie.
//
// HTTP: GET /dropsession
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	redirect(w, r, "/")
}

// HandleConfirmEmail redeems a confirmation link. The link works without a
// session; if the visitor is signed in as the confirmed user, their
// session is refreshed to show the verified address.
//
// HTTP: GET /confirm_email/{token}
func (h *AccountHandler) HandleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.ConfirmEmail(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, err, "/")
		return
	}

	var p Page
	if id, ok := session.IdentityFromContext(r.Context()); ok && id.UserID == user.ID {
		fresh := h.signIn(w, r, user, "")
		p = Page{Title: "Email confirmed", Identity: &fresh, Data: user.Email}
	} else {
		p = h.page(w, r, "Email confirmed", user.Email)
	}
	h.render.Render(w, http.StatusOK, "confirm_email", p)
}

// HandleConfirmPage shows the owner's address with a form to resend the
// confirmation link, optionally to a new address.
//
// HTTP: GET /get_confirm/{userID}
func (h *AccountHandler) HandleConfirmPage(w http.ResponseWriter, r *http.Request) {
	h.ownProfilePage(w, r, "get_confirm", "Confirm your email")
}

// HandleConfirmResend sends a new confirmation link.
//
// HTTP: POST /get_confirm/{userID}
func (h *AccountHandler) HandleConfirmResend(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(r, "userID")
	if !ok {
		h.renderError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	back := fmt.Sprintf("/get_confirm/%d", userID)
	actor, _ := session.IdentityFromContext(r.Context())

	user, err := h.accounts.ResendConfirmation(r.Context(), actor.UserID, userID, r.FormValue("email"))
	switch {
	case err == nil:
		h.signIn(w, r, user, msgConfirmSent)
		redirect(w, r, "/")
	case errors.Is(err, service.ErrDelivery):
		// The address may have changed even though the mail failed.
		h.signIn(w, r, user, msgDeliveryFailed)
		redirect(w, r, back)
	default:
		h.fail(w, r, err, back)
	}
}

// HandleRecoverPage shows the "forgot login details" form.
//
// HTTP: GET /get_info
func (h *AccountHandler) HandleRecoverPage(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, http.StatusOK, "get_info", h.page(w, r, "Recover login details", nil))
}

// HandleRecover mails the nickname and a new password to the given address.
//
// HTTP: POST /get_info
func (h *AccountHandler) HandleRecover(w http.ResponseWriter, r *http.Request) {
	err := h.accounts.RecoverCredentials(r.Context(), r.FormValue("email"))
	switch {
	case err == nil:
		h.flashRedirect(w, r, msgCredentialsSent, "/")
	case errors.Is(err, apperror.ErrNotFound):
		h.flashRedirect(w, r, msgNoSuchEmail, "/get_info")
	default:
		h.fail(w, r, err, "/get_info")
	}
}

// HandleEditPage shows the profile form.
//
// HTTP: GET /edit/{userID}
func (h *AccountHandler) HandleEditPage(w http.ResponseWriter, r *http.Request) {
	h.ownProfilePage(w, r, "edit", "Edit profile")
}

// HandleEdit saves the profile form.
//
// HTTP: POST /edit/{userID}
func (h *AccountHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(r, "userID")
	if !ok {
		h.renderError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.flashRedirect(w, r, "invalid form", "/")
		return
	}
	actor, _ := session.IdentityFromContext(r.Context())

	user, err := h.accounts.UpdateProfile(r.Context(), actor.UserID, userID, service.ProfileInput{
		Nickname:     r.PostForm.Get("nickname"),
		Email:        r.PostForm.Get("email"),
		Password:     r.PostForm.Get("password"),
		Name:         r.PostForm.Get("name"),
		Surname:      r.PostForm.Get("surname"),
		Group:        r.PostForm.Get("group"),
		HrefVK:       r.PostForm.Get("href_vk"),
		HrefTelegram: r.PostForm.Get("href_telegram"),
	})
	if err != nil {
		h.fail(w, r, err, fmt.Sprintf("/edit/%d", userID))
		return
	}

	h.signIn(w, r, user, msgProfileSaved)
	redirect(w, r, "/")
}

// ownProfilePage renders a page about the signed-in user's own account.
// Any other user id sends the visitor home.
func (h *AccountHandler) ownProfilePage(w http.ResponseWriter, r *http.Request, name, title string) {
	userID, ok := idParam(r, "userID")
	if !ok {
		h.renderError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	actor, _ := session.IdentityFromContext(r.Context())
	if !service.IsOwner(actor.UserID, userID) {
		h.fail(w, r, apperror.Forbidden("not your account"), "/")
		return
	}

	user, err := h.accounts.GetUser(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err, "/")
		return
	}
	h.render.Render(w, http.StatusOK, name, h.page(w, r, title, user))
}

// signIn writes a session for user, replacing the whole identity at once.
func (h *AccountHandler) signIn(w http.ResponseWriter, r *http.Request, user *model.User, msg string) session.Identity {
	id := service.IdentityFor(user)
	if err := h.sessions.Save(w, session.State{Identity: &id, Message: msg}); err != nil {
		h.logger.Error("failed to save session",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return id
}

// idParam parses a positive integer URL parameter.
func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

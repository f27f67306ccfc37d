package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ivr-board/internal/apperror"
	"github.com/sakif/ivr-board/internal/auth"
	"github.com/sakif/ivr-board/internal/catalog"
	"github.com/sakif/ivr-board/internal/model"
	"github.com/sakif/ivr-board/internal/service"
	"github.com/sakif/ivr-board/internal/session"
)

const templateDir = "../../web/templates"

func newTestBase(t *testing.T) *base {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	render, err := NewRenderer(templateDir, logger)
	require.NoError(t, err)
	sessions, err := session.NewManager("handler-test-secret-0123", time.Hour, false)
	require.NoError(t, err)
	return &base{render: render, sessions: sessions, logger: logger}
}

// serveFail runs b.fail(err) behind the session middleware.
func serveFail(b *base, err error) *httptest.ResponseRecorder {
	h := b.sessions.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.fail(w, r, err, "/form")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/form", nil))
	return rec
}

func TestFail_StatusMapping(t *testing.T) {
	b := newTestBase(t)

	tests := []struct {
		name     string
		err      error
		status   int
		location string
		body     string
	}{
		{"validation", apperror.ValidationFailed("name", "name is required"), http.StatusSeeOther, "/form", ""},
		{"conflict", apperror.Conflict("nickname", "nickname taken"), http.StatusSeeOther, "/form", ""},
		{"forbidden", apperror.Forbidden("not yours"), http.StatusSeeOther, "/", ""},
		{"not found", apperror.NotFound("post", 7), http.StatusNotFound, "", msgNotFound},
		{"invalid token", auth.ErrInvalidToken, http.StatusBadRequest, "", msgInvalidLink},
		{"delivery", fmt.Errorf("%w: dial tcp", service.ErrDelivery), http.StatusSeeOther, "/form", ""},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, "", msgInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveFail(b, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.location, rec.Header().Get("Location"))
			if tt.body != "" {
				assert.Contains(t, rec.Body.String(), tt.body)
			}
		})
	}
}

func TestFail_FlashCarriesUserMessage(t *testing.T) {
	b := newTestBase(t)
	rec := serveFail(b, apperror.Conflict("email", "email taken"))

	// Replay the cookie on the next request and read the message back.
	req := httptest.NewRequest(http.MethodGet, "/form", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	assert.Equal(t, "email taken", b.sessions.Load(req).Message)
}

func TestFail_InternalErrorNotLeaked(t *testing.T) {
	b := newTestBase(t)
	rec := serveFail(b, errors.New("SELECT password_hash FROM users"))

	assert.NotContains(t, rec.Body.String(), "password_hash")
}

func TestRender_UnknownTemplate(t *testing.T) {
	b := newTestBase(t)
	rec := httptest.NewRecorder()
	b.render.Render(rec, http.StatusOK, "nope", Page{})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNewRenderer_MissingDir(t *testing.T) {
	_, err := NewRenderer(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

// =========================================================================
// FORMS
// =========================================================================

func TestBodyFromForm_PicksFieldsOfKind(t *testing.T) {
	form := url.Values{
		"type":          {"web"},
		"subject":       {"math"},
		"problemtype":   {"backend"},
		"name":          {"Board"},
		"demands":       {"Go"},
		"description":   {"desc"},
		"href_vk":       {"vk"},
		"href_telegram": {"tg"},
		"href_google":   {"g"},
		"href_quiz":     {"https://forms.example/q"},
	}
	contacts := model.Contacts{HrefVK: "vk", HrefTelegram: "tg", HrefGoogle: "g"}

	assert.Equal(t, model.Proposal{
		ProjectType: "web", Subject: "math", ProblemType: "backend",
		Name: "Board", Demands: "Go", Description: "desc", Contacts: contacts,
	}, bodyFromForm(model.TypeProposal, form))
	assert.Equal(t, model.Resume{ProblemType: "backend", Description: "desc", Contacts: contacts},
		bodyFromForm(model.TypeResume, form))
	assert.Equal(t, model.Poll{Name: "Board", Description: "desc", Contacts: contacts, HrefQuiz: "https://forms.example/q"},
		bodyFromForm(model.TypePoll, form))
	assert.Equal(t, model.Idea{ProjectType: "web", Subject: "math", Name: "Board", Description: "desc"},
		bodyFromForm(model.TypeIdea, form))
	assert.Nil(t, bodyFromForm(model.PostType(9), form))
}

func TestFormValues_InverseOfBodyFromForm(t *testing.T) {
	bodies := []model.PostBody{
		model.Proposal{ProjectType: "a", Subject: "b", ProblemType: "c", Name: "d", Demands: "e", Description: "f",
			Contacts: model.Contacts{HrefVK: "g", HrefTelegram: "h", HrefGoogle: "i"}},
		model.Resume{ProblemType: "c", Description: "f", Contacts: model.Contacts{HrefVK: "-", HrefTelegram: "-"}},
		model.Poll{Name: "d", Description: "f", HrefQuiz: "q", Contacts: model.Contacts{HrefVK: "-", HrefTelegram: "t"}},
		model.Idea{ProjectType: "a", Subject: "b", Name: "d", Description: "f"},
	}
	for _, body := range bodies {
		form := url.Values{}
		for k, v := range formValues(body) {
			form.Set(k, v)
		}
		assert.Equal(t, body, bodyFromForm(body.Type(), form), body.Type().String())
	}
}

func TestFieldsFor(t *testing.T) {
	assert.True(t, fieldsFor(model.TypeProposal).Demands)
	assert.False(t, fieldsFor(model.TypeResume).Name)
	assert.True(t, fieldsFor(model.TypePoll).Quiz)
	assert.False(t, fieldsFor(model.TypeIdea).Contacts)
}

func TestOwnPosts(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	posts := []model.Post{
		{ID: 1, UserID: 5, Body: model.Idea{Name: "idea"}, CreatedAt: now},
		{ID: 2, UserID: 5, Body: model.Resume{ProblemType: "backend"}, CreatedAt: now},
	}
	items := ownPosts(catalog.OwnFeed(posts, 5))

	require.Len(t, items, 2)
	assert.Equal(t, ownPost{2, model.TypeResume, "backend", now}, items[0])
	assert.Equal(t, ownPost{1, model.TypeIdea, "idea", now}, items[1])
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestIDParam(t *testing.T) {
	for raw, want := range map[string]bool{"12": true, "0": false, "-3": false, "abc": false, "": false} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = withURLParam(req, "postID", raw)
		_, ok := idParam(req, "postID")
		assert.Equal(t, want, ok, "idParam(%q)", raw)
	}
}

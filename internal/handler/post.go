package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/ivr-board/internal/catalog"
	"github.com/sakif/ivr-board/internal/model"
	"github.com/sakif/ivr-board/internal/service"
	"github.com/sakif/ivr-board/internal/session"
)

// PostHandler serves the post forms and the "my posts" page.
// Every route it serves requires a signed-in visitor.
type PostHandler struct {
	base
	posts *service.PostService
}

// NewPostHandler creates a new PostHandler.
func NewPostHandler(posts *service.PostService, render *Renderer, sessions *session.Manager, logger *slog.Logger) *PostHandler {
	return &PostHandler{
		base:  base{render: render, sessions: sessions, logger: logger},
		posts: posts,
	}
}

// fields says which inputs post_form.html shows for a post type.
type fields struct {
	ProjectType bool
	Subject     bool
	ProblemType bool
	Name        bool
	Demands     bool
	Contacts    bool
	Quiz        bool
}

func fieldsFor(kind model.PostType) fields {
	switch kind {
	case model.TypeProposal:
		return fields{ProjectType: true, Subject: true, ProblemType: true, Name: true, Demands: true, Contacts: true}
	case model.TypeResume:
		return fields{ProblemType: true, Contacts: true}
	case model.TypePoll:
		return fields{Name: true, Contacts: true, Quiz: true}
	case model.TypeIdea:
		return fields{ProjectType: true, Subject: true, Name: true}
	}
	return fields{}
}

// postForm is the data of post_form.html. Values holds the current field
// values keyed by input name.
type postForm struct {
	Kind   model.PostType
	Action string
	Fields fields
	Values map[string]string
}

// ownPost is one row of myposts.html.
type ownPost struct {
	ID        int64
	Kind      model.PostType
	Title     string
	CreatedAt time.Time
}

// myPostsPage is the data of myposts.html.
type myPostsPage struct {
	Items []ownPost
}

// ownPosts flattens a feed into one list, kind by kind, newest first
// within each kind. A résumé has no title, so its area is shown instead.
func ownPosts(feed catalog.Feed) []ownPost {
	items := make([]ownPost, 0, feed.Len())
	for _, e := range feed.Proposals {
		items = append(items, ownPost{e.ID, model.TypeProposal, e.Body.Name, e.CreatedAt})
	}
	for _, e := range feed.Resumes {
		items = append(items, ownPost{e.ID, model.TypeResume, e.Body.ProblemType, e.CreatedAt})
	}
	for _, e := range feed.Polls {
		items = append(items, ownPost{e.ID, model.TypePoll, e.Body.Name, e.CreatedAt})
	}
	for _, e := range feed.Ideas {
		items = append(items, ownPost{e.ID, model.TypeIdea, e.Body.Name, e.CreatedAt})
	}
	return items
}

// HandleAddPage shows an empty form for kind, with the author's contact
// links filled in. A confirmed email is offered as the third contact.
//
// HTTP: GET /add_{slug}
func (h *PostHandler) HandleAddPage(kind model.PostType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		author, _ := session.IdentityFromContext(r.Context())
		form := postForm{
			Kind:   kind,
			Action: "/add_" + kind.Slug(),
			Fields: fieldsFor(kind),
			Values: map[string]string{
				"href_vk":       author.HrefVK,
				"href_telegram": author.HrefTelegram,
			},
		}
		if author.EmailVerified {
			form.Values["href_google"] = author.Email
		}
		h.render.Render(w, http.StatusOK, "post_form", h.page(w, r, "New "+kind.String(), form))
	}
}

// HandleAdd creates a post of kind from the submitted form.
//
// HTTP: POST /add_{slug}
func (h *PostHandler) HandleAdd(kind model.PostType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		back := "/add_" + kind.Slug()
		if err := r.ParseForm(); err != nil {
			h.flashRedirect(w, r, "invalid form", back)
			return
		}
		author, _ := session.IdentityFromContext(r.Context())

		if _, err := h.posts.Create(r.Context(), author, bodyFromForm(kind, r.PostForm)); err != nil {
			h.fail(w, r, err, back)
			return
		}
		redirect(w, r, "/")
	}
}

// HandleUpdatePage shows the form of an existing post, filled in.
//
// HTTP: GET /update/{kind}/{postID}
func (h *PostHandler) HandleUpdatePage(w http.ResponseWriter, r *http.Request) {
	kind, postID, ok := postParams(r)
	if !ok {
		h.renderError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	actor, _ := session.IdentityFromContext(r.Context())

	post, err := h.posts.Get(r.Context(), actor.UserID, postID, kind)
	if err != nil {
		h.fail(w, r, err, "/myposts")
		return
	}

	form := postForm{
		Kind:   kind,
		Action: fmt.Sprintf("/update/%s/%d", kind.Slug(), postID),
		Fields: fieldsFor(kind),
		Values: formValues(post.Body),
	}
	h.render.Render(w, http.StatusOK, "post_form", h.page(w, r, "Edit "+kind.String(), form))
}

// HandleUpdate saves the form of an existing post.
//
// HTTP: POST /update/{kind}/{postID}
func (h *PostHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	kind, postID, ok := postParams(r)
	if !ok {
		h.renderError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	back := fmt.Sprintf("/update/%s/%d", kind.Slug(), postID)
	if err := r.ParseForm(); err != nil {
		h.flashRedirect(w, r, "invalid form", back)
		return
	}
	actor, _ := session.IdentityFromContext(r.Context())

	if _, err := h.posts.Update(r.Context(), actor.UserID, postID, bodyFromForm(kind, r.PostForm)); err != nil {
		h.fail(w, r, err, back)
		return
	}
	redirect(w, r, "/myposts")
}

// HandleDelete removes one of the visitor's own posts.
//
// HTTP: GET /delete/{postID}
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	postID, ok := idParam(r, "postID")
	if !ok {
		h.renderError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	actor, _ := session.IdentityFromContext(r.Context())

	if err := h.posts.Delete(r.Context(), actor.UserID, postID); err != nil {
		h.fail(w, r, err, "/myposts")
		return
	}
	redirect(w, r, "/myposts")
}

// HandleMyPosts lists the visitor's own posts with edit and delete links.
//
// HTTP: GET /myposts
func (h *PostHandler) HandleMyPosts(w http.ResponseWriter, r *http.Request) {
	actor, _ := session.IdentityFromContext(r.Context())

	feed, err := h.posts.OwnPosts(r.Context(), actor.UserID)
	if err != nil {
		h.fail(w, r, err, "/")
		return
	}
	h.render.Render(w, http.StatusOK, "myposts", h.page(w, r, "My posts", myPostsPage{Items: ownPosts(feed)}))
}

func postParams(r *http.Request) (model.PostType, int64, bool) {
	kind, ok := model.ParseSlug(chi.URLParam(r, "kind"))
	if !ok {
		return 0, 0, false
	}
	postID, ok := idParam(r, "postID")
	if !ok {
		return 0, 0, false
	}
	return kind, postID, true
}

// bodyFromForm reads the inputs of kind from a submitted form. Inputs that
// do not belong to kind are ignored.
func bodyFromForm(kind model.PostType, form url.Values) model.PostBody {
	contacts := model.Contacts{
		HrefVK:       form.Get("href_vk"),
		HrefTelegram: form.Get("href_telegram"),
		HrefGoogle:   form.Get("href_google"),
	}
	switch kind {
	case model.TypeProposal:
		return model.Proposal{
			ProjectType: form.Get("type"),
			Subject:     form.Get("subject"),
			ProblemType: form.Get("problemtype"),
			Name:        form.Get("name"),
			Demands:     form.Get("demands"),
			Description: form.Get("description"),
			Contacts:    contacts,
		}
	case model.TypeResume:
		return model.Resume{
			ProblemType: form.Get("problemtype"),
			Description: form.Get("description"),
			Contacts:    contacts,
		}
	case model.TypePoll:
		return model.Poll{
			Name:        form.Get("name"),
			Description: form.Get("description"),
			Contacts:    contacts,
			HrefQuiz:    form.Get("href_quiz"),
		}
	case model.TypeIdea:
		return model.Idea{
			ProjectType: form.Get("type"),
			Subject:     form.Get("subject"),
			Name:        form.Get("name"),
			Description: form.Get("description"),
		}
	}
	return nil
}

// formValues is the inverse of bodyFromForm.
func formValues(body model.PostBody) map[string]string {
	v := make(map[string]string)
	contacts := func(c model.Contacts) {
		v["href_vk"] = c.HrefVK
		v["href_telegram"] = c.HrefTelegram
		v["href_google"] = c.HrefGoogle
	}
	switch b := body.(type) {
	case model.Proposal:
		v["type"] = b.ProjectType
		v["subject"] = b.Subject
		v["problemtype"] = b.ProblemType
		v["name"] = b.Name
		v["demands"] = b.Demands
		v["description"] = b.Description
		contacts(b.Contacts)
	case model.Resume:
		v["problemtype"] = b.ProblemType
		v["description"] = b.Description
		contacts(b.Contacts)
	case model.Poll:
		v["name"] = b.Name
		v["description"] = b.Description
		v["href_quiz"] = b.HrefQuiz
		contacts(b.Contacts)
	case model.Idea:
		v["type"] = b.ProjectType
		v["subject"] = b.Subject
		v["name"] = b.Name
		v["description"] = b.Description
	}
	return v
}

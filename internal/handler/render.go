// Package handler contains the HTTP handlers of the bulletin board.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming request (URL params, form fields, session)
// 2. Call the service layer
// 3. Render a page or redirect
//
// Handlers hold no business rules. Ownership, validation and uniqueness
// live in the service package; this package only decides how each
// outcome is shown (see response.go).
package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/sakif/ivr-board/internal/model"
	"github.com/sakif/ivr-board/internal/session"
)

// pages are the content templates. Each is parsed together with
// base.html into its own set, since every page defines "content".
var pages = []string{
	"login",
	"index",
	"myposts",
	"edit",
	"get_confirm",
	"get_info",
	"confirm_email",
	"post_form",
	"error",
}

// Page is the data every template receives.
type Page struct {
	Title    string
	Identity *session.Identity // nil for anonymous visitors
	Message  string            // one-shot flash message
	Data     any               // page-specific data
}

// Renderer holds the parsed templates. Templates are parsed once at
// startup and reused for every request.
type Renderer struct {
	templates map[string]*template.Template
	logger    *slog.Logger
}

// NewRenderer parses base.html plus every page template in templateDir.
func NewRenderer(templateDir string, logger *slog.Logger) (*Renderer, error) {
	funcs := template.FuncMap{
		"hasLink": func(s string) bool { return s != "" && s != model.NoLink },
		"date":    func(t time.Time) string { return t.Format("02.01.2006 15:04") },
		"contactHref": func(s string) string {
			if strings.Contains(s, "@") && !strings.Contains(s, "://") {
				return "mailto:" + s
			}
			return s
		},
	}

	r := &Renderer{templates: make(map[string]*template.Template, len(pages)), logger: logger}
	for _, name := range pages {
		tmpl, err := template.New(name).Funcs(funcs).ParseFiles(
			filepath.Join(templateDir, "base.html"),
			filepath.Join(templateDir, name+".html"),
		)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// Render executes the named page into a buffer first, so a template error
// produces a clean 500 instead of half a page.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, p Page) {
	tmpl, ok := r.templates[name]
	if !ok {
		r.logger.Error("unknown template", slog.String("template", name))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", p); err != nil {
		r.logger.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ivr-board/internal/config"
	"github.com/sakif/ivr-board/internal/mail"
)

// outbox records every mail the server sends.
type outbox struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (o *outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

// lastTo returns the newest message addressed to addr.
func (o *outbox) lastTo(t *testing.T, addr string) mail.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].To[0] == addr {
			return o.sent[i]
		}
	}
	t.Fatalf("no mail sent to %s", addr)
	return mail.Message{}
}

// confirmPath extracts "/confirm_email/<token>" from a confirmation mail.
func confirmPath(t *testing.T, msg mail.Message) string {
	t.Helper()
	i := strings.Index(msg.Body, "/confirm_email/")
	require.GreaterOrEqual(t, i, 0, "mail has no confirmation link: %q", msg.Body)
	return strings.Fields(msg.Body[i:])[0]
}

type testApp struct {
	ts     *httptest.Server
	outbox *outbox
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Path = ":memory:"
	cfg.Server.TemplateDir = "../../web/templates"
	cfg.Server.StaticDir = "../../web/static"
	cfg.Server.BaseURL = "http://board.test"
	cfg.Security.SecretKey = "server-test-secret-0123456789"
	cfg.Security.BcryptCost = 4

	box := &outbox{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(cfg, logger, box)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testApp{ts: ts, outbox: box}
}

// browser is one visitor with its own cookie jar. Redirects are followed.
type browser struct {
	t      *testing.T
	app    *testApp
	client *http.Client
}

func (a *testApp) browser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, app: a, client: &http.Client{Jar: jar}}
}

func (b *browser) get(path string) (int, string) {
	b.t.Helper()
	resp, err := b.client.Get(b.app.ts.URL + path)
	require.NoError(b.t, err)
	return readResponse(b.t, resp)
}

func (b *browser) post(path string, form url.Values) (int, string) {
	b.t.Helper()
	resp, err := b.client.PostForm(b.app.ts.URL+path, form)
	require.NoError(b.t, err)
	return readResponse(b.t, resp)
}

func readResponse(t *testing.T, resp *http.Response) (int, string) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func (b *browser) register(nickname, email string) string {
	b.t.Helper()
	_, body := b.post("/", url.Values{
		"btn":      {"register"},
		"nickname": {nickname},
		"email":    {email},
		"password": {"secret123"},
		"name":     {strings.ToUpper(nickname[:1]) + nickname[1:]},
		"surname":  {"Tester"},
		"group":    {"IVR-1"},
	})
	return body
}

func (b *browser) login(nickname, password string) string {
	b.t.Helper()
	_, body := b.post("/", url.Values{
		"btn":      {"login"},
		"nickname": {nickname},
		"password": {password},
	})
	return body
}

// =========================================================================
// SCENARIOS
// =========================================================================

func TestHealthz(t *testing.T) {
	app := newTestApp(t)
	status, body := app.browser(t).get("/healthz")

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"status":"ok"`)
}

func TestRegisterLoginLogout(t *testing.T) {
	app := newTestApp(t)
	alice := app.browser(t)

	body := alice.register("alice", "a@x.com")
	assert.Contains(t, body, "Sign out", "registration signs the user in")
	assert.Contains(t, body, "Confirm email")

	msg := app.outbox.lastTo(t, "a@x.com")
	assert.Equal(t, "Confirm your email", msg.Subject)

	_, body = alice.get("/dropsession")
	assert.Contains(t, body, "Register", "logout shows the login page")
	assert.NotContains(t, body, "Sign out")

	body = alice.login("alice", "wrong-password")
	assert.Contains(t, body, "wrong nickname or password")
	assert.NotContains(t, body, "Sign out")

	body = alice.login("nobody", "secret123")
	assert.Contains(t, body, "wrong nickname or password")

	body = alice.login("alice", "secret123")
	assert.Contains(t, body, "Sign out")
}

func TestRegister_DuplicateNickname(t *testing.T) {
	app := newTestApp(t)
	app.browser(t).register("alice", "a@x.com")

	body := app.browser(t).register("alice", "other@x.com")
	assert.Contains(t, body, "nickname taken")
	assert.NotContains(t, body, "Sign out")

	body = app.browser(t).register("alicia", "a@x.com")
	assert.Contains(t, body, "email taken")
}

func TestFlashMessageShownOnce(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	body := b.login("ghost", "whatever1")
	assert.Contains(t, body, "wrong nickname or password")

	_, body = b.get("/")
	assert.NotContains(t, body, "wrong nickname or password")
}

func TestConfirmEmail(t *testing.T) {
	app := newTestApp(t)
	alice := app.browser(t)
	alice.register("alice", "a@x.com")
	link := confirmPath(t, app.outbox.lastTo(t, "a@x.com"))

	status, body := alice.get(link)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "a@x.com is now confirmed")
	assert.NotContains(t, body, "Confirm email", "session shows the verified address")

	// The link works without a session too.
	status, _ = app.browser(t).get(link)
	assert.Equal(t, http.StatusOK, status)

	status, _ = alice.get("/confirm_email/not-a-token")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestEditProfile_EmailChangeRequiresNewConfirmation(t *testing.T) {
	app := newTestApp(t)
	alice := app.browser(t)
	alice.register("alice", "a@x.com")
	oldLink := confirmPath(t, app.outbox.lastTo(t, "a@x.com"))
	alice.get(oldLink)

	_, body := alice.post("/edit/1", url.Values{
		"nickname": {"alice"},
		"email":    {"new@x.com"},
		"name":     {"Alice"},
		"surname":  {"Tester"},
	})
	assert.Contains(t, body, "profile saved")
	assert.Contains(t, body, "Confirm email", "email change resets verification")

	msg := app.outbox.lastTo(t, "new@x.com")
	assert.Equal(t, "Confirm your new email", msg.Subject)

	// The link for the old address verifies nothing now.
	status, _ := alice.get(oldLink)
	assert.Equal(t, http.StatusBadRequest, status)

	_, body = alice.get(confirmPath(t, msg))
	assert.Contains(t, body, "new@x.com is now confirmed")

	// The old password still works after a profile save with no password.
	alice.get("/dropsession")
	assert.Contains(t, alice.login("alice", "secret123"), "Sign out")
}

func TestEditProfile_OtherUserRedirectsHome(t *testing.T) {
	app := newTestApp(t)
	app.browser(t).register("alice", "a@x.com")
	bob := app.browser(t)
	bob.register("bob", "b@x.com")

	_, body := bob.get("/edit/1")
	assert.NotContains(t, body, "a@x.com")

	bob.post("/edit/1", url.Values{
		"nickname": {"hacked"},
		"email":    {"a@x.com"},
		"name":     {"H"},
		"surname":  {"H"},
	})
	fresh := app.browser(t)
	assert.Contains(t, fresh.login("alice", "secret123"), "Sign out", "alice's account is untouched")
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	app := newTestApp(t)
	anon := app.browser(t)

	for _, path := range []string{"/myposts", "/add_idea", "/edit/1", "/get_confirm/1", "/delete/1"} {
		_, body := anon.get(path)
		assert.Contains(t, body, "Register", "%s should land on the login page", path)
	}
}

func TestRecoverCredentials(t *testing.T) {
	app := newTestApp(t)
	app.browser(t).register("alice", "a@x.com")
	b := app.browser(t)

	_, body := b.post("/get_info", url.Values{"email": {"nobody@x.com"}})
	assert.Contains(t, body, "no user with this email")

	_, body = b.post("/get_info", url.Values{"email": {"a@x.com"}})
	assert.Contains(t, body, "your login details were sent")

	msg := app.outbox.lastTo(t, "a@x.com")
	require.Equal(t, "Your login details", msg.Subject)
	var password string
	for _, line := range strings.Split(msg.Body, "\n") {
		if p, ok := strings.CutPrefix(line, "Password: "); ok {
			password = p
		}
	}
	require.NotEmpty(t, password)

	assert.Contains(t, b.login("alice", "secret123"), "wrong nickname or password")
	assert.Contains(t, b.login("alice", password), "Sign out")
}

func TestPosts_OwnershipAndFeeds(t *testing.T) {
	app := newTestApp(t)
	alice := app.browser(t)
	alice.register("alice", "a@x.com")
	bob := app.browser(t)
	bob.register("bob", "b@x.com")

	_, body := alice.post("/add_idea", url.Values{
		"name":        {"Shared kitchen"},
		"description": {"Cook together"},
	})
	assert.NotContains(t, body, "Shared kitchen", "own posts are not in the author's feed")

	_, body = bob.get("/")
	assert.Contains(t, body, "Shared kitchen")
	assert.Contains(t, body, "Alice Tester")

	_, body = alice.get("/myposts")
	assert.Contains(t, body, "Shared kitchen")
	assert.Contains(t, body, "/update/idea/1")

	// Bob can neither open, change nor delete Alice's post.
	_, body = bob.get("/update/idea/1")
	assert.NotContains(t, body, `action="/update/idea/1"`, "bob is sent home instead of the form")
	bob.post("/update/idea/1", url.Values{"name": {"Hijacked"}, "description": {"x"}})
	bob.get("/delete/1")

	_, body = alice.get("/myposts")
	assert.Contains(t, body, "Shared kitchen")
	assert.NotContains(t, body, "Hijacked")

	// A post opened under the wrong kind does not exist.
	status, _ := alice.get("/update/quiz/1")
	assert.Equal(t, http.StatusNotFound, status)

	_, body = alice.post("/update/idea/1", url.Values{"name": {"Shared garden"}, "description": {"Grow together"}})
	assert.Contains(t, body, "Shared garden")

	alice.get("/delete/1")
	_, body = alice.get("/myposts")
	assert.NotContains(t, body, "Shared garden")
}

func TestPosts_ValidationFlashesBack(t *testing.T) {
	app := newTestApp(t)
	alice := app.browser(t)
	alice.register("alice", "a@x.com")

	_, body := alice.post("/add_quiz", url.Values{
		"name":        {"Survey"},
		"description": {"Please answer"},
	})
	assert.Contains(t, body, "href_quiz", "redirected back to the poll form")
	assert.Contains(t, body, `class="flash"`)

	_, body = alice.get("/myposts")
	assert.NotContains(t, body, "Survey")
}

func TestAddForm_PrefillsContacts(t *testing.T) {
	app := newTestApp(t)
	alice := app.browser(t)
	alice.register("alice", "a@x.com")

	_, body := alice.get("/add_post")
	assert.NotContains(t, body, `value="a@x.com"`, "unconfirmed email is not offered")

	alice.get(confirmPath(t, app.outbox.lastTo(t, "a@x.com")))
	_, body = alice.get("/add_post")
	assert.Contains(t, body, `value="a@x.com"`)
}

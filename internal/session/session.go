// Package session keeps the signed-in identity in a signed cookie.
//
// COOKIE LAYOUT:
// The cookie value is an HS256 JWT whose claims hold the seven identity
// fields plus a one-shot flash message:
//
//	{"usid":1,"name":"Alice","surname":"A","email":"a@x.com","check_email":false,
//	 "href_vk":"-","href_telegram":"-","message":"","iat":...,"exp":...}
//
// ALL-OR-NOTHING:
// An identity is rebuilt only when every one of the seven fields is present
// with the right type. A cookie missing any of them (or failing signature
// or expiry checks) yields an anonymous request. There is no partially
// signed-in state.
package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the name of the session cookie.
const CookieName = "ivr_session"

// claim keys
const (
	keyUserID       = "usid"
	keyName         = "name"
	keySurname      = "surname"
	keyEmail        = "email"
	keyCheckEmail   = "check_email"
	keyHrefVK       = "href_vk"
	keyHrefTelegram = "href_telegram"
	keyMessage      = "message"
)

// Identity is the authenticated user as seen by one request.
// It is a value: handlers receive a copy and cannot change what other
// code in the same request sees.
type Identity struct {
	UserID        int64
	Name          string
	Surname       string
	Email         string
	EmailVerified bool
	HrefVK        string
	HrefTelegram  string
}

// State is everything stored in the session cookie.
type State struct {
	Identity *Identity // nil when anonymous
	Message  string    // flash message shown on the next page
}

// Manager encodes and decodes session cookies.
type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewManager creates a Manager signing cookies with secret.
// Cookies expire ttl after they were last written.
func NewManager(secret string, ttl time.Duration, secure bool) (*Manager, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("session: secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session: ttl must be positive")
	}
	return &Manager{secret: []byte(secret), ttl: ttl, secure: secure, now: time.Now}, nil
}

// Load reads the session cookie from r. Any decoding failure yields an
// empty, anonymous State.
func (m *Manager) Load(r *http.Request) State {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return State{}
	}

	claims, err := m.decode(cookie.Value)
	if err != nil {
		return State{}
	}

	msg, _ := claims[keyMessage].(string)
	return State{Identity: identityFromClaims(claims), Message: msg}
}

// Save writes st to the response. The seven identity fields are written
// together or not at all.
func (m *Manager) Save(w http.ResponseWriter, st State) error {
	claims := jwt.MapClaims{keyMessage: st.Message}
	if st.Identity != nil {
		id := st.Identity
		claims[keyUserID] = id.UserID
		claims[keyName] = id.Name
		claims[keySurname] = id.Surname
		claims[keyEmail] = id.Email
		claims[keyCheckEmail] = id.EmailVerified
		claims[keyHrefVK] = id.HrefVK
		claims[keyHrefTelegram] = id.HrefTelegram
	}

	value, err := m.encode(claims)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear removes the session cookie, signing the user out.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// encode signs claims, adding iat and exp.
func (m *Manager) encode(claims jwt.MapClaims) (string, error) {
	now := m.now()
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(m.ttl).Unix()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("session: signing cookie: %w", err)
	}
	return signed, nil
}

func (m *Manager) decode(value string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(
		value,
		claims,
		func(token *jwt.Token) (any, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// identityFromClaims rebuilds the identity, or returns nil if any of the
// seven fields is missing or has the wrong type.
func identityFromClaims(c jwt.MapClaims) *Identity {
	// JSON numbers decode as float64.
	usid, ok := c[keyUserID].(float64)
	if !ok || usid != float64(int64(usid)) {
		return nil
	}
	verified, ok := c[keyCheckEmail].(bool)
	if !ok {
		return nil
	}

	var strs [5]string
	for i, key := range []string{keyName, keySurname, keyEmail, keyHrefVK, keyHrefTelegram} {
		s, ok := c[key].(string)
		if !ok {
			return nil
		}
		strs[i] = s
	}

	return &Identity{
		UserID:        int64(usid),
		Name:          strs[0],
		Surname:       strs[1],
		Email:         strs[2],
		EmailVerified: verified,
		HrefVK:        strs[3],
		HrefTelegram:  strs[4],
	}
}

// contextKey is unexported so no other package can collide with it.
type contextKey string

const stateKey contextKey = "session"

// Middleware decodes the cookie once per request and stores the result in
// the request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := m.Load(r)
		ctx := context.WithValue(r.Context(), stateKey, st)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// StateFromContext returns the session state stored by Middleware.
func StateFromContext(ctx context.Context) State {
	st, _ := ctx.Value(stateKey).(State)
	return st
}

// IdentityFromContext returns a copy of the request's identity.
// ok is false for anonymous requests.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	st := StateFromContext(ctx)
	if st.Identity == nil {
		return Identity{}, false
	}
	return *st.Identity, true
}

// RequireIdentity redirects anonymous requests to the login page.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Flash stores msg for the next page, keeping the current identity.
func (m *Manager) Flash(w http.ResponseWriter, r *http.Request, msg string) error {
	st := StateFromContext(r.Context())
	st.Message = msg
	return m.Save(w, st)
}

// TakeMessage returns the pending flash message and clears it from the
// cookie so it is shown once.
func (m *Manager) TakeMessage(w http.ResponseWriter, r *http.Request) string {
	st := StateFromContext(r.Context())
	if st.Message == "" {
		return ""
	}
	msg := st.Message
	st.Message = ""
	_ = m.Save(w, st)
	return msg
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sakif/ivr-board/internal/apperror"
	"github.com/sakif/ivr-board/internal/auth"
	"github.com/sakif/ivr-board/internal/mail"
	"github.com/sakif/ivr-board/internal/model"
	"github.com/sakif/ivr-board/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================
//
// Hand-written in-memory fakes of the repository interfaces and the mail
// sender. They store copies so tests cannot reach into the fake's state
// through a returned pointer.

type fakeUserRepo struct {
	users  map[int64]*model.User
	nextID int64
	// set to simulate a database failure
	failUpdates error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*model.User)}
}

func (f *fakeUserRepo) conflict(u *model.User) error {
	for _, other := range f.users {
		if other.ID == u.ID {
			continue
		}
		if other.Nickname == u.Nickname {
			return apperror.Conflict("nickname", "nickname taken")
		}
		if other.Email == u.Email {
			return apperror.Conflict("email", "email taken")
		}
	}
	return nil
}

func (f *fakeUserRepo) CreateUser(_ context.Context, u *model.User) error {
	if err := f.conflict(u); err != nil {
		return err
	}
	f.nextID++
	u.ID = f.nextID
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	stored := *u
	f.users[u.ID] = &stored
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *u
	return &result, nil
}

func (f *fakeUserRepo) GetUserByNickname(_ context.Context, nickname string) (*model.User, error) {
	for _, u := range f.users {
		if u.Nickname == nickname {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFoundBy("user", "nickname", nickname)
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFoundBy("user", "email", email)
}

func (f *fakeUserRepo) UpdateUser(_ context.Context, u *model.User) error {
	if f.failUpdates != nil {
		return f.failUpdates
	}
	if _, ok := f.users[u.ID]; !ok {
		return apperror.NotFound("user", u.ID)
	}
	if err := f.conflict(u); err != nil {
		return err
	}
	stored := *u
	f.users[u.ID] = &stored
	return nil
}

func (f *fakeUserRepo) SetEmailVerified(_ context.Context, id int64, verified bool) error {
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.EmailVerified = verified
	return nil
}

func (f *fakeUserRepo) SetPasswordHash(_ context.Context, id int64, hash string) error {
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.PasswordHash = hash
	return nil
}

type fakePostRepo struct {
	posts  map[int64]*model.Post
	nextID int64
	clock  time.Time
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{
		posts: make(map[int64]*model.Post),
		clock: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakePostRepo) CreatePost(_ context.Context, p *model.Post) error {
	f.nextID++
	f.clock = f.clock.Add(time.Minute)
	p.ID = f.nextID
	p.CreatedAt = f.clock
	p.UpdatedAt = f.clock
	stored := *p
	f.posts[p.ID] = &stored
	return nil
}

func (f *fakePostRepo) GetPostByID(_ context.Context, id int64) (*model.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return nil, apperror.NotFound("post", id)
	}
	result := *p
	return &result, nil
}

func (f *fakePostRepo) ListPosts(_ context.Context, opts repository.ListOptions) ([]model.Post, error) {
	var result []model.Post
	for _, p := range f.posts {
		if opts.OwnerID != 0 && p.UserID != opts.OwnerID {
			continue
		}
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (f *fakePostRepo) UpdatePost(_ context.Context, p *model.Post) error {
	stored, ok := f.posts[p.ID]
	if !ok || stored.Type() != p.Type() {
		return apperror.NotFound("post", p.ID)
	}
	copied := *p
	f.posts[p.ID] = &copied
	return nil
}

func (f *fakePostRepo) DeletePost(_ context.Context, id int64) error {
	if _, ok := f.posts[id]; !ok {
		return apperror.NotFound("post", id)
	}
	delete(f.posts, id)
	return nil
}

// fakeMailer records every message. Set err to make Send fail.
type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) last(t *testing.T) mail.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no mail was sent")
	}
	return m.sent[len(m.sent)-1]
}

var errSMTPDown = errors.New("smtp: connection refused")

// =========================================================================
// HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type accountFixture struct {
	svc    *AccountService
	users  *fakeUserRepo
	mailer *fakeMailer
	tokens *auth.TokenService
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	tokens, err := auth.NewTokenService("service-test-secret-0123")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	f := &accountFixture{
		users:  newFakeUserRepo(),
		mailer: &fakeMailer{},
		tokens: tokens,
	}
	f.svc = NewAccountService(f.users, auth.NewPasswordServiceForTest(), tokens, f.mailer, AccountConfig{
		BaseURL:            "http://board.test",
		ConfirmTokenMaxAge: time.Hour,
		MailTimeout:        time.Second,
	}, testLogger())
	return f
}

func (f *accountFixture) register(t *testing.T, nickname string) *model.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterInput{
		Nickname: nickname,
		Email:    nickname + "@x.com",
		Password: "secret123",
		Name:     "Name",
		Surname:  "Surname",
		Group:    "IVR-1",
	})
	if err != nil {
		t.Fatalf("Register(%q) error = %v", nickname, err)
	}
	return u
}

// Package repository declares the storage interfaces the services depend on.
//
// Implementations translate storage failures into apperror values:
// a missing row is apperror.ErrNotFound and a UNIQUE violation is
// apperror.ErrConflict, so services never inspect driver errors.
package repository

import (
	"context"

	"github.com/sakif/ivr-board/internal/model"
)

// ListOptions filters and pages ListPosts.
type ListOptions struct {
	OwnerID int64 // 0 means every owner
	Limit   int   // 0 means no limit
	Offset  int
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByNickname(ctx context.Context, nickname string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UpdateUser rewrites the profile, credentials and verification flag.
	UpdateUser(ctx context.Context, user *model.User) error
	SetEmailVerified(ctx context.Context, id int64, verified bool) error
	SetPasswordHash(ctx context.Context, id int64, hash string) error
}

type PostRepository interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPostByID(ctx context.Context, id int64) (*model.Post, error)
	ListPosts(ctx context.Context, opts ListOptions) ([]model.Post, error)
	// UpdatePost replaces the body of an existing post. UserID and
	// post_type are never changed.
	UpdatePost(ctx context.Context, post *model.Post) error
	DeletePost(ctx context.Context, id int64) error
}

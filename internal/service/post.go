package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/ivr-board/internal/apperror"
	"github.com/sakif/ivr-board/internal/catalog"
	"github.com/sakif/ivr-board/internal/model"
	"github.com/sakif/ivr-board/internal/repository"
	"github.com/sakif/ivr-board/internal/session"
)

const (
	MaxPostTitleLength   = 200
	MaxPostFieldLength   = 200
	MaxDescriptionLength = 5000
)

// PostService handles creating, editing, deleting and listing posts.
type PostService struct {
	repo   repository.PostRepository
	logger *slog.Logger
}

func NewPostService(repo repository.PostRepository, logger *slog.Logger) *PostService {
	return &PostService{repo: repo, logger: logger}
}

// Create validates body and stores it as a new post by author. The
// author's current name and surname are copied onto the post.
func (s *PostService) Create(ctx context.Context, author session.Identity, body model.PostBody) (*model.Post, error) {
	body, err := normalizeBody(body)
	if err != nil {
		return nil, err
	}

	post := &model.Post{
		UserID:       author.UserID,
		OwnerName:    author.Name,
		OwnerSurname: author.Surname,
		Body:         body,
	}
	if err := s.repo.CreatePost(ctx, post); err != nil {
		s.logger.Error("failed to create post",
			slog.Int64("user_id", author.UserID),
			slog.String("type", body.Type().String()),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service: creating post: %w", err)
	}

	s.logger.Info("post created",
		slog.Int64("post_id", post.ID),
		slog.Int64("user_id", post.UserID),
		slog.String("type", body.Type().String()),
	)
	return post, nil
}

// Get returns the actor's own post for editing. A post of another kind
// than requested is reported as not found.
func (s *PostService) Get(ctx context.Context, actorID, postID int64, kind model.PostType) (*model.Post, error) {
	post, err := s.owned(ctx, actorID, postID)
	if err != nil {
		return nil, err
	}
	if post.Type() != kind {
		return nil, apperror.NotFound(kind.String(), postID)
	}
	return post, nil
}

// Update replaces the body of the actor's own post. The new body must be
// of the stored type.
func (s *PostService) Update(ctx context.Context, actorID, postID int64, body model.PostBody) (*model.Post, error) {
	body, err := normalizeBody(body)
	if err != nil {
		return nil, err
	}

	post, err := s.owned(ctx, actorID, postID)
	if err != nil {
		return nil, err
	}
	if post.Type() != body.Type() {
		return nil, apperror.ValidationFailed("type",
			fmt.Sprintf("post %d is a %s, not a %s", postID, post.Type(), body.Type()))
	}

	post.Body = body
	if err := s.repo.UpdatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("service: updating post %d: %w", postID, err)
	}

	s.logger.Info("post updated", slog.Int64("post_id", postID))
	return post, nil
}

// Delete removes the actor's own post.
func (s *PostService) Delete(ctx context.Context, actorID, postID int64) error {
	if _, err := s.owned(ctx, actorID, postID); err != nil {
		return err
	}
	if err := s.repo.DeletePost(ctx, postID); err != nil {
		return err
	}

	s.logger.Info("post deleted", slog.Int64("post_id", postID), slog.Int64("user_id", actorID))
	return nil
}

// PublicFeed is the home page: every post not written by viewerID.
func (s *PostService) PublicFeed(ctx context.Context, viewerID int64) (catalog.Feed, error) {
	posts, err := s.repo.ListPosts(ctx, repository.ListOptions{})
	if err != nil {
		s.logger.Error("failed to list posts", slog.String("error", err.Error()))
		return catalog.Feed{}, fmt.Errorf("service: listing posts: %w", err)
	}
	return catalog.PublicFeed(posts, viewerID), nil
}

// OwnPosts is the "my posts" page.
func (s *PostService) OwnPosts(ctx context.Context, ownerID int64) (catalog.Feed, error) {
	posts, err := s.repo.ListPosts(ctx, repository.ListOptions{OwnerID: ownerID})
	if err != nil {
		s.logger.Error("failed to list own posts",
			slog.Int64("user_id", ownerID),
			slog.String("error", err.Error()),
		)
		return catalog.Feed{}, fmt.Errorf("service: listing posts of user %d: %w", ownerID, err)
	}
	return catalog.OwnFeed(posts, ownerID), nil
}

// owned loads a post and checks that actorID owns it.
func (s *PostService) owned(ctx context.Context, actorID, postID int64) (*model.Post, error) {
	post, err := s.repo.GetPostByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !IsOwner(actorID, post.UserID) {
		s.logger.Warn("forbidden post access",
			slog.Int64("actor_id", actorID),
			slog.Int64("post_id", postID),
			slog.Int64("owner_id", post.UserID),
		)
		return nil, apperror.Forbidden("you can only change your own posts")
	}
	return post, nil
}

// normalizeBody trims every field, applies the "-" sentinel to blank
// contact links and validates the result.
func normalizeBody(body model.PostBody) (model.PostBody, error) {
	switch b := body.(type) {
	case model.Proposal:
		b.ProjectType = trim(b.ProjectType)
		b.Subject = trim(b.Subject)
		b.ProblemType = trim(b.ProblemType)
		b.Name = trim(b.Name)
		b.Demands = trim(b.Demands)
		b.Description = trim(b.Description)
		b.Contacts = normalizeContacts(b.Contacts)
		return b, firstErr(
			requireLength("name", b.Name, true, MaxPostTitleLength),
			requireLength("description", b.Description, true, MaxDescriptionLength),
			requireLength("type", b.ProjectType, false, MaxPostFieldLength),
			requireLength("subject", b.Subject, false, MaxPostFieldLength),
			requireLength("problemtype", b.ProblemType, false, MaxPostFieldLength),
			requireLength("demands", b.Demands, false, MaxDescriptionLength),
			validateContacts(b.Contacts),
		)
	case model.Resume:
		b.ProblemType = trim(b.ProblemType)
		b.Description = trim(b.Description)
		b.Contacts = normalizeContacts(b.Contacts)
		return b, firstErr(
			requireLength("description", b.Description, true, MaxDescriptionLength),
			requireLength("problemtype", b.ProblemType, false, MaxPostFieldLength),
			validateContacts(b.Contacts),
		)
	case model.Poll:
		b.Name = trim(b.Name)
		b.Description = trim(b.Description)
		b.HrefQuiz = trim(b.HrefQuiz)
		b.Contacts = normalizeContacts(b.Contacts)
		return b, firstErr(
			requireLength("name", b.Name, true, MaxPostTitleLength),
			requireLength("description", b.Description, true, MaxDescriptionLength),
			requireLength("href_quiz", b.HrefQuiz, true, MaxLinkLength),
			validateContacts(b.Contacts),
		)
	case model.Idea:
		b.ProjectType = trim(b.ProjectType)
		b.Subject = trim(b.Subject)
		b.Name = trim(b.Name)
		b.Description = trim(b.Description)
		return b, firstErr(
			requireLength("name", b.Name, true, MaxPostTitleLength),
			requireLength("description", b.Description, true, MaxDescriptionLength),
			requireLength("type", b.ProjectType, false, MaxPostFieldLength),
			requireLength("subject", b.Subject, false, MaxPostFieldLength),
		)
	}
	return nil, apperror.ValidationFailed("type", "unknown post type")
}

func normalizeContacts(c model.Contacts) model.Contacts {
	c.HrefGoogle = trim(c.HrefGoogle)
	return c.Normalized()
}

func validateContacts(c model.Contacts) error {
	return firstErr(
		requireLength("href_vk", c.HrefVK, false, MaxLinkLength),
		requireLength("href_telegram", c.HrefTelegram, false, MaxLinkLength),
		requireLength("href_google", c.HrefGoogle, false, MaxLinkLength),
	)
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/ivr-board/internal/apperror"
	"github.com/sakif/ivr-board/internal/model"
	"github.com/sakif/ivr-board/internal/repository"
)

var _ repository.PostRepository = (*DB)(nil)

const postColumns = `id, user_id, owner_name, owner_surname, post_type,
	project_type, subject, problem_type, name, demands, description,
	href_vk, href_telegram, href_google, href_quiz, created_at, updated_at`

// postRow is the flat shape of the posts table. Columns a post type does
// not use are NULL.
type postRow struct {
	ID           int64          `db:"id"`
	UserID       int64          `db:"user_id"`
	OwnerName    string         `db:"owner_name"`
	OwnerSurname string         `db:"owner_surname"`
	PostType     int            `db:"post_type"`
	ProjectType  sql.NullString `db:"project_type"`
	Subject      sql.NullString `db:"subject"`
	ProblemType  sql.NullString `db:"problem_type"`
	Name         sql.NullString `db:"name"`
	Demands      sql.NullString `db:"demands"`
	Description  sql.NullString `db:"description"`
	HrefVK       sql.NullString `db:"href_vk"`
	HrefTelegram sql.NullString `db:"href_telegram"`
	HrefGoogle   sql.NullString `db:"href_google"`
	HrefQuiz     sql.NullString `db:"href_quiz"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func str(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func (r *postRow) setContacts(c model.Contacts) {
	r.HrefVK = str(c.HrefVK)
	r.HrefTelegram = str(c.HrefTelegram)
	r.HrefGoogle = str(c.HrefGoogle)
}

func (r *postRow) contacts() model.Contacts {
	return model.Contacts{
		HrefVK:       r.HrefVK.String,
		HrefTelegram: r.HrefTelegram.String,
		HrefGoogle:   r.HrefGoogle.String,
	}
}

// toRow flattens p. Only the columns of p's variant are set.
func toRow(p *model.Post) (postRow, error) {
	r := postRow{
		ID:           p.ID,
		UserID:       p.UserID,
		OwnerName:    p.OwnerName,
		OwnerSurname: p.OwnerSurname,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}

	switch b := p.Body.(type) {
	case model.Proposal:
		r.ProjectType = str(b.ProjectType)
		r.Subject = str(b.Subject)
		r.ProblemType = str(b.ProblemType)
		r.Name = str(b.Name)
		r.Demands = str(b.Demands)
		r.Description = str(b.Description)
		r.setContacts(b.Contacts)
	case model.Resume:
		r.ProblemType = str(b.ProblemType)
		r.Description = str(b.Description)
		r.setContacts(b.Contacts)
	case model.Poll:
		r.Name = str(b.Name)
		r.Description = str(b.Description)
		r.HrefQuiz = str(b.HrefQuiz)
		r.setContacts(b.Contacts)
	case model.Idea:
		r.ProjectType = str(b.ProjectType)
		r.Subject = str(b.Subject)
		r.Name = str(b.Name)
		r.Description = str(b.Description)
	default:
		return postRow{}, fmt.Errorf("sqlite: unsupported post body %T", p.Body)
	}
	r.PostType = int(p.Body.Type())
	return r, nil
}

// toModel rebuilds the tagged union from a row.
func (r *postRow) toModel() (model.Post, error) {
	p := model.Post{
		ID:           r.ID,
		UserID:       r.UserID,
		OwnerName:    r.OwnerName,
		OwnerSurname: r.OwnerSurname,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}

	switch model.PostType(r.PostType) {
	case model.TypeProposal:
		p.Body = model.Proposal{
			ProjectType: r.ProjectType.String,
			Subject:     r.Subject.String,
			ProblemType: r.ProblemType.String,
			Name:        r.Name.String,
			Demands:     r.Demands.String,
			Description: r.Description.String,
			Contacts:    r.contacts(),
		}
	case model.TypeResume:
		p.Body = model.Resume{
			ProblemType: r.ProblemType.String,
			Description: r.Description.String,
			Contacts:    r.contacts(),
		}
	case model.TypePoll:
		p.Body = model.Poll{
			Name:        r.Name.String,
			Description: r.Description.String,
			Contacts:    r.contacts(),
			HrefQuiz:    r.HrefQuiz.String,
		}
	case model.TypeIdea:
		p.Body = model.Idea{
			ProjectType: r.ProjectType.String,
			Subject:     r.Subject.String,
			Name:        r.Name.String,
			Description: r.Description.String,
		}
	default:
		return model.Post{}, fmt.Errorf("sqlite: post %d has unknown post_type %d", r.ID, r.PostType)
	}
	return p, nil
}

// CreatePost inserts post and sets its ID and timestamps.
func (db *DB) CreatePost(ctx context.Context, post *model.Post) error {
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now

	row, err := toRow(post)
	if err != nil {
		return err
	}

	res, err := db.conn.NamedExecContext(ctx, `
		INSERT INTO posts (user_id, owner_name, owner_surname, post_type,
			project_type, subject, problem_type, name, demands, description,
			href_vk, href_telegram, href_google, href_quiz, created_at, updated_at)
		VALUES (:user_id, :owner_name, :owner_surname, :post_type,
			:project_type, :subject, :problem_type, :name, :demands, :description,
			:href_vk, :href_telegram, :href_google, :href_quiz, :created_at, :updated_at)`,
		row,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting post for user %d: %w", post.UserID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new post id: %w", err)
	}
	post.ID = id
	return nil
}

// GetPostByID returns apperror.ErrNotFound if no post has that id.
func (db *DB) GetPostByID(ctx context.Context, id int64) (*model.Post, error) {
	var row postRow
	err := db.conn.GetContext(ctx, &row, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("post", id)
		}
		return nil, fmt.Errorf("sqlite: getting post %d: %w", id, err)
	}

	p, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPosts returns posts newest first.
func (db *DB) ListPosts(ctx context.Context, opts repository.ListOptions) ([]model.Post, error) {
	var (
		where []string
		args  []any
	)
	if opts.OwnerID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, opts.OwnerID)
	}

	query := `SELECT ` + postColumns + ` FROM posts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	var rows []postRow
	if err := db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("sqlite: listing posts: %w", err)
	}

	posts := make([]model.Post, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// UpdatePost rewrites the body columns of post. user_id, owner names,
// post_type and created_at are left alone; post.Body must be of the
// stored type or the row is not touched.
func (db *DB) UpdatePost(ctx context.Context, post *model.Post) error {
	post.UpdatedAt = time.Now().UTC()

	row, err := toRow(post)
	if err != nil {
		return err
	}

	res, err := db.conn.NamedExecContext(ctx, `
		UPDATE posts SET
			project_type = :project_type, subject = :subject, problem_type = :problem_type,
			name = :name, demands = :demands, description = :description,
			href_vk = :href_vk, href_telegram = :href_telegram, href_google = :href_google,
			href_quiz = :href_quiz, updated_at = :updated_at
		WHERE id = :id AND post_type = :post_type`,
		row,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating post %d: %w", post.ID, err)
	}
	return requireRow(res, "post", post.ID)
}

// DeletePost returns apperror.ErrNotFound if no post has that id.
func (db *DB) DeletePost(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting post %d: %w", id, err)
	}
	return requireRow(res, "post", id)
}

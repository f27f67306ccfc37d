package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/ivr-board/internal/apperror"
	"github.com/sakif/ivr-board/internal/model"
	"github.com/sakif/ivr-board/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, nickname, email, password_hash, name, surname, user_group,
	check_email, href_vk, href_telegram, created_at, updated_at`

// CreateUser inserts user and sets its ID and timestamps.
// A taken nickname or email yields apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	// NamedExecContext binds :name placeholders from the struct's db tags.
	res, err := db.conn.NamedExecContext(ctx, `
		INSERT INTO users (nickname, email, password_hash, name, surname, user_group,
			check_email, href_vk, href_telegram, created_at, updated_at)
		VALUES (:nickname, :email, :password_hash, :name, :surname, :user_group,
			:check_email, :href_vk, :href_telegram, :created_at, :updated_at)`,
		user,
	)
	if err != nil {
		if conflict := userConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Nickname, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new user id: %w", err)
	}
	user.ID = id
	return nil
}

// GetUserByID returns apperror.ErrNotFound if no user has that id.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := db.conn.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return &u, nil
}

func (db *DB) GetUserByNickname(ctx context.Context, nickname string) (*model.User, error) {
	return db.getUserBy(ctx, "nickname", nickname)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUserBy(ctx, "email", email)
}

// getUserBy looks a user up by one of its UNIQUE columns. column is
// always a constant from this file, never user input.
func (db *DB) getUserBy(ctx context.Context, column, value string) (*model.User, error) {
	var u model.User
	err := db.conn.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundBy("user", column, value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}
	return &u, nil
}

// UpdateUser writes every mutable column of user.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	res, err := db.conn.NamedExecContext(ctx, `
		UPDATE users SET
			nickname = :nickname, email = :email, password_hash = :password_hash,
			name = :name, surname = :surname, user_group = :user_group,
			check_email = :check_email, href_vk = :href_vk, href_telegram = :href_telegram,
			updated_at = :updated_at
		WHERE id = :id`,
		user,
	)
	if err != nil {
		if conflict := userConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("sqlite: updating user %d: %w", user.ID, err)
	}
	return requireRow(res, "user", user.ID)
}

func (db *DB) SetEmailVerified(ctx context.Context, id int64, verified bool) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET check_email = ?, updated_at = ? WHERE id = ?`,
		verified, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting check_email for user %d: %w", id, err)
	}
	return requireRow(res, "user", id)
}

func (db *DB) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting password for user %d: %w", id, err)
	}
	return requireRow(res, "user", id)
}

// requireRow turns "0 rows affected" into apperror.ErrNotFound.
func requireRow(res sql.Result, resource string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}

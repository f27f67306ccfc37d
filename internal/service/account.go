package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/sakif/ivr-board/internal/apperror"
	"github.com/sakif/ivr-board/internal/auth"
	"github.com/sakif/ivr-board/internal/mail"
	"github.com/sakif/ivr-board/internal/model"
	"github.com/sakif/ivr-board/internal/repository"
)

const (
	MaxNicknameLength = 50
	MaxEmailLength    = 254
	MaxPersonName     = 100
	MaxGroupLength    = 50
	MaxLinkLength     = 500
	MinPasswordLength = 6
)

// MsgWrongCredentials is the single message for every failed login, so a
// caller cannot tell an unknown nickname from a wrong password.
const MsgWrongCredentials = "wrong nickname or password"

// AccountConfig holds the settings AccountService needs from the server
// configuration.
type AccountConfig struct {
	BaseURL            string        // prefix of links in emails
	ConfirmTokenMaxAge time.Duration // lifetime of confirmation links
	MailTimeout        time.Duration // bound on one Send call
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Nickname string
	Email    string
	Password string
	Name     string
	Surname  string
	Group    string
}

// ProfileInput is the profile edit form. An empty Password keeps the
// current one.
type ProfileInput struct {
	Nickname     string
	Email        string
	Password     string
	Name         string
	Surname      string
	Group        string
	HrefVK       string
	HrefTelegram string
}

// AccountService handles registration, login, email confirmation,
// credential recovery and profile edits.
type AccountService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	mailer    mail.Sender
	cfg       AccountConfig
	logger    *slog.Logger
}

func NewAccountService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	mailer mail.Sender,
	cfg AccountConfig,
	logger *slog.Logger,
) *AccountService {
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = 10 * time.Second
	}
	return &AccountService{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		mailer:    mailer,
		cfg:       cfg,
		logger:    logger,
	}
}

// Register creates an unverified account and mails a confirmation link.
//
// The account is committed before the mail is sent. A failed send is
// logged and does not undo the registration; the user can ask for a new
// link from the confirmation page.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Nickname = trim(in.Nickname)
	in.Email = trim(in.Email)
	in.Name = trim(in.Name)
	in.Surname = trim(in.Surname)
	in.Group = trim(in.Group)

	if err := firstErr(
		validateNickname(in.Nickname),
		validateEmail(in.Email),
		validatePassword(in.Password, true),
		requireLength("name", in.Name, true, MaxPersonName),
		requireLength("surname", in.Surname, true, MaxPersonName),
		requireLength("group", in.Group, false, MaxGroupLength),
	); err != nil {
		return nil, err
	}

	if err := s.ensureNicknameFree(ctx, in.Nickname); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, in.Email); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service: hashing password: %w", err)
	}

	user := &model.User{
		Nickname:     in.Nickname,
		Email:        in.Email,
		PasswordHash: hash,
		Name:         in.Name,
		Surname:      in.Surname,
		Group:        in.Group,
		HrefVK:       model.NoLink,
		HrefTelegram: model.NoLink,
	}
	// A concurrent registration can still win the race; the UNIQUE
	// constraint then surfaces as the same Conflict.
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to create user",
			slog.String("nickname", in.Nickname),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service: registering %q: %w", in.Nickname, err)
	}

	s.logger.Info("user registered",
		slog.Int64("user_id", user.ID),
		slog.String("nickname", user.Nickname),
	)

	if err := s.sendConfirmation(ctx, user.Email, false); err != nil {
		s.logger.Error("confirmation mail not sent",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return user, nil
}

// Login checks a nickname/password pair.
func (s *AccountService) Login(ctx context.Context, nickname, password string) (*model.User, error) {
	user, err := s.users.GetUserByNickname(ctx, trim(nickname))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("password", MsgWrongCredentials)
		}
		return nil, fmt.Errorf("service: login: %w", err)
	}

	if !s.passwords.Verify(user.PasswordHash, password) {
		s.logger.Info("login failed", slog.Int64("user_id", user.ID))
		return nil, apperror.ValidationFailed("password", MsgWrongCredentials)
	}

	s.logger.Info("user logged in", slog.Int64("user_id", user.ID))
	return user, nil
}

// ConfirmEmail redeems a confirmation token and marks the owner of the
// token's address as verified.
//
// The user is found by their current email. A token issued for an address
// that has since been replaced matches nobody and is rejected, so it can
// never verify the new address.
func (s *AccountService) ConfirmEmail(ctx context.Context, token string) (*model.User, error) {
	email, err := s.tokens.Redeem(token, auth.PurposeEmailConfirm, s.cfg.ConfirmTokenMaxAge)
	if err != nil {
		s.logger.Debug("token rejected")
		return nil, auth.ErrInvalidToken
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Debug("token rejected", slog.String("reason", "no user with this email"))
			return nil, auth.ErrInvalidToken
		}
		return nil, fmt.Errorf("service: confirming email: %w", err)
	}

	if err := s.users.SetEmailVerified(ctx, user.ID, true); err != nil {
		return nil, fmt.Errorf("service: confirming email for user %d: %w", user.ID, err)
	}
	user.EmailVerified = true

	s.logger.Info("email confirmed", slog.Int64("user_id", user.ID))
	return user, nil
}

// ResendConfirmation mails a new confirmation link to email. If email
// differs from the stored address it must be free; the address is then
// replaced and the account becomes unverified before the mail is sent.
func (s *AccountService) ResendConfirmation(ctx context.Context, actorID, userID int64, email string) (*model.User, error) {
	if !IsOwner(actorID, userID) {
		s.logger.Warn("forbidden confirmation resend",
			slog.Int64("actor_id", actorID),
			slog.Int64("user_id", userID),
		)
		return nil, apperror.Forbidden("you can only manage your own account")
	}

	email = trim(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	changed := email != user.Email
	if changed {
		if err := s.ensureEmailFree(ctx, email); err != nil {
			return nil, err
		}
		user.Email = email
		user.EmailVerified = false
		if err := s.users.UpdateUser(ctx, user); err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				return nil, err
			}
			return nil, fmt.Errorf("service: changing email for user %d: %w", user.ID, err)
		}
		s.logger.Info("email changed", slog.Int64("user_id", user.ID))
	}

	if err := s.sendConfirmation(ctx, user.Email, changed); err != nil {
		s.logger.Error("confirmation mail not sent",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return user, fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return user, nil
}

// RecoverCredentials mails the account's nickname with a freshly generated
// password. The new password is stored only after the mail transport
// accepted the message, so a failed send leaves the old password working.
func (s *AccountService) RecoverCredentials(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, trim(email))
	if err != nil {
		return err
	}

	password, err := s.passwords.GeneratePassword()
	if err != nil {
		return fmt.Errorf("service: recovering credentials: %w", err)
	}
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return fmt.Errorf("service: recovering credentials: %w", err)
	}

	if err := s.send(ctx, mail.CredentialsMessage(user.Email, user.Nickname, password)); err != nil {
		s.logger.Error("credentials mail not sent",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	if err := s.users.SetPasswordHash(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("service: storing recovered password for user %d: %w", user.ID, err)
	}

	s.logger.Info("credentials recovered", slog.Int64("user_id", user.ID))
	return nil
}

// UpdateProfile applies the profile form to the actor's own account.
func (s *AccountService) UpdateProfile(ctx context.Context, actorID, userID int64, in ProfileInput) (*model.User, error) {
	if !IsOwner(actorID, userID) {
		s.logger.Warn("forbidden profile edit",
			slog.Int64("actor_id", actorID),
			slog.Int64("user_id", userID),
		)
		return nil, apperror.Forbidden("you can only edit your own profile")
	}

	in.Nickname = trim(in.Nickname)
	in.Email = trim(in.Email)
	in.Name = trim(in.Name)
	in.Surname = trim(in.Surname)
	in.Group = trim(in.Group)
	in.HrefVK = model.NormalizeLink(in.HrefVK)
	in.HrefTelegram = model.NormalizeLink(in.HrefTelegram)

	if err := firstErr(
		validateNickname(in.Nickname),
		validateEmail(in.Email),
		validatePassword(in.Password, false),
		requireLength("name", in.Name, true, MaxPersonName),
		requireLength("surname", in.Surname, true, MaxPersonName),
		requireLength("group", in.Group, false, MaxGroupLength),
		requireLength("href_vk", in.HrefVK, false, MaxLinkLength),
		requireLength("href_telegram", in.HrefTelegram, false, MaxLinkLength),
	); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Nickname != user.Nickname {
		if err := s.ensureNicknameFree(ctx, in.Nickname); err != nil {
			return nil, err
		}
		user.Nickname = in.Nickname
	}

	emailChanged := in.Email != user.Email
	if emailChanged {
		if err := s.ensureEmailFree(ctx, in.Email); err != nil {
			return nil, err
		}
		user.Email = in.Email
		user.EmailVerified = false
	}

	if in.Password != "" {
		hash, err := s.passwords.Hash(in.Password)
		if err != nil {
			return nil, fmt.Errorf("service: hashing password: %w", err)
		}
		user.PasswordHash = hash
	}

	user.Name = in.Name
	user.Surname = in.Surname
	user.Group = in.Group
	user.HrefVK = in.HrefVK
	user.HrefTelegram = in.HrefTelegram

	if err := s.users.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service: updating profile of user %d: %w", user.ID, err)
	}

	s.logger.Info("profile updated",
		slog.Int64("user_id", user.ID),
		slog.Bool("email_changed", emailChanged),
	)

	if emailChanged {
		if err := s.sendConfirmation(ctx, user.Email, true); err != nil {
			s.logger.Error("confirmation mail not sent",
				slog.Int64("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return user, nil
}

// GetUser returns apperror.ErrNotFound for an unknown id.
func (s *AccountService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.users.GetUserByID(ctx, id)
}

// ConfirmationLink returns the URL that redeems token.
func (s *AccountService) ConfirmationLink(token string) string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/confirm_email/" + token
}

func (s *AccountService) sendConfirmation(ctx context.Context, email string, changed bool) error {
	token, err := s.tokens.Issue(email, auth.PurposeEmailConfirm)
	if err != nil {
		return err
	}
	return s.send(ctx, mail.ConfirmationMessage(email, s.ConfirmationLink(token), changed))
}

// send bounds one delivery attempt by the configured mail timeout.
func (s *AccountService) send(ctx context.Context, msg mail.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.MailTimeout)
	defer cancel()
	return s.mailer.Send(ctx, msg)
}

func (s *AccountService) ensureNicknameFree(ctx context.Context, nickname string) error {
	_, err := s.users.GetUserByNickname(ctx, nickname)
	switch {
	case err == nil:
		return apperror.Conflict("nickname", "nickname taken")
	case errors.Is(err, apperror.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("service: checking nickname: %w", err)
	}
}

func (s *AccountService) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return apperror.Conflict("email", "email taken")
	case errors.Is(err, apperror.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("service: checking email: %w", err)
	}
}

func validateNickname(nickname string) error {
	if err := requireLength("nickname", nickname, true, MaxNicknameLength); err != nil {
		return err
	}
	if strings.ContainsAny(nickname, " \t\n") {
		return apperror.ValidationFailed("nickname", "nickname must not contain spaces")
	}
	return nil
}

func validateEmail(email string) error {
	if err := requireLength("email", email, true, MaxEmailLength); err != nil {
		return err
	}
	addr, err := netmail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperror.ValidationFailed("email", "email address is not valid")
	}
	return nil
}

// validatePassword checks a new password. With required false an empty
// password is accepted and means "unchanged".
func validatePassword(password string, required bool) error {
	if password == "" {
		if required {
			return apperror.ValidationFailed("password", "password is required")
		}
		return nil
	}
	if len(password) < MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or less", auth.MaxPasswordBytes))
	}
	return nil
}

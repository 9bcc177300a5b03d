package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shivansh-Atwal/trackstack/logger"
	"github.com/Shivansh-Atwal/trackstack/model"
	"github.com/Shivansh-Atwal/trackstack/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidInput is returned when a required field is blank.
	ErrInvalidInput = errors.New("missing fields")
	// ErrDuplicateEmail is returned by Signup for an already registered email.
	ErrDuplicateEmail = errors.New("email already in use")
	// ErrInvalidCredentials is returned by Login for an unknown email and a
	// wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Session is what signup and login hand back to the client.
type Session struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	User      model.UserView `json:"user"`
}

// Authenticator registers users, checks credentials and verifies tokens.
type Authenticator struct {
	users    repository.UserRepository
	tokens   *TokenManager
	hashCost int
}

// NewAuthenticator wires the credential store and token manager.
func NewAuthenticator(users repository.UserRepository, tokens *TokenManager) *Authenticator {
	return &Authenticator{
		users:    users,
		tokens:   tokens,
		hashCost: bcrypt.DefaultCost,
	}
}

// SetHashCost overrides the bcrypt cost. Out-of-range values fall back to the
// default cost.
func (a *Authenticator) SetHashCost(cost int) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	a.hashCost = cost
}

// Signup stores a new user and returns a session for it.
func (a *Authenticator) Signup(ctx context.Context, name, email, password string) (*Session, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" || password == "" {
		return nil, ErrInvalidInput
	}

	existing, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateEmail
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		// The unique index catches a concurrent signup that passed the lookup.
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	logger.Info("[Signup] user registered", logger.String("userId", user.ID))
	return a.newSession(user)
}

// Login checks email and password and returns a fresh session.
func (a *Authenticator) Login(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, ErrInvalidInput
	}

	user, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return a.newSession(user)
}

// VerifyToken returns the subject of a valid token, or ErrInvalidToken.
func (a *Authenticator) VerifyToken(token string) (string, error) {
	return a.tokens.Verify(token)
}

// Identify turns a bearer token into an Identity. An empty token is
// anonymous without error; an invalid one is anonymous with ErrInvalidToken
// so callers can decide whether to reject the request.
func (a *Authenticator) Identify(token string) (Identity, error) {
	if token == "" {
		return Anonymous(), nil
	}
	subject, err := a.tokens.Verify(token)
	if err != nil {
		return Anonymous(), err
	}
	return Authenticated(subject), nil
}

func (a *Authenticator) newSession(user *model.User) (*Session, error) {
	token, expiresAt, err := a.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.View(),
	}, nil
}

// Package account stores login credentials and bearer tokens next to the
// profile documents.
package account

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/model"
	"lg/nutrition-tracker-api/internal/profile"
)

// ErrInvalidCredentials is returned by Login for an unknown user or a wrong
// password alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

const minPasswordLen = 8

var usernameRx = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,63}$`)

// dummyHash is compared against when a username isn't found so a miss costs
// the same as a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy"), bcrypt.DefaultCost)

func credentialsPath(username string) string {
	return docstore.Join("credentials", username)
}

func tokenPath(token string) string {
	return docstore.Join("tokens", token)
}

type credentials struct {
	UserID       string    `json:"user_id"`
	PasswordHash string    `json:"password_hash"`
	Token        string    `json:"token"`
	CreatedAt    time.Time `json:"created_at"`
}

type tokenRecord struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Account is what registration and login hand back to the caller.
type Account struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

type Service struct {
	store    docstore.Store
	profiles *profile.Service
	now      func() time.Time
	cost     int
}

func New(store docstore.Store, profiles *profile.Service, now func() time.Time) *Service {
	return &Service{store: store, profiles: profiles, now: now, cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

// NormalizeUsername lowercases and trims a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Register creates the credentials, the empty profile and the user's token.
// A taken username returns model.ErrAlreadyExists.
func (s *Service) Register(ctx context.Context, username, password string) (Account, error) {
	username = NormalizeUsername(username)
	if !usernameRx.MatchString(username) {
		return Account{}, fmt.Errorf("%w: username must be 1-64 of a-z 0-9 _ . -", model.ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return Account{}, fmt.Errorf("%w: password must be at least %d characters", model.ErrInvalidInput, minPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}
	acct := Account{UserID: uuid.NewString(), Username: username, Token: uuid.NewString()}
	now := s.now().UTC()

	creds, err := docstore.Encode(credentials{UserID: acct.UserID, PasswordHash: string(hash), Token: acct.Token, CreatedAt: now})
	if err != nil {
		return Account{}, err
	}
	if _, err := s.store.SetIfVersion(ctx, credentialsPath(username), creds, 0); err != nil {
		if errors.Is(err, model.ErrConcurrencyConflict) {
			return Account{}, fmt.Errorf("%w: username %s", model.ErrAlreadyExists, username)
		}
		return Account{}, err
	}
	if _, err := s.profiles.Create(ctx, acct.UserID, username); err != nil {
		return Account{}, err
	}
	tok, err := docstore.Encode(tokenRecord{UserID: acct.UserID, CreatedAt: now})
	if err != nil {
		return Account{}, err
	}
	if err := s.store.Set(ctx, tokenPath(acct.Token), tok, false); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Login checks the password and returns the user's token.
func (s *Service) Login(ctx context.Context, username, password string) (Account, error) {
	username = NormalizeUsername(username)
	var creds credentials
	var lookupErr error
	if usernameRx.MatchString(username) {
		var doc *docstore.Document
		doc, lookupErr = s.store.Get(ctx, credentialsPath(username))
		if lookupErr == nil {
			lookupErr = docstore.Decode(doc.Data, &creds)
		}
	} else {
		lookupErr = model.ErrNotFound
	}

	hashToCheck := string(dummyHash)
	if lookupErr == nil {
		hashToCheck = creds.PasswordHash
	}
	compareErr := bcrypt.CompareHashAndPassword([]byte(hashToCheck), []byte(password))

	if lookupErr != nil {
		if errors.Is(lookupErr, model.ErrNotFound) {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, lookupErr
	}
	if compareErr != nil {
		return Account{}, ErrInvalidCredentials
	}
	return Account{UserID: creds.UserID, Username: username, Token: creds.Token}, nil
}

// Resolve maps a bearer token to its user id. Unknown tokens return
// model.ErrNotFound.
func (s *Service) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" || strings.Contains(token, "/") {
		return "", model.ErrNotFound
	}
	doc, err := s.store.Get(ctx, tokenPath(token))
	if err != nil {
		return "", err
	}
	var rec tokenRecord
	if err := docstore.Decode(doc.Data, &rec); err != nil {
		return "", err
	}
	if rec.UserID == "" {
		return "", model.ErrNotFound
	}
	return rec.UserID, nil
}

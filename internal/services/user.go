package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bloghq/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	DeleteByUsername(ctx context.Context, username string) error
}

// Claims is the verified identity carried by an access token.
type Claims struct {
	UserID   int
	Username string
}

// UserService owns identity: user creation with password hashing,
// credential verification, and signed-token issuance and verification.
type UserService struct {
	repo     UserRepository
	secret   []byte
	tokenTTL time.Duration
}

// NewUserService constructs a UserService. The signing secret must be
// validated by the caller before the server starts serving requests.
func NewUserService(repo UserRepository, secret string, tokenTTL time.Duration) *UserService {
	return &UserService{
		repo:     repo,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

// Signup creates a new user with a bcrypt-hashed password. A taken
// username surfaces as store.ErrDuplicate.
func (s *UserService) Signup(ctx context.Context, username, email, password string) (types.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return types.User{}, fmt.Errorf("%w: username, email and password are required", ErrValidation)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	return s.repo.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashed),
	})
}

// Login verifies the credentials and mints an access token. Unknown
// usernames and wrong passwords both return ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, username, password string) (types.User, string, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return types.User{}, "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, "", ErrInvalidCredentials
	}

	token, err := s.issueToken(user)
	if err != nil {
		return types.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Lookup returns the user with the given username, or store.ErrNotFound.
func (s *UserService) Lookup(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// ResolveID maps a username to the user's id, for callers that store the
// user as a reference.
func (s *UserService) ResolveID(ctx context.Context, username string) (int, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

// Delete removes the user with the given username.
func (s *UserService) Delete(ctx context.Context, username string) error {
	return s.repo.DeleteByUsername(ctx, username)
}

// VerifyToken parses and validates an access token and returns its claims.
func (s *UserService) VerifyToken(tokenString string) (Claims, error) {
	claims := tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	if !token.Valid {
		return Claims{}, errors.New("invalid token")
	}

	userID, err := strconv.Atoi(strings.TrimSpace(claims.Subject))
	if err != nil || userID < 1 {
		return Claims{}, errors.New("invalid subject")
	}
	return Claims{UserID: userID, Username: claims.Username}, nil
}

type tokenClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func (s *UserService) issueToken(user types.User) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

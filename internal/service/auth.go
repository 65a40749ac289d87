package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("reviewer with this email already exists")
	ErrRegistrationClosed = errors.New("self registration is closed")
)

type AuthService struct {
	repo      *repository.ReviewerRepository
	jwtSecret []byte // Stored in env (JWT_SECRET)
	jwtExpiry time.Duration
	now       func() time.Time
}

func NewAuthService(repo *repository.ReviewerRepository, secret string, expiryHours int) *AuthService {
	return &AuthService{
		repo:      repo,
		jwtSecret: []byte(secret),
		jwtExpiry: time.Duration(expiryHours) * time.Hour,
		now:       time.Now,
	}
}

// Bootstrap registers the first reviewer as an admin. Once any reviewer
// exists, new ones are added by an admin through Register.
func (s *AuthService) Bootstrap(ctx context.Context, email, password, name string) (*models.Reviewer, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrRegistrationClosed
	}
	return s.Register(ctx, email, password, name, models.RoleAdmin)
}

// Creates a new reviewer
func (s *AuthService) Register(ctx context.Context, email, password, name, role string) (*models.Reviewer, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	existing, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	if role != models.RoleViewer {
		role = models.RoleAdmin
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	reviewer := &models.Reviewer{
		Email:        email,
		PasswordHash: string(hashedPassword),
		Name:         name,
		Role:         role,
	}
	if err := s.repo.Create(ctx, reviewer); err != nil {
		return nil, err
	}
	return reviewer, nil
}

// Authenticates a reviewer and returns a JWT token
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	reviewer, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", err
	}
	if reviewer == nil {
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(reviewer.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": reviewer.ID.String(),
		"email":   reviewer.Email,
		"role":    reviewer.Role,
		"exp":     now.Add(s.jwtExpiry).Unix(),
		"iat":     now.Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// Validates a JWT token and return the claims
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

func (s *AuthService) GetReviewer(ctx context.Context, id string) (*models.Reviewer, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *AuthService) ListReviewers(ctx context.Context) ([]models.Reviewer, error) {
	return s.repo.List(ctx)
}

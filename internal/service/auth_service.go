package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campus-board/enroll-api/internal/models"
	"github.com/campus-board/enroll-api/internal/repository"
	apperrors "github.com/campus-board/enroll-api/pkg/errors"
)

// UserStore is the persistence surface the auth service depends on.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string) error
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuthConfig carries token issuance parameters.
type AuthConfig struct {
	JWTSecret         string
	JWTExpiration     time.Duration
	RefreshExpiration time.Duration
	Issuer            string
}

// AuthService issues and validates credentials and tokens.
type AuthService struct {
	users    UserStore
	cfg      AuthConfig
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAuthService constructs the auth service.
func NewAuthService(users UserStore, cfg AuthConfig, validate *validator.Validate, logger *zap.Logger) *AuthService {
	return &AuthService{users: users, cfg: cfg, validate: validate, logger: logger}
}

// Signup registers a new account. Role defaults to STUDENT; ADMIN accounts
// are provisioned out of band and cannot be self-registered.
func (s *AuthService) Signup(ctx context.Context, req *models.SignupRequest) (*models.UserInfo, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, err.Error())
	}

	role := req.Role
	if role == "" {
		role = models.RoleStudent
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to hash password")
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperrors.Clone(apperrors.ErrConflict, "email already registered")
		}
		s.logger.Error("signup failed", zap.Error(err))
		return nil, apperrors.FromError(err)
	}

	s.audit(ctx, &user.ID, models.AuditActionSignup, "user", &user.ID, req.IP, req.UserAgent)
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))

	return &models.UserInfo{ID: user.ID, Email: user.Email, FullName: user.FullName, Role: user.Role}, nil
}

// Login verifies credentials and issues an access and refresh token pair.
func (s *AuthService) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, err.Error())
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrInvalidCredentials
		}
		s.logger.Error("login lookup failed", zap.Error(err))
		return nil, apperrors.FromError(err)
	}
	if !user.Active {
		return nil, apperrors.ErrInactiveAccount
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	now := time.Now().UTC()
	access, err := s.issueAccessToken(user, now)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to sign token")
	}

	refresh, err := s.issueRefreshToken(ctx, user.ID, now, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to stamp last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	s.audit(ctx, &user.ID, models.AuditActionLogin, "user", &user.ID, req.IP, req.UserAgent)

	return &models.LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh.Token,
		ExpiresIn:    int64(s.cfg.JWTExpiration.Seconds()),
		IssuedAt:     now,
		User:         models.UserInfo{ID: user.ID, Email: user.Email, FullName: user.FullName, Role: user.Role},
	}, nil
}

// Refresh rotates a refresh token and issues a new access token. A revoked
// or expired token fails closed.
func (s *AuthService) Refresh(ctx context.Context, req *models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, err.Error())
	}

	stored, err := s.users.FindRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrUnauthorized
		}
		return nil, apperrors.FromError(err)
	}
	now := time.Now().UTC()
	if !stored.Usable(now) {
		return nil, apperrors.ErrUnauthorized
	}

	user, err := s.users.FindByID(ctx, stored.UserID)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	if !user.Active {
		return nil, apperrors.ErrInactiveAccount
	}

	if err := s.users.RevokeRefreshToken(ctx, stored.ID); err != nil {
		return nil, apperrors.FromError(err)
	}

	access, err := s.issueAccessToken(user, now)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to sign token")
	}
	refresh, err := s.issueRefreshToken(ctx, user.ID, now, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	return &models.RefreshTokenResponse{
		AccessToken:  access,
		RefreshToken: refresh.Token,
		ExpiresIn:    int64(s.cfg.JWTExpiration.Seconds()),
		IssuedAt:     now,
	}, nil
}

// Logout revokes every live refresh token for the user.
func (s *AuthService) Logout(ctx context.Context, userID, ip, userAgent string) error {
	if err := s.users.RevokeUserRefreshTokens(ctx, userID); err != nil {
		return apperrors.FromError(err)
	}
	s.audit(ctx, &userID, models.AuditActionLogout, "user", &userID, ip, userAgent)
	return nil
}

// Me returns the authenticated user's profile.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.FromError(err)
	}
	return &models.UserInfo{ID: user.ID, Email: user.Email, FullName: user.FullName, Role: user.Role}, nil
}

// ValidateToken parses and verifies an access token, returning its claims.
// Any parse or signature failure maps to an unauthorized error.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, apperrors.ErrUnauthorized
	}
	if !claims.Role.Valid() {
		return nil, apperrors.ErrUnauthorized
	}
	return claims, nil
}

func (s *AuthService) issueAccessToken(user *models.User, now time.Time) (string, error) {
	claims := models.JWTClaims{
		UserID:   user.ID,
		Role:     user.Role,
		Email:    user.Email,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiration)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *AuthService) issueRefreshToken(ctx context.Context, userID string, now time.Time, ip, userAgent string) (*models.RefreshToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to generate token")
	}
	refresh := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     hex.EncodeToString(raw),
		ExpiresAt: now.Add(s.cfg.RefreshExpiration),
		CreatedAt: now,
		IPAddress: ip,
		UserAgent: userAgent,
	}
	if err := s.users.CreateRefreshToken(ctx, refresh); err != nil {
		return nil, apperrors.FromError(err)
	}
	return refresh, nil
}

func (s *AuthService) audit(ctx context.Context, userID *string, action, resource string, resourceID *string, ip, userAgent string) {
	log := &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}
	if err := s.users.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

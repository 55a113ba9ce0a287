package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-board/enroll-api/internal/models"
	"github.com/campus-board/enroll-api/internal/repository"
	apperrors "github.com/campus-board/enroll-api/pkg/errors"
)

type fakeUserStore struct {
	users      map[string]*models.User
	byEmail    map[string]string
	refresh    map[string]*models.RefreshToken
	auditLogs  []*models.AuditLog
	lastLogins int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:   make(map[string]*models.User),
		byEmail: make(map[string]string),
		refresh: make(map[string]*models.RefreshToken),
	}
}

func (f *fakeUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if id, ok := f.byEmail[email]; ok {
		copied := *f.users[id]
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserStore) Create(ctx context.Context, user *models.User) error {
	if _, exists := f.byEmail[user.Email]; exists {
		return repository.ErrDuplicateEmail
	}
	f.users[user.ID] = user
	f.byEmail[user.Email] = user.ID
	return nil
}

func (f *fakeUserStore) UpdateLastLogin(ctx context.Context, id string) error {
	f.lastLogins++
	return nil
}

func (f *fakeUserStore) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	f.refresh[token.Token] = token
	return nil
}

func (f *fakeUserStore) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := f.refresh[token]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserStore) RevokeRefreshToken(ctx context.Context, id string) error {
	for _, t := range f.refresh {
		if t.ID == id {
			t.Revoked = true
		}
	}
	return nil
}

func (f *fakeUserStore) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	for _, t := range f.refresh {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (f *fakeUserStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.auditLogs = append(f.auditLogs, log)
	return nil
}

func newAuthServiceForTest(store *fakeUserStore) *AuthService {
	return NewAuthService(store, AuthConfig{
		JWTSecret:         "test-secret",
		JWTExpiration:     time.Hour,
		RefreshExpiration: 24 * time.Hour,
		Issuer:            "enroll-api-test",
	}, validator.New(), zap.NewNop())
}

func TestSignupDefaultsToStudent(t *testing.T) {
	store := newFakeUserStore()
	svc := newAuthServiceForTest(store)

	user, err := svc.Signup(context.Background(), &models.SignupRequest{
		Email:    "ada@example.edu",
		Password: "hunter22",
		FullName: "Ada Lovelace",
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleStudent, user.Role)
	require.Len(t, store.auditLogs, 1)
	require.Equal(t, models.AuditActionSignup, store.auditLogs[0].Action)
}

func TestSignupDuplicateEmail(t *testing.T) {
	store := newFakeUserStore()
	svc := newAuthServiceForTest(store)

	_, err := svc.Signup(context.Background(), &models.SignupRequest{Email: "ada@example.edu", Password: "hunter22"})
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), &models.SignupRequest{Email: "ada@example.edu", Password: "hunter22"})
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrConflict))
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	store := newFakeUserStore()
	svc := newAuthServiceForTest(store)

	_, err := svc.Signup(context.Background(), &models.SignupRequest{
		Email:    "ada@example.edu",
		Password: "hunter22",
		Role:     models.RoleFaculty,
	})
	require.NoError(t, err)

	res, err := svc.Login(context.Background(), &models.LoginRequest{Email: "ada@example.edu", Password: "hunter22"})
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)
	require.Equal(t, 1, store.lastLogins)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, res.User.ID, claims.UserID)
	require.Equal(t, models.RoleFaculty, claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	store := newFakeUserStore()
	svc := newAuthServiceForTest(store)

	_, err := svc.Signup(context.Background(), &models.SignupRequest{Email: "ada@example.edu", Password: "hunter22"})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), &models.LoginRequest{Email: "ada@example.edu", Password: "wrong"})
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrInvalidCredentials))
}

func TestLoginUnknownEmail(t *testing.T) {
	store := newFakeUserStore()
	svc := newAuthServiceForTest(store)

	_, err := svc.Login(context.Background(), &models.LoginRequest{Email: "nobody@example.edu", Password: "hunter22"})
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrInvalidCredentials))
}

func TestLoginInactiveAccount(t *testing.T) {
	store := newFakeUserStore()
	svc := newAuthServiceForTest(store)

	user, err := svc.Signup(context.Background(), &models.SignupRequest{Email: "ada@example.edu", Password: "hunter22"})
	require.NoError(t, err)
	store.users[user.ID].Active = false

	_, err = svc.Login(context.Background(), &models.LoginRequest{Email: "ada@example.edu", Password: "hunter22"})
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrInactiveAccount))
}

func TestRefreshRotatesToken(t *testing.T) {
	store := newFakeUserStore()
	svc := newAuthServiceForTest(store)

	_, err := svc.Signup(context.Background(), &models.SignupRequest{Email: "ada@example.edu", Password: "hunter22"})
	require.NoError(t, err)
	login, err := svc.Login(context.Background(), &models.LoginRequest{Email: "ada@example.edu", Password: "hunter22"})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), &models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	require.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The old token is revoked by rotation and cannot be replayed.
	_, err = svc.Refresh(context.Background(), &models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))
}

func TestRefreshExpiredTokenRejected(t *testing.T) {
	store := newFakeUserStore()
	svc := newAuthServiceForTest(store)

	_, err := svc.Signup(context.Background(), &models.SignupRequest{Email: "ada@example.edu", Password: "hunter22"})
	require.NoError(t, err)
	login, err := svc.Login(context.Background(), &models.LoginRequest{Email: "ada@example.edu", Password: "hunter22"})
	require.NoError(t, err)

	store.refresh[login.RefreshToken].ExpiresAt = time.Now().UTC().Add(-time.Minute)

	_, err = svc.Refresh(context.Background(), &models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := newAuthServiceForTest(newFakeUserStore())

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))
}

func TestLogoutRevokesAllTokens(t *testing.T) {
	store := newFakeUserStore()
	svc := newAuthServiceForTest(store)

	_, err := svc.Signup(context.Background(), &models.SignupRequest{Email: "ada@example.edu", Password: "hunter22"})
	require.NoError(t, err)
	login, err := svc.Login(context.Background(), &models.LoginRequest{Email: "ada@example.edu", Password: "hunter22"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), login.User.ID, "127.0.0.1", "test"))

	_, err = svc.Refresh(context.Background(), &models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))
}

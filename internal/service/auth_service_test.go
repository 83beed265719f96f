package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sis-registration-api/internal/models"
	appErrors "github.com/noah-isme/sis-registration-api/pkg/errors"
)

type mockUserRepo struct {
	users          map[string]*models.User
	lastLoginSetAt *time.Time
	updatedHash    string
	lastLoginErr   error
}

func (m *mockUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) UpdateLastLogin(_ context.Context, id string, ts time.Time) error {
	if m.lastLoginErr != nil {
		return m.lastLoginErr
	}
	m.lastLoginSetAt = &ts
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id, passwordHash string, _ time.Time) error {
	m.updatedHash = passwordHash
	return nil
}

func userFixture(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           "u1",
		Email:        "registrar@school.test",
		PasswordHash: string(hash),
		FullName:     "Ana Reyes",
		Role:         models.RoleRegistrar,
		Active:       true,
	}
}

func newAuthFixture(t *testing.T, repo *mockUserRepo) (*AuthService, *capturingAudit) {
	t.Helper()
	audit := &capturingAudit{}
	config := AuthConfig{TokenSecret: "test-secret", TokenExpiry: time.Hour, Issuer: "sis-registration-api"}
	return NewAuthService(repo, audit, nil, zap.NewNop(), config), audit
}

func TestAuthServiceLoginIssuesToken(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"u1": userFixture(t, "s3cret-pass")}}
	svc, audit := newAuthFixture(t, repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "registrar@school.test",
		Password: "s3cret-pass",
		IP:       "203.0.113.7",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "u1", resp.User.ID)
	assert.Equal(t, models.RoleRegistrar, resp.User.Role)
	assert.InDelta(t, time.Hour.Seconds(), float64(resp.ExpiresIn), 5)
	require.NotNil(t, repo.lastLoginSetAt)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "registrar@school.test", claims.Email)

	authLogs := audit.byCategory(models.LogCategoryAuth)
	require.Len(t, authLogs, 1)
	assert.Equal(t, models.ActionLogin, authLogs[0].ActionType)
	require.NotNil(t, authLogs[0].Request)
	assert.Equal(t, "203.0.113.7", authLogs[0].Request.IPAddress)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{}}
	svc, audit := newAuthFixture(t, repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@school.test", Password: "whatever"})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)

	security := audit.byCategory(models.LogCategorySecurity)
	require.Len(t, security, 1)
	assert.Equal(t, "FAILED_LOGIN", security[0].ActionType)
	assert.Equal(t, models.LogStatusFailed, security[0].Status)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"u1": userFixture(t, "s3cret-pass")}}
	svc, audit := newAuthFixture(t, repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "registrar@school.test", Password: "wrong"})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
	require.Len(t, audit.byCategory(models.LogCategorySecurity), 1)
	assert.Empty(t, audit.byCategory(models.LogCategoryAuth))
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	user := userFixture(t, "s3cret-pass")
	user.Active = false
	repo := &mockUserRepo{users: map[string]*models.User{"u1": user}}
	svc, audit := newAuthFixture(t, repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "registrar@school.test", Password: "s3cret-pass"})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
	require.Len(t, audit.byCategory(models.LogCategorySecurity), 1)
}

func TestAuthServiceLoginSurvivesLastLoginFailure(t *testing.T) {
	repo := &mockUserRepo{
		users:        map[string]*models.User{"u1": userFixture(t, "s3cret-pass")},
		lastLoginErr: sql.ErrConnDone,
	}
	svc, _ := newAuthFixture(t, repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "registrar@school.test", Password: "s3cret-pass"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
}

func TestAuthServiceValidateTokenRejectsTampered(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"u1": userFixture(t, "s3cret-pass")}}
	svc, _ := newAuthFixture(t, repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "registrar@school.test", Password: "s3cret-pass"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken + "x")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestAuthServiceChangePassword(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"u1": userFixture(t, "old-pass-123")}}
	svc, audit := newAuthFixture(t, repo)

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{
		OldPassword: "old-pass-123",
		NewPassword: "new-pass-456",
	}, &models.RequestContext{IPAddress: "203.0.113.7"})
	require.NoError(t, err)
	require.NotEmpty(t, repo.updatedHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.updatedHash), []byte("new-pass-456")))

	userLogs := audit.byCategory(models.LogCategoryUser)
	require.Len(t, userLogs, 1)
	assert.Equal(t, "PASSWORD_CHANGE", userLogs[0].ActionType)
	assert.True(t, userLogs[0].IsSensitiveData)
	assert.Equal(t, "new-pass-456", userLogs[0].Metadata["password"])
}

func TestAuthServiceChangePasswordWrongCurrent(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"u1": userFixture(t, "old-pass-123")}}
	svc, _ := newAuthFixture(t, repo)

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{
		OldPassword: "bogus",
		NewPassword: "new-pass-456",
	}, nil)
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
	assert.Empty(t, repo.updatedHash)
}

func TestAuthServiceLogoutAudits(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{}}
	svc, audit := newAuthFixture(t, repo)

	claims := &models.JWTClaims{UserID: "u1", Email: "registrar@school.test", FullName: "Ana Reyes", Role: models.RoleRegistrar}
	svc.Logout(context.Background(), claims, &models.RequestContext{IPAddress: "203.0.113.7"})

	authLogs := audit.byCategory(models.LogCategoryAuth)
	require.Len(t, authLogs, 1)
	assert.Equal(t, models.ActionLogout, authLogs[0].ActionType)
	assert.Equal(t, "registrar@school.test", authLogs[0].TargetName)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Okan-wqm/avinor-sub001/internal/models"
	appErrors "github.com/Okan-wqm/avinor-sub001/pkg/errors"
)

func authFixture(t *testing.T) (*AuthService, *memUserStore) {
	t.Helper()
	users := newMemUserStore()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	users.users["u1"] = &models.User{
		ID:           "u1",
		Email:        "pilot@example.com",
		FullName:     "Test Pilot",
		Role:         models.RoleStudent,
		PasswordHash: string(hash),
		Active:       true,
	}

	svc := NewAuthService(users, nil, nil, AuthConfig{
		Secret:             "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "test",
	})
	return svc, users
}

func TestLoginIssuesTokenPair(t *testing.T) {
	svc, _ := authFixture(t)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "pilot@example.com", Password: "correct horse"})
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)
	require.Equal(t, "u1", res.User.ID)
	require.Equal(t, int64(900), res.ExpiresIn)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.Equal(t, models.RoleStudent, claims.Role)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, _ := authFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "pilot@example.com", Password: "wrong"})
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	svc, users := authFixture(t)
	users.users["u1"].Active = false

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "pilot@example.com", Password: "correct horse"})
	require.True(t, appErrors.Is(err, appErrors.ErrInactiveAccount))
}

func TestRefreshRotatesTokens(t *testing.T) {
	svc, _ := authFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "pilot@example.com", Password: "correct horse"})
	require.NoError(t, err)

	res, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.Equal(t, "u1", res.User.ID)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc, _ := authFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "pilot@example.com", Password: "correct horse"})
	require.NoError(t, err)

	// An access token must not pass as a refresh token.
	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.AccessToken})
	require.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := authFixture(t)

	_, err := svc.ValidateToken("not-a-token")
	require.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

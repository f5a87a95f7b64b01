package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret-key-for-testing-purposes"
	testIssuer = "rail-reservation-test"
)

func TestNewService(t *testing.T) {
	service := NewService(testSecret, testIssuer, time.Hour)

	assert.NotNil(t, service)
	assert.Equal(t, testSecret, service.secret)
	assert.Equal(t, testIssuer, service.issuer)
	assert.Equal(t, time.Hour, service.accessTokenExpiry)
}

func TestGenerateAccessToken(t *testing.T) {
	service := NewService(testSecret, testIssuer, time.Hour)
	userID := uuid.New()
	roles := []string{"passenger"}

	token, err := service.GenerateAccessToken(userID, roles)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	// Validate the generated token
	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, roles, claims.Roles)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestValidateAccessToken(t *testing.T) {
	service := NewService(testSecret, testIssuer, time.Hour)
	userID := uuid.New()

	token, err := service.GenerateAccessToken(userID, []string{"passenger", "admin"})
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)

	// Test invalid token
	_, err = service.ValidateAccessToken("invalid.token.here")
	assert.Error(t, err)

	// Test token with wrong secret
	wrongService := NewService("wrong-secret", testIssuer, time.Hour)
	_, err = wrongService.ValidateAccessToken(token)
	assert.Error(t, err)

	// Test token from another issuer
	otherIssuer := NewService(testSecret, "someone-else", time.Hour)
	_, err = otherIssuer.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestValidateAccessToken_RejectsMissingUserID(t *testing.T) {
	service := NewService(testSecret, testIssuer, time.Hour)

	token, err := service.GenerateAccessToken(uuid.Nil, nil)
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestValidateAccessToken_RejectsOtherSigningMethods(t *testing.T) {
	service := NewService(testSecret, testIssuer, time.Hour)
	claims := Claims{
		UserID: uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(unsigned)
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	// Create service with very short expiry
	service := NewService(testSecret, testIssuer, time.Millisecond)

	token, err := service.GenerateAccessToken(uuid.New(), []string{"passenger"})
	require.NoError(t, err)

	// Wait for token to expire
	time.Sleep(10 * time.Millisecond)

	_, err = service.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestExtractClaims(t *testing.T) {
	service := NewService(testSecret, testIssuer, time.Hour)
	userID := uuid.New()
	roles := []string{"passenger"}

	token, err := service.GenerateAccessToken(userID, roles)
	require.NoError(t, err)

	claims, err := service.ExtractClaims(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, roles, claims.Roles)

	_, err = service.ExtractClaims("garbage")
	assert.Error(t, err)
}

func TestIsTokenExpired(t *testing.T) {
	service := NewService(testSecret, testIssuer, time.Hour)
	userID := uuid.New()

	token, err := service.GenerateAccessToken(userID, []string{"passenger"})
	require.NoError(t, err)
	assert.False(t, service.IsTokenExpired(token))

	// Test expired token
	expiredService := NewService(testSecret, testIssuer, -time.Hour)
	expiredToken, err := expiredService.GenerateAccessToken(userID, []string{"passenger"})
	require.NoError(t, err)
	assert.True(t, service.IsTokenExpired(expiredToken))

	// Test invalid token
	assert.True(t, service.IsTokenExpired("invalid.token.here"))
}

func TestClaimsHasRole(t *testing.T) {
	claims := &Claims{Roles: []string{"passenger", "admin"}}

	assert.True(t, claims.HasRole("admin"))
	assert.False(t, claims.HasRole("super_admin"))
	assert.False(t, (&Claims{}).HasRole("admin"))
}

func TestEmptyRoles(t *testing.T) {
	service := NewService(testSecret, testIssuer, time.Hour)

	token, err := service.GenerateAccessToken(uuid.New(), []string{})
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Empty(t, claims.Roles)
}

func TestConcurrentTokenGeneration(t *testing.T) {
	service := NewService(testSecret, testIssuer, time.Hour)

	done := make(chan bool)
	errors := make(chan error, 100)

	// Generate 100 tokens concurrently
	for i := 0; i < 100; i++ {
		go func() {
			token, err := service.GenerateAccessToken(uuid.New(), []string{"passenger"})
			if err != nil {
				errors <- err
				done <- true
				return
			}

			_, err = service.ValidateAccessToken(token)
			if err != nil {
				errors <- err
			}
			done <- true
		}()
	}

	// Wait for all goroutines
	for i := 0; i < 100; i++ {
		<-done
	}

	close(errors)
	assert.Empty(t, errors)
}

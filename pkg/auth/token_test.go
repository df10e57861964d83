package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charityconnect/charityconnect-backend/pkg/config"
	"github.com/charityconnect/charityconnect-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "charityconnect", ExpirationMinutes: 30}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: userID, Role: enums.RoleOrganiser})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, enums.RoleOrganiser, claims.Role)
	assert.Equal(t, cfg.Issuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)

	actor := claims.Actor()
	assert.True(t, actor.CanAuthorEvents())
	assert.False(t, actor.CanVerify())
}

func TestParseAccessTokenRejects(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleUser})
	require.NoError(t, err)

	other := cfg
	other.Secret = "other"
	_, err = ParseAccessToken(other, token)
	assert.Error(t, err, "wrong secret")

	other = cfg
	other.Issuer = "someone-else"
	_, err = ParseAccessToken(other, token)
	assert.Error(t, err, "wrong issuer")

	expired, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleUser})
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, expired)
	assert.Error(t, err, "expired")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": uuid.NewString(), "role": "admin", "iss": cfg.Issuer})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, unsigned)
	assert.Error(t, err, "alg none")

	_, err = ParseAccessToken(cfg, strings.Repeat("x", 20))
	assert.Error(t, err)
}

func TestMintAccessTokenValidation(t *testing.T) {
	cfg := testJWTConfig()
	_, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.Role("owner")})
	assert.Error(t, err)
	_, err = MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.RoleUser})
	assert.Error(t, err)
	_, err = MintAccessToken(config.JWTConfig{}, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleUser})
	assert.Error(t, err)
}

func TestActorCapabilities(t *testing.T) {
	id := uuid.New()
	cases := []struct {
		actor            Actor
		authed, author   bool
		verify, unpublic bool
	}{
		{Anonymous, false, false, false, false},
		{Actor{UserID: id, Role: enums.RoleUser}, true, false, false, false},
		{Actor{UserID: id, Role: enums.RoleOrganiser}, true, true, false, true},
		{Actor{UserID: id, Role: enums.RoleAdmin}, true, true, true, true},
		{Actor{Role: enums.RoleAdmin}, false, false, false, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.authed, tc.actor.IsAuthenticated(), "%+v authed", tc.actor)
		assert.Equal(t, tc.author, tc.actor.CanAuthorEvents(), "%+v author", tc.actor)
		assert.Equal(t, tc.verify, tc.actor.CanVerify(), "%+v verify", tc.actor)
		assert.Equal(t, tc.unpublic, tc.actor.CanSeeUnpublished(), "%+v unpublished", tc.actor)
	}
	assert.Nil(t, Anonymous.UserRef())
	ref := Actor{UserID: id, Role: enums.RoleUser}.UserRef()
	require.NotNil(t, ref)
	assert.Equal(t, id, *ref)
}

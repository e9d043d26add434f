package oauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"schoolbridge/portal/internal/auth"
)

const testKid = "test-key"

func mintIDToken(t *testing.T, key *rsa.PrivateKey, audience string, expiresIn time.Duration) string {
	t.Helper()
	now := time.Now()
	claims := Claims{
		Email:   "grace@school.test",
		Name:    "Grace Hopper",
		Picture: "https://example.test/grace.png",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "google-123",
			Issuer:    "https://accounts.google.com",
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func jwksServer(t *testing.T, key *rsa.PublicKey) *httptest.Server {
	t.Helper()
	set := JWKSet{Keys: []JWK{{
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		Kid: testKid,
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestVerifierParsesSignedToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jwks := jwksServer(t, &key.PublicKey)
	verifier := NewVerifier(NewRemoteKeySet(jwks.URL, nil), "client-id")

	claims, err := verifier.Parse(context.Background(), mintIDToken(t, key, "client-id", time.Minute))
	require.NoError(t, err)
	user := claims.User()
	assert.Equal(t, "google-123", user.ID)
	assert.Equal(t, "grace@school.test", user.Email)
	assert.Equal(t, "https://example.test/grace.png", user.Avatar)

	_, err = verifier.Parse(context.Background(), mintIDToken(t, key, "other-client", time.Minute))
	assert.Error(t, err)

	_, err = verifier.Parse(context.Background(), mintIDToken(t, key, "client-id", -time.Minute))
	assert.Error(t, err)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	_, err = verifier.Parse(context.Background(), mintIDToken(t, other, "client-id", time.Minute))
	assert.Error(t, err)
}

func TestVerifierWithoutKeysOnlyDecodes(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	res, err := ResultFromIDToken(context.Background(), nil, mintIDToken(t, key, "any", time.Minute), "access")
	require.NoError(t, err)
	assert.Equal(t, "google-123", res.User.ID)
	assert.Equal(t, "access", res.AccessToken)

	_, err = ResultFromIDToken(context.Background(), nil, "", "")
	assert.Error(t, err)
}

func TestGoogleProviderSignIn(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	idToken := mintIDToken(t, key, "client-id", time.Minute)

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"google-access","token_type":"Bearer","expires_in":3600,"id_token":"` + idToken + `"}`))
	}))
	defer tokenServer.Close()

	jwks := jwksServer(t, &key.PublicKey)
	provider := NewGoogleProvider("client-id", "secret", "https://portal.test/callback", NewVerifier(NewRemoteKeySet(jwks.URL, nil), "client-id"))
	provider.config.Endpoint = oauth2.Endpoint{TokenURL: tokenServer.URL, AuthStyle: oauth2.AuthStyleInParams}

	res, err := provider.SignIn(WithCallback(context.Background(), Callback{Code: "good-code"}))
	require.NoError(t, err)
	assert.Equal(t, "google-123", res.User.ID)
	assert.Equal(t, "google-access", res.AccessToken)
	assert.Equal(t, idToken, res.IDToken)

	_, err = provider.SignIn(WithCallback(context.Background(), Callback{Code: "bad-code"}))
	assert.Error(t, err)

	_, err = provider.SignIn(WithCallback(context.Background(), Callback{Error: "access_denied"}))
	assert.True(t, errors.Is(err, auth.ErrOAuthCancelled))

	_, err = provider.SignIn(WithCallback(context.Background(), Callback{}))
	assert.True(t, errors.Is(err, auth.ErrOAuthCancelled))

	_, err = provider.SignIn(WithCallback(context.Background(), Callback{Error: "server_error"}))
	var serviceErr *auth.ServiceError
	assert.True(t, errors.As(err, &serviceErr))

	_, err = provider.SignIn(context.Background())
	assert.Error(t, err)
}

func TestGoogleProviderSignOut(t *testing.T) {
	var revoked []string
	revokeServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		revoked = append(revoked, r.Form.Get("token"))
		if r.Form.Get("token") == "expired" {
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer revokeServer.Close()

	provider := NewGoogleProvider("client-id", "secret", "", nil)
	provider.revokeURL = revokeServer.URL

	require.NoError(t, provider.SignOut(context.Background(), "google-access"))
	require.NoError(t, provider.SignOut(context.Background(), ""))
	assert.Error(t, provider.SignOut(context.Background(), "expired"))
	assert.Equal(t, []string{"google-access", "expired"}, revoked)
}

func TestAuthCodeURL(t *testing.T) {
	provider := NewGoogleProvider("client-id", "secret", "https://portal.test/callback", nil)
	url := provider.AuthCodeURL("state-1")
	assert.Contains(t, url, "client_id=client-id")
	assert.Contains(t, url, "state=state-1")
}

func TestRemoteKeySetLimitsRefetchOnUnknownKid(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	set := JWKSet{Keys: []JWK{{
		Kty: "RSA",
		Kid: testKid,
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}}}
	var fetches int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&fetches, 1)
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer server.Close()

	keys := NewRemoteKeySet(server.URL, nil)
	ctx := context.Background()
	_, err = keys.Key(ctx, testKid)
	require.NoError(t, err)

	for _, kid := range []string{"forged-1", "forged-2", "forged-3"} {
		_, err = keys.Key(ctx, kid)
		assert.Error(t, err)
	}
	_, err = keys.Key(ctx, testKid)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))

	keys.minRefresh = 0
	_, err = keys.Key(ctx, "rotated")
	assert.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fetches))
}

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

const testSecret = "test-secret-at-least-16-chars!!"

func newTestTokens(t *testing.T) *TokenService {
	t.Helper()
	tokens, err := NewTokenService(testSecret, "qalam-test", time.Hour)
	require.NoError(t, err)
	return tokens
}

func TestNewTokenService_RejectsShortSecret(t *testing.T) {
	_, err := NewTokenService("short", "qalam", time.Hour)
	assert.Error(t, err)
}

func TestTokenService_RoundTrip(t *testing.T) {
	tokens := newTestTokens(t)

	raw, err := tokens.Generate("1700000000000123", "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(raw, "."))

	claims, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "1700000000000123", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "qalam-test", claims.Issuer)
}

func TestTokenService_Rejects(t *testing.T) {
	tokens := newTestTokens(t)

	t.Run("Expired", func(t *testing.T) {
		issued := time.Now().Add(-2 * time.Hour)
		tokens.now = func() time.Time { return issued }
		raw, err := tokens.Generate("u1", "alice")
		require.NoError(t, err)

		tokens.now = time.Now
		_, err = tokens.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		other, err := NewTokenService(testSecret, "someone-else", time.Hour)
		require.NoError(t, err)
		raw, err := other.Generate("u1", "alice")
		require.NoError(t, err)

		_, err = tokens.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other, err := NewTokenService("another-secret-of-enough-length", "qalam-test", time.Hour)
		require.NoError(t, err)
		raw, err := other.Generate("u1", "alice")
		require.NoError(t, err)

		_, err = tokens.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("NoneAlgorithm", func(t *testing.T) {
		c := Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "qalam-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, c).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = tokens.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.NoError(t, h.Verify(hash, "correct horse"))
	assert.ErrorIs(t, h.Verify(hash, "wrong horse"), ErrPasswordMismatch)

	_, err = h.Hash(strings.Repeat("x", MaxPasswordBytes+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestRequireAuth(t *testing.T) {
	tokens := newTestTokens(t)
	var gotID, gotName string
	handler := RequireAuth(tokens, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = UserIDFromContext(r.Context())
		gotName = UsernameFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("MissingHeader", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profile", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("GarbageToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/profile", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("ValidToken", func(t *testing.T) {
		raw, err := tokens.Generate("u42", "bob")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/profile", nil)
		req.Header.Set("Authorization", "bearer "+raw)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "u42", gotID)
		assert.Equal(t, "bob", gotName)
	})
}

func TestStateCookie(t *testing.T) {
	state, err := NewState()
	require.NoError(t, err)
	assert.Len(t, state, 32)

	rec := httptest.NewRecorder()
	SetStateCookie(rec, state, false)
	cookie := rec.Result().Cookies()[0]

	t.Run("Match", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?state="+state, nil)
		req.AddCookie(cookie)
		assert.True(t, VerifyState(httptest.NewRecorder(), req))
	})

	t.Run("Mismatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?state=forged", nil)
		req.AddCookie(cookie)
		assert.False(t, VerifyState(httptest.NewRecorder(), req))
	})

	t.Run("NoCookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?state="+state, nil)
		assert.False(t, VerifyState(httptest.NewRecorder(), req))
	})
}

// fakeProvider serves an OAuth token endpoint and the userinfo routes.
func fakeProvider(t *testing.T, routes map[string]any) (*httptest.Server, *oauth2.Config) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "token_type": "bearer"})
	})
	for path, body := range routes {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(body)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token"},
	}
}

func TestGitHubExchange(t *testing.T) {
	t.Run("PublicEmail", func(t *testing.T) {
		srv, cfg := fakeProvider(t, map[string]any{
			"/user": map[string]any{"id": 77, "login": "octo", "name": "Octo Cat", "email": "octo@example.com", "avatar_url": "https://a/1.png"},
		})
		flow := newGitHubFlow(cfg, srv.URL+"/user", srv.URL+"/user/emails")

		p, err := flow.Exchange(context.Background(), "code")
		require.NoError(t, err)
		assert.Equal(t, &OAuthProfile{
			Provider:   "github",
			ProviderID: "77",
			Username:   "octo",
			Email:      "octo@example.com",
			FullName:   "Octo Cat",
			AvatarURL:  "https://a/1.png",
		}, p)
	})

	t.Run("PrivateEmailFallsBackToEmailList", func(t *testing.T) {
		srv, cfg := fakeProvider(t, map[string]any{
			"/user": map[string]any{"id": 78, "login": "quiet"},
			"/user/emails": []map[string]any{
				{"email": "old@example.com", "primary": false, "verified": true},
				{"email": "quiet@example.com", "primary": true, "verified": true},
			},
		})
		flow := newGitHubFlow(cfg, srv.URL+"/user", srv.URL+"/user/emails")

		p, err := flow.Exchange(context.Background(), "code")
		require.NoError(t, err)
		assert.Equal(t, "quiet@example.com", p.Email)
		assert.Equal(t, "quiet", p.FullName)
	})

	t.Run("NoEmail", func(t *testing.T) {
		srv, cfg := fakeProvider(t, map[string]any{
			"/user":        map[string]any{"id": 79, "login": "ghost"},
			"/user/emails": []map[string]any{},
		})
		flow := newGitHubFlow(cfg, srv.URL+"/user", srv.URL+"/user/emails")

		_, err := flow.Exchange(context.Background(), "code")
		assert.ErrorIs(t, err, ErrNoEmail)
	})
}

func TestGoogleExchange_DerivesUsernameFromEmail(t *testing.T) {
	srv, cfg := fakeProvider(t, map[string]any{
		"/userinfo": map[string]any{"sub": "g-1", "email": "sara.k@example.com", "name": "Sara K", "picture": "https://p/1"},
	})
	flow := newGoogleFlow(cfg, srv.URL+"/userinfo")

	p, err := flow.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "google", p.Provider)
	assert.Equal(t, "g-1", p.ProviderID)
	assert.Equal(t, "sara.k", p.Username)
	assert.Equal(t, "Sara K", p.FullName)
}

func TestAuthCodeURL_CarriesState(t *testing.T) {
	flow := NewGitHubProvider("id", "secret", "http://localhost:3000/auth/github/callback")
	assert.Contains(t, flow.AuthCodeURL("abc"), "state=abc")
	assert.Equal(t, "github", flow.Name())
}

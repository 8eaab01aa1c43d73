package access

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/coffeeshop/core/access/testidp"
)

var (
	idp  *testidp.IdentityProvider
	gate *Gate
)

func TestMain(m *testing.M) {
	idp = testidp.New()
	gate = NewGate(&GateBuilder{
		Issuer:   idp.Issuer(),
		Audience: idp.Audience(),
		KeySet:   NewKeySet(&KeySetBuilder{URL: idp.KeySetURL()}),
	})
	code := m.Run()
	idp.Close()
	os.Exit(code)
}

func requestWithAuthorization(value string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/drinks-detail", nil)
	if value != "" {
		r.Header.Set("Authorization", value)
	}
	return r
}

func requireAuthError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr), "expected *AuthError, got %v", err)
	assert.Equal(t, status, authErr.Status)
	assert.Equal(t, code, authErr.Code)
	assert.NotEmpty(t, authErr.Message)
}

func TestTokenFromHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		token  string
		status int
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", 0},
		{"lower case scheme", "bearer abc.def.ghi", "abc.def.ghi", 0},
		{"missing", "", "", http.StatusBadRequest},
		{"basic scheme", "Basic dXNlcjpwYXNz", "", http.StatusUnauthorized},
		{"no token", "Bearer", "", http.StatusUnauthorized},
		{"too many parts", "Bearer abc def", "", http.StatusUnauthorized},
		{"blank", "   ", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := TokenFromHeader(requestWithAuthorization(tt.header))
			if tt.status == 0 {
				require.NoError(t, err)
				assert.Equal(t, tt.token, token)
				return
			}
			var authErr *AuthError
			require.True(t, errors.As(err, &authErr))
			assert.Equal(t, tt.status, authErr.Status)
		})
	}
}

func TestAuthorize_Success(t *testing.T) {
	r := requestWithAuthorization("Bearer " + idp.Token("get:drinks-detail", "post:drinks"))
	claims, err := gate.Authorize(r, "get:drinks-detail")
	require.NoError(t, err)
	assert.Equal(t, idp.Issuer(), claims.Issuer)
	assert.True(t, claims.HasPermission("post:drinks"))
	assert.False(t, claims.HasPermission("delete:drinks"))
}

func TestAuthorize_HeaderProblems(t *testing.T) {
	_, err := gate.Authorize(requestWithAuthorization(""), "get:drinks-detail")
	requireAuthError(t, err, http.StatusBadRequest, CodeHeaderMissing)

	_, err = gate.Authorize(requestWithAuthorization("Basic dXNlcjpwYXNz"), "get:drinks-detail")
	requireAuthError(t, err, http.StatusUnauthorized, CodeInvalidHeader)

	_, err = gate.Authorize(requestWithAuthorization("Bearer not-a-jwt"), "get:drinks-detail")
	requireAuthError(t, err, http.StatusUnauthorized, CodeInvalidHeader)
}

func TestAuthorize_MissingKeyID(t *testing.T) {
	token := idp.SignWithKeyID("", idp.Claims("get:drinks-detail"))
	_, err := gate.Authorize(requestWithAuthorization("Bearer "+token), "get:drinks-detail")
	requireAuthError(t, err, http.StatusUnauthorized, CodeInvalidHeader)
}

func TestAuthorize_UnknownKeyID(t *testing.T) {
	token := idp.SignWithKeyID("no-such-key", idp.Claims("get:drinks-detail"))
	_, err := gate.Authorize(requestWithAuthorization("Bearer "+token), "get:drinks-detail")
	requireAuthError(t, err, http.StatusUnauthorized, CodeInvalidHeader)
}

func TestAuthorize_Expired(t *testing.T) {
	claims := idp.Claims("get:drinks-detail")
	claims["exp"] = time.Now().Add(-time.Minute).Unix()
	_, err := gate.Authorize(requestWithAuthorization("Bearer "+idp.Sign(claims)), "get:drinks-detail")
	requireAuthError(t, err, http.StatusUnauthorized, CodeTokenExpired)
}

func TestAuthorize_WrongAudienceOrIssuer(t *testing.T) {
	claims := idp.Claims("get:drinks-detail")
	claims["aud"] = "someone-else"
	_, err := gate.Authorize(requestWithAuthorization("Bearer "+idp.Sign(claims)), "get:drinks-detail")
	requireAuthError(t, err, http.StatusUnauthorized, CodeInvalidClaims)

	claims = idp.Claims("get:drinks-detail")
	claims["iss"] = "https://evil.example.com/"
	_, err = gate.Authorize(requestWithAuthorization("Bearer "+idp.Sign(claims)), "get:drinks-detail")
	requireAuthError(t, err, http.StatusUnauthorized, CodeInvalidClaims)
}

func TestAuthorize_WrongSigningMethod(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, idp.Claims("get:drinks-detail"))
	token.Header["kid"] = idp.KeyID()
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = gate.Authorize(requestWithAuthorization("Bearer "+signed), "get:drinks-detail")
	requireAuthError(t, err, http.StatusUnauthorized, CodeInvalidHeader)
}

func TestAuthorize_Permissions(t *testing.T) {
	claims := idp.Claims()
	delete(claims, "permissions")
	_, err := gate.Authorize(requestWithAuthorization("Bearer "+idp.Sign(claims)), "get:drinks-detail")
	requireAuthError(t, err, http.StatusBadRequest, CodeInvalidClaims)

	_, err = gate.Authorize(requestWithAuthorization("Bearer "+idp.Token("post:drinks")), "get:drinks-detail")
	requireAuthError(t, err, http.StatusForbidden, CodeUnauthorized)

	// an empty list is present, just not sufficient
	_, err = gate.Authorize(requestWithAuthorization("Bearer "+idp.Token()), "get:drinks-detail")
	requireAuthError(t, err, http.StatusForbidden, CodeUnauthorized)
}

func TestAuthorize_KeySetUnavailable(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	g := NewGate(&GateBuilder{
		Issuer:   idp.Issuer(),
		Audience: idp.Audience(),
		KeySet:   NewKeySet(&KeySetBuilder{URL: down.URL + testidp.JWKSPath}),
	})
	_, err := g.Authorize(requestWithAuthorization("Bearer "+idp.Token("get:drinks-detail")), "get:drinks-detail")
	requireAuthError(t, err, http.StatusUnauthorized, CodeInvalidHeader)
}

func TestClaimsContext(t *testing.T) {
	r := requestWithAuthorization("")
	assert.Nil(t, ClaimsFromContext(r.Context()))

	claims := &Claims{Permissions: []string{"get:drinks-detail"}}
	ctx := ContextWithClaims(r.Context(), claims)
	assert.Equal(t, claims, ClaimsFromContext(ctx))

	var nilClaims *Claims
	assert.False(t, nilClaims.HasPermission("get:drinks-detail"))
}

func TestNewGate_Panics(t *testing.T) {
	assert.Panics(t, func() { NewGate(&GateBuilder{Audience: "a", KeySet: &KeySet{}}) })
	assert.Panics(t, func() { NewGate(&GateBuilder{Issuer: "i", KeySet: &KeySet{}}) })
	assert.Panics(t, func() { NewGate(&GateBuilder{Issuer: "i", Audience: "a"}) })
}

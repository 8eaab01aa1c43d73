package access

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/relabs-tech/coffeeshop/core/logger"
)

// GateBuilder is a helper builder for Gate
type GateBuilder struct {
	// Issuer is the accepted issuer for the token, for Auth0 "https://{domain}/". This is mandatory.
	Issuer string
	// Audience is the accepted audience, the API identifier. This is mandatory.
	Audience string
	// KeySet provides the issuer's public keys. This is mandatory.
	KeySet *KeySet
}

// Gate verifies JWT bearer tokens and checks them for permissions.
type Gate struct {
	issuer   string
	audience string
	keySet   *KeySet
	parser   *jwt.Parser
}

// NewGate returns a new gate
func NewGate(gb *GateBuilder) *Gate {
	if gb.Issuer == "" {
		panic("issuer is missing")
	}
	if gb.Audience == "" {
		panic("audience is missing")
	}
	if gb.KeySet == nil {
		panic("key set is missing")
	}
	return &Gate{
		issuer:   gb.Issuer,
		audience: gb.Audience,
		keySet:   gb.KeySet,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})),
	}
}

// TokenFromHeader extracts the bearer token from the Authorization header.
func TokenFromHeader(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", errHeaderMissing()
	}
	parts := strings.Fields(auth)
	if len(parts) == 0 || strings.ToLower(parts[0]) != "bearer" {
		return "", errInvalidHeader("Authorization header must start with \"Bearer\".")
	}
	if len(parts) == 1 {
		return "", errInvalidHeader("Token not found.")
	}
	if len(parts) > 2 {
		return "", errInvalidHeader("Authorization header must be bearer token.")
	}
	return parts[1], nil
}

// Authorize verifies the request's bearer token and checks that it grants the
// permission. On success it returns the decoded claims, otherwise an *AuthError.
func (g *Gate) Authorize(r *http.Request, permission string) (*Claims, error) {
	claims, err := g.Verify(r)
	if err != nil {
		return nil, err
	}
	if claims.Permissions == nil {
		return nil, errInvalidClaims(http.StatusBadRequest, "Permissions not included in JWT.")
	}
	if !claims.HasPermission(permission) {
		logger.FromContext(r.Context()).Infof("subject %s lacks permission %s", claims.Subject, permission)
		return nil, errPermissionNotFound()
	}
	return claims, nil
}

// Verify verifies the request's bearer token and returns its claims. It does not
// look at permissions.
func (g *Gate) Verify(r *http.Request) (*Claims, error) {
	ctx := r.Context()
	rlog := logger.FromContext(ctx)

	tokenString, err := TokenFromHeader(r)
	if err != nil {
		return nil, err
	}

	unverified, _, err := g.parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, errInvalidHeader("Authorization malformed.")
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, errInvalidHeader("Authorization malformed.")
	}

	key, err := g.keySet.Key(ctx, kid)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			rlog.WithError(err).Errorln("Error 4820: key set unavailable")
		}
		return nil, errInvalidHeader("Unable to find the appropriate key.")
	}

	claims := &Claims{}
	_, err = g.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errTokenExpired()
		}
		rlog.WithError(err).Debugln("invalid token")
		return nil, errInvalidHeader("Unable to parse authentication token.")
	}
	if !claims.VerifyAudience(g.audience, true) || !claims.VerifyIssuer(g.issuer, true) {
		return nil, errInvalidClaims(http.StatusUnauthorized, "Incorrect claims. Please, check the audience and issuer.")
	}
	return claims, nil
}

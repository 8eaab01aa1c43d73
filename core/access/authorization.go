// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package access provides utilities for access control

Requests are authorized with JWT bearer tokens issued by an external identity
provider. The token carries a list of permissions, for example "get:drinks-detail",
and a handler is granted access if the permission it requires is in that list.

Handlers call the gate explicitly:

	claims, err := gate.Authorize(r, "post:drinks")
	if err != nil {
		// err is an *AuthError with the status code to respond with
	}
*/
package access

import (
	"context"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v4"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

// the predefined context key
const (
	contextKeyClaims contextKey = "_claims_"
)

// Claims are the decoded claims of a verified access token
type Claims struct {
	jwt.RegisteredClaims
	// Permissions is nil if the token had no permissions claim at all
	Permissions []string `json:"permissions"`
}

// HasPermission returns true if the claims contain the requested permission;
// otherwise it returns false.
func (c *Claims) HasPermission(permission string) bool {
	if c == nil {
		return false
	}
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// ContextWithClaims returns a new context with the claims added to it
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKeyClaims, claims)
}

// ClaimsFromContext retrieves claims from the context
func ClaimsFromContext(ctx context.Context) *Claims {
	c, ok := ctx.Value(contextKeyClaims).(*Claims)
	if ok {
		return c
	}
	return nil
}

// AuthError is returned by the gate when a request cannot be authorized. It carries
// the HTTP status code and the message the client gets to see.
type AuthError struct {
	Status  int
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// error codes of AuthError
const (
	CodeHeaderMissing = "authorization_header_missing"
	CodeInvalidHeader = "invalid_header"
	CodeTokenExpired  = "token_expired"
	CodeInvalidClaims = "invalid_claims"
	CodeUnauthorized  = "unauthorized"
)

func errHeaderMissing() *AuthError {
	return &AuthError{Status: http.StatusBadRequest, Code: CodeHeaderMissing, Message: "Authorization header is expected."}
}

func errInvalidHeader(message string) *AuthError {
	return &AuthError{Status: http.StatusUnauthorized, Code: CodeInvalidHeader, Message: message}
}

func errTokenExpired() *AuthError {
	return &AuthError{Status: http.StatusUnauthorized, Code: CodeTokenExpired, Message: "Token expired."}
}

func errInvalidClaims(status int, message string) *AuthError {
	return &AuthError{Status: status, Code: CodeInvalidClaims, Message: message}
}

func errPermissionNotFound() *AuthError {
	return &AuthError{Status: http.StatusForbidden, Code: CodeUnauthorized, Message: "Permission not found."}
}

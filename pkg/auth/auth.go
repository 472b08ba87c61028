// Package auth carries the caller's bearer credential from tool arguments to
// upstream requests.
//
// Tool invocations are not HTTP requests, so the credential travels as a
// reserved argument field that the hosting runtime fills in before the tool
// handler runs. Extract removes that field so it never reaches schema
// validation or the upstream request body.
package auth

import (
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/wilhg/shopmcp/pkg/contract"
	"github.com/wilhg/shopmcp/pkg/errmodel"
)

// ReservedField is the argument key that carries the bearer credential.
const ReservedField = "_auth_token"

// Credential is a bearer token plus whatever could be read from it without verification.
type Credential struct {
	Token   string
	Subject string
	Expires time.Time
}

// Present reports whether a token is carried.
func (c Credential) Present() bool { return c.Token != "" }

// Header returns the Authorization header value.
func (c Credential) Header() string { return "Bearer " + c.Token }

// Extract removes the reserved field from args and returns the credential it held.
// args is modified in place.
func Extract(args map[string]any) (Credential, bool) {
	raw, ok := args[ReservedField]
	if !ok {
		return Credential{}, false
	}
	delete(args, ReservedField)
	s, _ := raw.(string)
	return Parse(s)
}

// Inject sets the reserved field unless args already carries a credential.
// It is what the hosting runtime calls with the transport's Authorization header.
func Inject(args map[string]any, header string) {
	if args == nil {
		return
	}
	if v, ok := args[ReservedField].(string); ok && strings.TrimSpace(v) != "" {
		return
	}
	if tok := stripBearer(header); tok != "" {
		args[ReservedField] = tok
	}
}

// FromHeader reads the bearer token from an HTTP header set.
func FromHeader(h http.Header) string {
	if h == nil {
		return ""
	}
	return h.Get("Authorization")
}

// Parse builds a Credential from a raw token, accepting an optional "Bearer " prefix.
// JWT claims are read without verifying the signature; the upstream API owns verification.
func Parse(raw string) (Credential, bool) {
	tok := stripBearer(raw)
	if tok == "" {
		return Credential{}, false
	}
	cred := Credential{Token: tok}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err == nil {
		cred.Subject = claims.Subject
		if claims.ExpiresAt != nil {
			cred.Expires = claims.ExpiresAt.Time
		}
	}
	return cred, true
}

// Enforce refuses an auth-required contract without a usable credential.
// Opaque tokens pass; JWTs whose exp claim is already in the past do not.
func Enforce(c *contract.ToolContract, cred Credential, now time.Time) error {
	if !c.Meta.AuthRequired {
		return nil
	}
	if !cred.Present() {
		return errmodel.Unauthorized(c.Name, "no bearer credential supplied")
	}
	if !cred.Expires.IsZero() && !now.Before(cred.Expires) {
		return errmodel.Unauthorized(c.Name, "bearer credential expired")
	}
	return nil
}

func stripBearer(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 7 && strings.EqualFold(s[:7], "bearer ") {
		s = strings.TrimSpace(s[7:])
	}
	return s
}

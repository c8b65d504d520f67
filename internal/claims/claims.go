// Package claims decodes the payload of access tokens without verifying their signature.
//
// Verification is the issuing server's job; the client only reads identity and
// expiry to decide when to renew. Swapping in verified decoding means providing
// another Decoder.
package claims

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ErrDecode is returned for malformed tokens or tokens missing required claims.
var ErrDecode = errors.New("cannot decode token")

// Claims holds the fields the client reads from an access token.
type Claims struct {
	Subject   string
	Email     string
	FirstName string
	LastName  string
	TokenType string
	ExpiresAt time.Time
}

// FullName joins first and last name.
func (c Claims) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Decoder turns a token string into Claims.
type Decoder interface {
	Decode(token string) (Claims, error)
}

// tokenClaims mirrors the payload issued by the API.
type tokenClaims struct {
	UUID      string `json:"uuid"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// JWTDecoder reads JWT payloads with golang-jwt's unverified parser.
type JWTDecoder struct {
	parser *jwt.Parser
}

// NewJWTDecoder builds a decoder.
func NewJWTDecoder() *JWTDecoder {
	return &JWTDecoder{parser: jwt.NewParser()}
}

// Decode parses token. The result does not depend on wall-clock time.
func (d *JWTDecoder) Decode(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return Claims{}, fmt.Errorf("%w: expected three segments", ErrDecode)
	}

	var tc tokenClaims
	if _, _, err := d.parser.ParseUnverified(token, &tc); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if tc.Email == "" {
		return Claims{}, fmt.Errorf("%w: missing email", ErrDecode)
	}
	if tc.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: missing exp", ErrDecode)
	}

	subject := tc.UUID
	if subject == "" {
		subject = tc.Subject
	}

	return Claims{
		Subject:   subject,
		Email:     tc.Email,
		FirstName: tc.FirstName,
		LastName:  tc.LastName,
		TokenType: tc.TokenType,
		ExpiresAt: tc.ExpiresAt.Time,
	}, nil
}

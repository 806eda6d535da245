package auth

import (
	"context"
	"encoding/json"
	"fmt"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// JWTAuthenticator verifies HS256 tokens carried either as a bare JSON
// string or as {"jwt": "<token>"}.
type JWTAuthenticator struct {
	secret []byte
	opts   []gojwt.ParserOption
}

// NewJWTAuthenticator creates a JWT authenticator for secret. A non-empty
// issuer is required to match the token's iss claim.
func NewJWTAuthenticator(secret []byte, issuer string) (*JWTAuthenticator, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: jwt secret is required", ErrInvalidAuthenticator)
	}
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
	}
	if issuer != "" {
		opts = append(opts, gojwt.WithIssuer(issuer))
	}
	return &JWTAuthenticator{secret: secret, opts: opts}, nil
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, auth json.RawMessage) error {
	tok, err := jwtToken(auth)
	if err != nil {
		return deny("%v", err)
	}
	parser := gojwt.NewParser(a.opts...)
	_, err = parser.Parse(tok, func(*gojwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return deny("%v", err)
	}
	return nil
}

func jwtToken(auth json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(auth, &s); err == nil {
		return s, nil
	}
	var obj struct {
		JWT string `json:"jwt"`
	}
	if err := json.Unmarshal(auth, &obj); err != nil || obj.JWT == "" {
		return "", fmt.Errorf("payload carries no jwt")
	}
	return obj.JWT, nil
}

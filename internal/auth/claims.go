package auth

import "github.com/golang-jwt/jwt/v5"

// Scope limits what an operator token may do.
type Scope string

const (
	// ScopeDial allows triggering single calls over HTTP.
	ScopeDial Scope = "dial"
)

// Claims are the only supported JWT claims shape for the trigger API.
// Operator is the subject; it ends up in the process log next to every call
// triggered with the token.
type Claims struct {
	jwt.RegisteredClaims

	Operator string `json:"operator"`
	Scope    Scope  `json:"scope"`
}

package auth

import "github.com/golang-jwt/jwt/v5"

// Claims are the only supported JWT claims shape for the admin API.
// Operator identifies the human or job behind the token and ends up in audit events.
type Claims struct {
	jwt.RegisteredClaims

	Operator string `json:"operator"`
	Role     string `json:"role"`
}

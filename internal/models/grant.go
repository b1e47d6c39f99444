package models

import "github.com/golang-jwt/jwt/v5"

// GrantTokenType marks a token as proof of a completed code verification
const GrantTokenType = "otp_grant"

// GrantClaims are carried by a verification grant
type GrantClaims struct {
	Type    string  `json:"typ"`
	Email   string  `json:"email"`
	Purpose Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

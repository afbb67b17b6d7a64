package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TerminalClaims are the JWT claims carried by a POS terminal token.
// Write endpoints require them; the restaurant scope is checked against
// the account being charged.
type TerminalClaims struct {
	RestaurantID uint   `json:"restaurant_id"`
	TerminalID   string `json:"terminal_id"`
	Role         string `json:"role"`
	jwt.RegisteredClaims
}

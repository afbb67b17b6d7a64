// Package main mints POS terminal credentials: a signed JWT for a terminal
// and, optionally, the bcrypt hash of a shared kiosk secret for the
// X-Terminal-Secret fallback.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"loyka/internal/config"
	"loyka/internal/models"
)

func main() {
	config.LoadEnv()

	restaurantID, err := strconv.ParseUint(os.Getenv("RESTAURANT_ID"), 10, 32)
	if err != nil || restaurantID == 0 {
		log.Fatal("RESTAURANT_ID must be set to a positive integer")
	}
	terminalID := os.Getenv("TERMINAL_ID")
	if terminalID == "" {
		log.Fatal("TERMINAL_ID must be set")
	}
	role := config.GetEnv("TERMINAL_ROLE", "terminal")
	ttl := config.GetDurationEnv("TOKEN_TTL", 365*24*time.Hour)

	claims := models.TerminalClaims{
		RestaurantID: uint(restaurantID),
		TerminalID:   terminalID,
		Role:         role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   terminalID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(config.GetEnv("JWT_SECRET", "loyka-dev-secret")))
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	fmt.Println(signed)

	if secret := os.Getenv("TERMINAL_SECRET"); secret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("failed to hash terminal secret: %v", err)
		}
		fmt.Printf("TERMINAL_SECRET_HASH=%s\n", hash)
	}
}

// Command devtoken mints a bearer token signed with JWT_SECRET for local
// development against the server.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mmynk/estimator/internal/auth"
	"github.com/mmynk/estimator/internal/config"
)

func main() {
	userID := flag.String("user", "dev-user", "user id carried in the token")
	email := flag.String("email", "dev@example.com", "email carried in the token")
	role := flag.String("role", string(auth.RoleAdmin), "platform role: admin, billing-admin, pm or employee")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	r := auth.Role(*role)
	if !r.Valid() {
		slog.Error("Unknown role", "role", *role)
		os.Exit(2)
	}

	token, err := auth.NewJWTManager(cfg.JWTSecret, auth.DefaultTokenDuration).Generate(*userID, *email, r)
	if err != nil {
		slog.Error("Failed to sign token", "error", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

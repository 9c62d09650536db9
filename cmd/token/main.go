package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"survey-dialer/internal/auth"
	"survey-dialer/internal/config"
	"survey-dialer/internal/rbac"
)

// token mints an admin API bearer token from the same JWT_* settings the API uses.
func main() {
	envFile := flag.String("env-file", ".env", "dotenv file to read JWT settings from")
	operator := flag.String("operator", "", "operator name recorded in audit events")
	role := flag.String("role", rbac.RoleOperator, "token role: operator or admin")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to JWT_TOKEN_TTL)")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		slog.Error("failed to read env file", "err", err)
		os.Exit(1)
	}
	if strings.TrimSpace(*operator) == "" {
		slog.Error("-operator is required")
		os.Exit(2)
	}
	if !rbac.Valid(*role) {
		slog.Error("unknown role", "role", *role)
		os.Exit(2)
	}

	cfg := config.AuthConfig{
		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTIssuer:   strings.TrimSpace(os.Getenv("JWT_ISSUER")),
		JWTAudience: strings.TrimSpace(os.Getenv("JWT_AUDIENCE")),
		TokenTTL:    *ttl,
	}
	if cfg.TokenTTL <= 0 {
		if d, err := time.ParseDuration(strings.TrimSpace(os.Getenv("JWT_TOKEN_TTL"))); err == nil {
			cfg.TokenTTL = d
		}
	}

	m, err := auth.NewManager(cfg)
	if err != nil {
		slog.Error("auth init failed", "err", err)
		os.Exit(1)
	}
	tok, err := m.Issue(time.Now(), *operator, *role)
	if err != nil {
		slog.Error("token issuance failed", "err", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}

// Command admintoken prints a bearer token for the admin HTTP routes.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/badrx15/creavisionbot/internal/config"
	"github.com/badrx15/creavisionbot/internal/server"
)

func main() {
	userID := flag.Int64("user", 0, "admin user id (must be listed in ADMIN_USER_IDS or flagged admin)")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg := config.Load()
	if cfg.AdminJWTSecret == "" {
		fmt.Fprintln(os.Stderr, "ADMIN_JWT_SECRET is not set")
		os.Exit(1)
	}
	if !cfg.IsAdmin(*userID) {
		fmt.Fprintf(os.Stderr, "warning: user %d is not in ADMIN_USER_IDS; the token only works if the account is flagged admin\n", *userID)
	}

	token, err := server.IssueAdminToken(cfg.AdminJWTSecret, *userID, time.Now(), *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

// CLI tool to register a user: bcrypt-hashed credentials, an empty profile
// awaiting onboarding, and a bearer token.
// Usage: go run ./cmd/create-user
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"lg/nutrition-tracker-api/internal/account"
	"lg/nutrition-tracker-api/internal/config"
	"lg/nutrition-tracker-api/internal/factory"
	"lg/nutrition-tracker-api/internal/logger"
	"lg/nutrition-tracker-api/internal/profile"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.StoreDriver == config.DriverMemory {
		fmt.Fprintln(os.Stderr, "Refusing to create a user in the in-memory store; set NUTRITION_DB_URL or NUTRITION_SQLITE_PATH")
		os.Exit(1)
	}
	log := logger.New("create-user", "warn")

	ctx := context.Background()
	store, closeStore, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to open store: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Username: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)

	fmt.Print("Password: ")
	password, _ := reader.ReadString('\n')
	password = strings.TrimSpace(password)

	profiles := profile.New(store, cfg.Retry, time.Now, log)
	acct, err := account.New(store, profiles, time.Now).Register(ctx, username, password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating user: %v\n", err)
		closeStore()
		os.Exit(1)
	}

	fmt.Printf("\nUser created successfully!\n")
	fmt.Printf("  ID:         %s\n", acct.UserID)
	fmt.Printf("  Username:   %s\n", acct.Username)
	fmt.Printf("  Auth Token: %s\n", acct.Token)
	fmt.Println("\nPOST /api/onboarding to compute targets.")
}

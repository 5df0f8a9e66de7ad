// Command token-generator mints a signed access token for a given user ID,
// for local development and manual API testing. Production tokens come from
// the external identity provider; this tool only needs the shared secret.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/phrazzld/voicenote-api/internal/config"
	"github.com/phrazzld/voicenote-api/internal/service/auth"
)

func main() {
	userIDFlag := flag.String("user", "", "user UUID to issue the token for (default: random)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	userID := uuid.New()
	if *userIDFlag != "" {
		userID, err = uuid.Parse(*userIDFlag)
		if err != nil {
			log.Fatalf("invalid user UUID %q: %v", *userIDFlag, err)
		}
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		log.Fatalf("failed to initialize JWT service: %v", err)
	}

	token, err := jwtService.GenerateToken(context.Background(), userID)
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}

	fmt.Printf("User ID: %s\nToken:   %s\n", userID, token)
}

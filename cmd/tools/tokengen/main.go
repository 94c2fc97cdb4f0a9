package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"serialrent-backend/internal/config"
	"serialrent-backend/internal/security"
)

// tokengen mints operator access tokens, or bcrypt hashes for scanner API keys.
func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	actor := flag.String("actor", "", "Actor name recorded in status history")
	roles := flag.String("roles", "", "Comma separated roles")
	hashKey := flag.String("hash-key", "", "Print the bcrypt hash of this scanner API key and exit")
	flag.Parse()

	if *hashKey != "" {
		h, err := security.HashAPIKey(*hashKey)
		if err != nil {
			log.Fatalf("Failed to hash key: %v", err)
		}
		fmt.Println(h)
		return
	}

	if *actor == "" {
		log.Fatal("-actor is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var roleList []string
	for _, r := range strings.Split(*roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roleList = append(roleList, r)
		}
	}
	tm := security.NewTokenManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.AccessTokenExpiry)*time.Minute)
	token, err := tm.GenerateAccessToken(*actor, roleList)
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}
	fmt.Println(token)
}

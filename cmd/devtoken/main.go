// Command devtoken prints a bearer token for a caller address, signed with
// the same key and issuer the server reads from the environment.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"landregistry/internal/identity"
	"landregistry/internal/platform/config"
	id "landregistry/pkg/domain"
)

func main() {
	address := flag.String("address", "", "caller address to put in the token subject")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to JWT_TOKEN_TTL)")
	flag.Parse()

	if err := run(*address, *ttl); err != nil {
		fmt.Fprintln(os.Stderr, "devtoken:", err)
		os.Exit(1)
	}
}

func run(rawAddress string, ttl time.Duration) error {
	address, err := id.ParseAddress(rawAddress)
	if err != nil {
		return err
	}
	var cfg config.JWTConfig
	if err := config.ParseEnv(&cfg); err != nil {
		return err
	}
	if cfg.SigningKey == "" {
		cfg.SigningKey = config.DevSigningKey
	}
	if ttl <= 0 {
		ttl = cfg.TokenTTL
	}
	token, err := identity.NewTokenService(cfg.SigningKey, cfg.Issuer).Issue(address, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

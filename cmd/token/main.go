// Command token prints a bearer token for local testing of the API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/ariefcatur/storefront-checkout/internal/httpx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	user := flag.String("user", "demo", "user id")
	email := flag.String("email", "demo@example.com", "user email")
	admin := flag.Bool("admin", false, "grant operator access")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is required")
		os.Exit(1)
	}
	a := &httpx.Authenticator{Secret: []byte(secret)}
	tok, err := a.Issue(checkout.User{ID: *user, Email: *email}, *admin, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}

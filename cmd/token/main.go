// Command token prints a signed bearer token for the API.
//
//	JWT_SECRET=... token -subject alice -tenants acme/app,acme/other -ttl 24h
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/axenox/Sketch/internal/auth"
	"github.com/axenox/Sketch/internal/config"
)

func main() {
	configPath := flag.String("config", "", "YAML override file (default $CONFIG_FILE)")
	subject := flag.String("subject", "", "Token subject")
	tenants := flag.String("tenants", "", "Comma-separated vendor/alias list (empty grants every tenant)")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "usage: token -subject <name> [-tenants vendor/alias,...] [-ttl 24h]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	var granted []string
	for _, t := range strings.Split(*tenants, ",") {
		if t = strings.TrimSpace(t); t != "" {
			granted = append(granted, t)
		}
	}

	token, expires, err := auth.New(cfg.JWTSecret).IssueToken(*subject, granted, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.UTC().Format(time.RFC3339))
}

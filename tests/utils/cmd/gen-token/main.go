// gen-token mints session tokens for load and integration tests. It signs
// with SESSION_SECRET and registers each token in Redis, so the tokens it
// prints pass real server-side validation.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adamwitko/retro/auth"
)

func main() {
	var (
		count  = flag.Int("count", 1, "number of tokens to generate")
		prefix = flag.String("prefix", "perf-user", "prefix for generated usernames when count > 1")
		start  = flag.Int("start", 1, "starting index for generated usernames when count > 1")
		ttl    = flag.Duration("ttl", time.Hour, "session lifetime")
		output = flag.String("output", "", "file to write generated tokens as a JSON array")
	)
	flag.Parse()

	if *count < 1 {
		log.Fatal("count must be at least 1")
	}
	if *start < 1 {
		log.Fatal("start index must be at least 1")
	}
	args := flag.Args()
	if len(args) > 0 && *count > 1 {
		log.Fatal("explicit username cannot be provided when generating multiple tokens")
	}

	secret := os.Getenv("SESSION_SECRET")
	if secret == "" {
		log.Fatal("SESSION_SECRET must be set")
	}
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("redis url: %v", err)
	}
	sessions := auth.NewSessions([]byte(secret), *ttl, redis.NewClient(opts))

	ctx := context.Background()
	tokens := make([]string, *count)
	for i := range tokens {
		var username string
		switch {
		case len(args) > 0:
			username = args[0]
		case *count == 1:
			username = *prefix
		default:
			username = fmt.Sprintf("%s-%d", *prefix, *start+i)
		}
		tok, err := sessions.Mint(ctx, username)
		if err != nil {
			log.Fatalf("mint token for %s: %v", username, err)
		}
		tokens[i] = tok
	}

	if *output != "" {
		if err := writeTokens(*output, tokens); err != nil {
			log.Fatalf("write tokens: %v", err)
		}
	}

	fmt.Print(tokens[0])
}

func writeTokens(path string, tokens []string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

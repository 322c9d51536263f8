package main

import (
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/adamwitko/retro/api"
	"github.com/adamwitko/retro/auth"
	"github.com/adamwitko/retro/hub"
	"github.com/adamwitko/retro/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	retroTable := os.Getenv("RETROS_TABLE")
	archiveQueue := os.Getenv("ARCHIVE_QUEUE")
	if connStr == "" || retroTable == "" || archiveQueue == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, retroTable, archiveQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	rc := redis.NewClient(redisOptions())

	ttl := 24 * time.Hour
	if v := os.Getenv("SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid SESSION_TTL: %v", err)
		}
		ttl = d
	}
	secret := os.Getenv("SESSION_SECRET")
	if secret == "" {
		log.Fatal("missing SESSION_SECRET")
	}
	sessions := auth.NewSessions([]byte(secret), ttl, rc)

	broker := hub.New(rc, "retro:frames")
	go broker.Run(context.Background())

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(api.GzipRequestMiddleware())

	registerSignIn(e, sessions)

	logger := log.New()
	api.Register(e, api.NewRooms(), store, sessions, broker, sessions, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// registerSignIn wires whichever OAuth providers are configured. At least
// one must be.
func registerSignIn(e *echo.Echo, sessions *auth.Sessions) {
	configured := 0

	if clientID := os.Getenv("GITHUB_CLIENT_ID"); clientID != "" {
		clientSecret := os.Getenv("GITHUB_CLIENT_SECRET")
		org := os.Getenv("GITHUB_ORG")
		if clientSecret == "" || org == "" {
			log.Fatal("incomplete GitHub OAuth config")
		}
		login, callback := auth.GitHub(sessions, clientID, clientSecret, org)
		e.GET("/auth/github", login)
		e.GET("/auth/github/callback", callback)
		configured++
	}

	if clientID := os.Getenv("OFFICE365_CLIENT_ID"); clientID != "" {
		clientSecret := os.Getenv("OFFICE365_CLIENT_SECRET")
		domain := os.Getenv("OFFICE365_DOMAIN")
		if clientSecret == "" || domain == "" {
			log.Fatal("incomplete Office 365 OAuth config")
		}
		login, callback, err := auth.Office365(sessions, clientID, clientSecret, domain)
		if err != nil {
			log.Fatalf("office365: %v", err)
		}
		e.GET("/auth/office365", login)
		e.GET("/auth/office365/callback", callback)
		configured++
	}

	if configured == 0 {
		log.Fatal("no OAuth provider configured")
	}
}

func redisOptions() *redis.Options {
	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	opts, err := redis.ParseURL(redisConn)
	if err == nil {
		return opts
	}
	// Some hosts hand out "host:port,password=...,ssl=true" strings.
	parts := strings.Split(redisConn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

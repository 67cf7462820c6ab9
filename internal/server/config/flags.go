package config

import (
	"flag"
	"io"
	"time"

	"github.com/artelie/backend/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string        HTTP bind address (e.g. ":8080")
//	-grpc string     ops gRPC bind address (e.g. ":50051")
//	-d string        PostgreSQL DSN
//	-s string        JWT HMAC secret key
//	-t int           access token validity, minutes
//	-r int           refresh token validity, minutes
//	-e string        environment: local, dev or prod
//	-redis string    Redis address
//	-revocation str  revocation backend: postgres or redis
//
// args are filtered with flagx.FilterArgs first so flags owned by other
// components (such as -c) do not break parsing.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-grpc", "-d", "-s", "-t", "-r", "-e", "-redis", "-revocation"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "grpc", config.EndpointAddrGRPC, "ops gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshTokenValidity := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")

	fs.StringVar(&config.Env, "e", config.Env, "environment (local, dev, prod)")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	fs.StringVar(&config.RevocationBackend, "revocation", config.RevocationBackend, "revocation backend (postgres, redis)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// only explicit flags override, so sub-minute values from the file survive
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*accessTokenValidity) * time.Minute
		case "r":
			config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidity) * time.Minute
		}
	})
	return nil
}

// Command createsuperuser creates an active, verified staff superuser. It
// reads the same configuration as the server.
package main

import (
	"bufio"
	"context"
	"log"
	"os"

	"github.com/artelie/backend/internal/admin"
	"github.com/artelie/backend/internal/logging"
	"github.com/artelie/backend/internal/server"
	"github.com/artelie/backend/internal/server/config"
)

func main() {
	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	core, err := server.NewCore(ctx, cfg, logging.New(cfg.Env))
	if err != nil {
		log.Fatalf("%v", err)
	}

	_, err = admin.CreateSuperuser(ctx, core.Accounts, bufio.NewReader(os.Stdin), os.Stdout)
	core.Close()
	if err != nil {
		os.Exit(1)
	}
}

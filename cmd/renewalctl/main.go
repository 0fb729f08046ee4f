package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/edvin/renewd/internal/certstore"
	"github.com/edvin/renewd/internal/config"
	"github.com/edvin/renewd/internal/configstore"
	"github.com/edvin/renewd/internal/db"
	"github.com/edvin/renewd/internal/model"
	"github.com/edvin/renewd/internal/orchestrator"
	"github.com/edvin/renewd/internal/seed"

	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "seed":
		fs := flag.NewFlagSet("seed", flag.ExitOnError)
		file := fs.String("f", "", "Path to seed definition YAML file (required)")
		fs.Parse(os.Args[2:])
		if *file == "" {
			fmt.Fprintln(os.Stderr, "Error: -f flag is required")
			fs.Usage()
			os.Exit(1)
		}
		runSeed(*file)

	case "start":
		fs := flag.NewFlagSet("start", flag.ExitOnError)
		wait := fs.Bool("wait", true, "Block until the renewal reaches a terminal state")
		fs.Parse(os.Args[2:])
		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "Usage: renewalctl start [-wait=false] <connection-id>")
			os.Exit(1)
		}
		runStart(fs.Arg(0), *wait)

	case "status":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: renewalctl status <renewal-id>")
			os.Exit(1)
		}
		runStatus(os.Args[2])

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  renewalctl seed -f <seed-definition.yaml>
  renewalctl start [-wait=false] <connection-id>
  renewalctl status <renewal-id>

Commands:
  seed     Bootstrap Connections and Settings into the config store from a YAML fixture
  start    Start a renewal for a connection and report its progress
  status   Print the current RenewalStatus by id

Flags:
  -f string    Path to a YAML seed fixture (required for seed)
  -wait bool   Block and poll until the renewal reaches a terminal state (default true)`)
}

func runSeed(file string) {
	cfg, err := config.Load()
	if err != nil {
		exitf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		exitf("%v", err)
	}
	defer closeStore()

	fixture, err := seed.Load(file)
	if err != nil {
		exitf("%v", err)
	}
	if err := seed.Apply(ctx, store, fixture); err != nil {
		exitf("%v", err)
	}
}

func runStart(connectionIDArg string, wait bool) {
	connectionID, err := strconv.ParseInt(connectionIDArg, 10, 64)
	if err != nil {
		exitf("invalid connection id %q: %v", connectionIDArg, err)
	}

	cfg, err := config.Load()
	if err != nil {
		exitf("failed to load config: %v", err)
	}
	if err := cfg.Validate("renewalctl"); err != nil {
		exitf("invalid config: %v", err)
	}

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		exitf("%v", err)
	}
	defer closeStore()

	certs, err := certstore.New(cfg.AccountsDir)
	if err != nil {
		exitf("failed to initialize certificate store: %v", err)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	orch := orchestrator.New(store, certs, logger, cfg.ContactEmail, cfg.LetsEncryptStaging, cfg.MaxConcurrentRenewals,
		orchestrator.WithDNSCleanup(cfg.LetsEncryptCleanupDNS))

	status, err := orch.StartRenewal(ctx, connectionID)
	if err != nil {
		exitf("start renewal: %v", err)
	}
	fmt.Printf("Renewal %s started for connection %d\n", status.ID, connectionID)

	if !wait {
		return
	}

	for {
		time.Sleep(2 * time.Second)
		status, err = orch.GetRenewalStatus(ctx, status.ID)
		if err != nil {
			exitf("get renewal status: %v", err)
		}
		fmt.Printf("[%3d%%] %s: %s\n", status.Progress, status.State, status.Message)
		if model.IsTerminal(status.State) {
			break
		}
	}

	if status.State == model.StateFailed {
		fmt.Fprintf(os.Stderr, "Renewal failed: %s\n", status.Error)
		os.Exit(1)
	}
	fmt.Println("Renewal completed successfully.")
}

func runStatus(renewalID string) {
	cfg, err := config.Load()
	if err != nil {
		exitf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		exitf("%v", err)
	}
	defer closeStore()

	status, err := store.GetRenewalStatus(ctx, renewalID)
	if err != nil {
		exitf("%v", err)
	}

	fmt.Printf("Renewal %s (connection %d)\n", status.ID, status.ConnectionID)
	fmt.Printf("  State:    %s (%d%%)\n", status.State, status.Progress)
	fmt.Printf("  Message:  %s\n", status.Message)
	if status.ManualDNS != nil {
		fmt.Printf("  Manual DNS: %s\n", status.ManualDNS.Instructions)
	}
	if status.Error != "" {
		fmt.Printf("  Error:    %s\n", status.Error)
	}
	fmt.Println("  Log:")
	for _, line := range status.Logs {
		fmt.Printf("    %s\n", line)
	}
}

// openStore connects to Postgres when RENEWAL_DATABASE_URL is set, or falls
// back to an in-memory store for local experimentation without a database.
func openStore(ctx context.Context, cfg *config.Config) (configstore.ConfigStore, func(), error) {
	if cfg.DatabaseURL == "" {
		return configstore.NewMemory(), func() {}, nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to config store database: %w", err)
	}
	return configstore.NewPostgres(pool), pool.Close, nil
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

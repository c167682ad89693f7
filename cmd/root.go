package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"personal-ledger/app"
	"personal-ledger/balance"
	"personal-ledger/cache"
	"personal-ledger/config"
	"personal-ledger/events"
	"personal-ledger/recurring"
	"personal-ledger/store"
	"personal-ledger/uow"
)

var (
	// Shared application services, built once per process.
	ledger    *app.LedgerService
	scheduler *recurring.Runner
	closers   []func() error

	storeFlag string
	dbFlag    string
	redisFlag string
	ownerFlag string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "A CLI for a personal finance ledger",
	Long: `ledger records accounts, expenses, incomes and transfers for one owner at a
time and keeps every account balance consistent with the movements booked
against it.

Storage defaults to a local SQLite file; set LEDGER_REDIS_URL (or --redis) to
cache list and detail reads in Redis.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	shutdown()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeFlag, "store", "", "Storage backend: sqlite or memory (overrides LEDGER_STORE)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "SQLite database path (overrides LEDGER_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&redisFlag, "redis", "", "Redis URL for the read cache (overrides LEDGER_REDIS_URL)")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "default", "Owner (user) the command acts for")

	rootCmd.AddCommand(replCmd)
}

// setup wires configuration, storage, cache and the ledger service. The REPL
// re-enters it for every line, so it only builds once.
func setup(cmd *cobra.Command, args []string) error {
	if ledger != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	if storeFlag != "" {
		cfg.Store = storeFlag
	}
	if dbFlag != "" {
		cfg.DBPath = dbFlag
	}
	if redisFlag != "" {
		cfg.RedisURL = redisFlag
	}

	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(cfg.LogLevel)

	var st store.Store
	switch cfg.Store {
	case config.StoreMemory:
		st = store.NewInMemoryStore()
	case config.StoreSQLite:
		gs, err := store.OpenSQLite(cfg.DBPath)
		if err != nil {
			return err
		}
		closers = append(closers, gs.Close)
		st = gs
	default:
		return fmt.Errorf("unknown store %q (want sqlite or memory)", cfg.Store)
	}

	var backend cache.Backend
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		rb, err := cache.Dial(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.WithError(err).Warn("redis unavailable, running without read cache")
		} else {
			closers = append(closers, rb.Close)
			backend = rb
		}
	}

	units := uow.NewFactory(st, uow.Options{Dispatch: cfg.Dispatch, MaxPasses: cfg.MaxPasses}, balanceBinder(cfg.MissingPolicy))
	ledger = app.NewLedgerService(units, cache.NewRegistry(backend, cfg.Cache), app.Options{CommitRetries: cfg.CommitRetries})
	scheduler = recurring.NewRunner(ledger)
	log.WithFields(log.Fields{"store": cfg.Store, "cache": backend != nil, "policy": cfg.MissingPolicy}).Debug("ledger ready")
	return nil
}

func balanceBinder(policy balance.MissingAccountPolicy) uow.Binder {
	return func(bus *events.Bus, u *uow.UnitOfWork) {
		balance.NewHandlers(u, policy).Register(bus)
	}
}

func shutdown() {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			log.WithError(err).Warn("close failed")
		}
	}
	closers = nil
}

func printError(err error) {
	switch {
	case app.IsNotFound(err):
		fmt.Fprintf(os.Stderr, "Not found: %v\n", err)
	case app.IsValidation(err):
		fmt.Fprintf(os.Stderr, "Rejected: %v\n", err)
	case errors.Is(err, store.ErrOptimisticLock):
		fmt.Fprintf(os.Stderr, "Conflict: %v (try again)\n", err)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
}

// replCmd represents the repl command
var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive REPL session",
	Long: `Starts an interactive Read-Eval-Print Loop session. Storage and cache
connections stay open between lines, so in-memory data and schedules live for
the whole session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Starting ledger REPL. Type 'exit' or 'quit' to exit.")
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			input := strings.TrimSpace(scanner.Text())
			if input == "exit" || input == "quit" {
				break
			}
			if input == "" {
				continue
			}
			fields := strings.Fields(input)
			if fields[0] == "repl" {
				fmt.Println("Already in a REPL session.")
				continue
			}
			rootCmd.SetArgs(fields)
			if err := rootCmd.ExecuteContext(cmd.Context()); err != nil {
				printError(err)
			}
			resetFlags(rootCmd)
		}
		fmt.Println("Exiting REPL.")
		return scanner.Err()
	},
}

// resetFlags puts every local flag back to its default so values from one
// REPL line do not leak into the next.
func resetFlags(c *cobra.Command) {
	c.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dkrasnove/lockbox/internal/biometric"
	"github.com/dkrasnove/lockbox/internal/config"
	"github.com/dkrasnove/lockbox/internal/crypto"
	"github.com/dkrasnove/lockbox/internal/events"
	"github.com/dkrasnove/lockbox/internal/guard"
	"github.com/dkrasnove/lockbox/internal/keycache"
	"github.com/dkrasnove/lockbox/internal/services/session"
	"github.com/dkrasnove/lockbox/internal/services/vault"
	"github.com/dkrasnove/lockbox/internal/store"
)

var (
	cfgPath    string
	jsonOutput bool

	cfg *config.Config
	app *appContext
)

// appContext wires the core components for one command invocation.
// Each invocation is its own session: the key cache starts empty,
// fills on login, and is wiped before exit.
type appContext struct {
	logger  *events.Logger
	store   store.Store
	cache   *keycache.Cache
	session *session.Service
	vault   *vault.Repository
	gate    *biometric.Gate

	closer func() error
}

var rootCmd = &cobra.Command{
	Use:   "lockbox",
	Short: "Local offline secret vault",
	Long: `Lockbox keeps named secrets in an encrypted local vault
unlocked by a master password. Every command runs as its own session:
the derived key lives only in process memory and is wiped on exit.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.NewLoader(cfgPath).Load()
		if err != nil {
			return err
		}

		app, err = buildApp(cfg)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			app.cache.Clear()
			if app.closer != nil {
				_ = app.closer()
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "",
		"Config file path (default: lockbox.json in standard locations)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Emit machine-readable JSON output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// buildApp constructs the component graph from config.
func buildApp(cfg *config.Config) (*appContext, error) {
	logger, err := events.NewLogger(&cfg.Log)
	if err != nil {
		return nil, err
	}

	var (
		st     store.Store
		closer func() error
	)
	switch cfg.Storage.Backend {
	case "sqlite":
		sqlStore, err := store.NewSQLiteStore(cfg.DatabasePath(), logger)
		if err != nil {
			return nil, err
		}
		st = sqlStore
		closer = sqlStore.Close
	default:
		fileStore, err := store.NewFileStore(cfg.Storage.DataDir, logger)
		if err != nil {
			return nil, err
		}
		st = fileStore
	}

	cache := keycache.New()
	provider := crypto.NewProvider(cfg.Crypto.Iterations)
	loginGuard := guard.New(st, cfg.Lockout, logger)

	// No OS biometric integration is wired yet; the gate reports
	// hardware absence and password login remains the path in.
	gate := biometric.NewGate(
		biometric.UnsupportedPlatform{},
		biometric.UnsupportedGatedStore{},
		st, cache, cfg.Biometric, logger,
	)

	sess := session.NewService(st, provider, cache, loginGuard, gate, cfg.Crypto, logger)
	repo := vault.NewRepository(st, provider, cache, cfg.Vault, logger)

	return &appContext{
		logger:  logger,
		store:   st,
		cache:   cache,
		session: sess,
		vault:   repo,
		gate:    gate,
		closer:  closer,
	}, nil
}

// unlock prompts for the master password and opens a session.
func unlock() error {
	password, err := promptPassword("Master password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	return app.session.Login(password)
}

// promptPassword reads a password without echo.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	data, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func printError(format string, args ...interface{}) {
	if jsonOutput {
		msg, _ := json.Marshal(map[string]string{"error": fmt.Sprintf(format, args...)})
		fmt.Println(string(msg))
		return
	}
	color.New(color.FgRed).Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

func printSuccess(format string, args ...interface{}) {
	if jsonOutput {
		return
	}
	color.New(color.FgGreen).Printf(format+"\n", args...)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

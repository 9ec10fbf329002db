package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new vault",
	Long:  `Init creates the master credential record and an empty vault.`,
	RunE:  runInit,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Wipe the vault and all credentials",
	Long: `Reset deletes the credential record, every stored item, the login
attempt history, and any biometric enrollment. This cannot be undone.`,
	RunE: runReset,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade stored items to the authenticated format",
	RunE:  runMigrate,
}

var (
	resetForce        bool
	migrateIterations uint32
)

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(migrateCmd)

	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false,
		"Skip the confirmation prompt")
	migrateCmd.Flags().Uint32Var(&migrateIterations, "iterations", 0,
		"Also re-derive the credential record under a new PBKDF2 iteration count")
}

func runInit(cmd *cobra.Command, args []string) error {
	if ok, err := app.session.IsSetUp(); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("vault already initialized; use reset to start over")
	}

	password, err := promptPassword("Choose master password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	confirm, err := promptPassword("Confirm master password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	if err := app.session.Setup(password); err != nil {
		return err
	}

	printSuccess("Vault initialized")
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetForce {
		fmt.Fprint(os.Stderr, "This permanently deletes all stored secrets. Type 'yes' to continue: ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.TrimSpace(answer) != "yes" {
			return fmt.Errorf("reset aborted")
		}
	}

	if err := app.session.ResetApp(); err != nil {
		return err
	}

	printSuccess("Vault reset")
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if migrateIterations > 0 {
		password, err := promptPassword("Master password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		err = app.session.MigrateIterations(password, migrateIterations, app.vault.Reencrypt)
		if err != nil {
			return err
		}

		printSuccess("Credential record migrated to %d iterations", migrateIterations)
		return nil
	}

	if err := unlock(); err != nil {
		return err
	}

	report, err := app.vault.MigrateToSecureFormat()
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(report)
	}

	printSuccess("Migration complete: %d upgraded, %d flagged unrecoverable, %d already current",
		report.Upgraded, report.Flagged, report.Current)
	if report.Flagged > 0 {
		printError("%d item(s) predate the authenticated format and must be deleted and recreated", report.Flagged)
	}
	return nil
}

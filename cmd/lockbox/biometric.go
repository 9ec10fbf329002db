package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var biometricCmd = &cobra.Command{
	Use:   "biometric",
	Short: "Manage biometric unlock",
}

var biometricEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Stash the session key behind the platform biometric gate",
	RunE:  runBiometricEnable,
}

var biometricDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Remove the gated key and biometric config",
	RunE:  runBiometricDisable,
}

var biometricStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether biometric unlock is enabled",
	RunE:  runBiometricStatus,
}

func init() {
	rootCmd.AddCommand(biometricCmd)
	biometricCmd.AddCommand(biometricEnableCmd)
	biometricCmd.AddCommand(biometricDisableCmd)
	biometricCmd.AddCommand(biometricStatusCmd)
}

func runBiometricEnable(cmd *cobra.Command, args []string) error {
	// Enabling requires an already-open password session.
	if err := unlock(); err != nil {
		return err
	}

	if err := app.gate.Enable(context.Background()); err != nil {
		return err
	}

	printSuccess("Biometric unlock enabled")
	return nil
}

func runBiometricDisable(cmd *cobra.Command, args []string) error {
	if err := app.gate.Disable(); err != nil {
		return err
	}

	printSuccess("Biometric unlock disabled")
	return nil
}

func runBiometricStatus(cmd *cobra.Command, args []string) error {
	enabled, err := app.gate.Enabled()
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(map[string]bool{"enabled": enabled})
	}

	if enabled {
		fmt.Println("Biometric unlock: enabled")
	} else {
		fmt.Println("Biometric unlock: disabled")
	}
	return nil
}

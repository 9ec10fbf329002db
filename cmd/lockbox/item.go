package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dkrasnove/lockbox/internal/models"
	"github.com/dkrasnove/lockbox/internal/services/vault"
)

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Store a new secret",
	Example: `  lockbox add github --type password
  echo -n "hunter2" | lockbox add github --stdin`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Decrypt and print a secret",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored items (metadata only)",
	RunE:  runList,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find items by name",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete an item",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

var (
	addType  string
	addStdin bool
)

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(rmCmd)

	addCmd.Flags().StringVarP(&addType, "type", "t", "password",
		"Item type: password, note, card, identity, other")
	addCmd.Flags().BoolVar(&addStdin, "stdin", false,
		"Read the secret content from stdin instead of prompting")
}

func runAdd(cmd *cobra.Command, args []string) error {
	if err := unlock(); err != nil {
		return err
	}

	var content string
	if addStdin {
		data, err := readAllStdin()
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		content = data
	} else {
		secret, err := promptPassword("Secret content: ")
		if err != nil {
			return fmt.Errorf("read content: %w", err)
		}
		content = secret
	}

	info, err := app.vault.Create(args[0], content, models.ParseItemType(addType))
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(info)
	}

	printSuccess("Stored %q as %s", info.Name, info.ID)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	if err := unlock(); err != nil {
		return err
	}

	content, err := app.vault.Read(args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(map[string]string{"id": args[0], "content": content})
	}

	fmt.Println(content)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	if err := unlock(); err != nil {
		return err
	}

	infos, err := app.vault.List()
	if err != nil {
		return err
	}

	return renderItems(infos)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := unlock(); err != nil {
		return err
	}

	infos, err := app.vault.Search(args[0])
	if err != nil {
		return err
	}

	return renderItems(infos)
}

func runRm(cmd *cobra.Command, args []string) error {
	if err := unlock(); err != nil {
		return err
	}

	if err := app.vault.Delete(args[0]); err != nil {
		return err
	}

	printSuccess("Deleted %s", args[0])
	return nil
}

func renderItems(infos []vault.ItemInfo) error {
	if jsonOutput {
		return printJSON(infos)
	}

	if len(infos) == 0 {
		fmt.Println("No items")
		return nil
	}

	bold := color.New(color.Bold)
	bold.Printf("%-36s  %-10s  %-24s  %s\n", "ID", "TYPE", "UPDATED", "NAME")
	for _, info := range infos {
		name := info.Name
		if info.NeedsMigration {
			name += color.YellowString(" (migration needed)")
		}
		fmt.Printf("%-36s  %-10s  %-24s  %s\n",
			info.ID, info.Type, info.UpdatedAt.Format("2006-01-02 15:04:05"), name)
	}

	return nil
}

func readAllStdin() (string, error) {
	var sb strings.Builder
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	first := true
	for scanner.Scan() {
		if !first {
			sb.WriteString("\n")
		}
		first = false
		sb.WriteString(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

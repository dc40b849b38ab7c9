// Package main provides the chatlock CLI application.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/nexgram/chatlock/internal/config"
	"github.com/nexgram/chatlock/pkg/convsvc"
	"github.com/nexgram/chatlock/pkg/lockgate"
	"github.com/nexgram/chatlock/pkg/lockstore"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	dataDir string
	store   *lockstore.Store
)

var rootCmd = &cobra.Command{
	Use:   "chatlock",
	Short: "chatlock gates private conversations behind a device-local passcode",
	Long: `chatlock protects selected one-to-one conversations with a 4-digit passcode.

Three wrong guesses in one day permanently erase the conversation's message
history from the server. The passcode and lock state live only on this device.`,
	// PersistentPreRunE opens the local store before any subcommand runs.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if dataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get user home directory: %w", err)
			}
			dataDir = filepath.Join(home, ".chatlock")
		}
		store = lockstore.New(dataDir)
		if err := store.Open(); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
	},
}

// Lock command flags
var (
	lockList  bool
	lockClear bool
)

// Audit list flags
var auditLimit int

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default ~/.chatlock)")

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(passcodeCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(auditCmd)

	passcodeCmd.AddCommand(passcodeChangeCmd)

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)

	setupCmd.Flags().String("service-url", "", "Conversation service base URL")
	setupCmd.Flags().String("user-id", "", "Your user id at the conversation service")
	setupCmd.Flags().String("api-key", "", "API key for the conversation service")

	lockCmd.Flags().BoolVar(&lockList, "list", false, "Show the currently locked conversations")
	lockCmd.Flags().BoolVar(&lockClear, "clear", false, "Remove the lock from all conversations")

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
}

// readPasscode reads a passcode from the terminal without echo.
func readPasscode(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read passcode: %w", err)
	}
	return string(b), nil
}

// newConversationClient builds the remote client from loaded config.
func newConversationClient(cfg *config.Config) *convsvc.Client {
	return convsvc.NewClient(cfg.ServiceBaseURL, cfg.APIKey, cfg.RequestTimeout())
}

// newGate wires the gate against the configured conversation service.
func newGate() (*lockgate.Gate, *config.Config, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, nil, err
	}
	gate := lockgate.New(store, newConversationClient(cfg), store.Audit(), cfg.UserID)
	return gate, cfg, nil
}

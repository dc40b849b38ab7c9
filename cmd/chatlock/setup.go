package main

import (
	"errors"
	"fmt"

	"github.com/nexgram/chatlock/internal/config"
	"github.com/nexgram/chatlock/pkg/lockstore"
	"github.com/nexgram/chatlock/pkg/security"

	"github.com/spf13/cobra"
)

// setupCmd enables the chat lock: it stores the passcode and, when service
// flags are given, writes the config file for the conversation service.
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Enable the chat lock with a new 4-digit passcode",
	Long: `Enable the chat lock on this device.

You will be prompted for a 4-digit passcode. The passcode is stored as a
salted one-way hash and never leaves the device. After setup, use
'chatlock lock' to choose which conversations require it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		serviceURL, _ := cmd.Flags().GetString("service-url")
		userID, _ := cmd.Flags().GetString("user-id")
		apiKey, _ := cmd.Flags().GetString("api-key")

		passcode, err := readPasscode("Enter new 4-digit passcode: ")
		if err != nil {
			return err
		}
		confirm, err := readPasscode("Confirm passcode: ")
		if err != nil {
			return err
		}

		if err := store.Enable(passcode, confirm); err != nil {
			switch {
			case errors.Is(err, lockstore.ErrInvalidPasscode):
				return errors.New("passcode must be exactly 4 digits")
			case errors.Is(err, lockstore.ErrConfirmMismatch):
				return errors.New("passcodes do not match")
			case errors.Is(err, lockstore.ErrAlreadyConfigured):
				return errors.New("a passcode is already configured; use 'chatlock passcode change'")
			}
			return err
		}

		strength, warnings := security.CheckPasscode(passcode)
		fmt.Printf("Passcode strength: %s\n", strength)
		for _, warning := range warnings {
			fmt.Printf("Warning: %s\n", warning)
		}

		if serviceURL != "" || userID != "" || apiKey != "" {
			cfg := &config.Config{
				Version:        1,
				ServiceBaseURL: serviceURL,
				APIKey:         apiKey,
				UserID:         userID,
			}
			if err := config.Write(dataDir, cfg); err != nil {
				return err
			}
			fmt.Println("Config written.")
		}

		fmt.Println("Chat lock enabled.")
		fmt.Println("Lock conversations with: chatlock lock <partner-id>")
		return nil
	},
}

// passcodeCmd is the parent command for passcode operations.
var passcodeCmd = &cobra.Command{
	Use:   "passcode",
	Short: "Passcode operations",
}

// passcodeChangeCmd changes the passcode.
var passcodeChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Change the passcode",
	RunE: func(cmd *cobra.Command, args []string) error {
		current, err := readPasscode("Enter current passcode: ")
		if err != nil {
			return err
		}
		newPasscode, err := readPasscode("Enter new 4-digit passcode: ")
		if err != nil {
			return err
		}
		confirm, err := readPasscode("Confirm new passcode: ")
		if err != nil {
			return err
		}

		if err := store.Change(current, newPasscode, confirm); err != nil {
			switch {
			case errors.Is(err, lockstore.ErrWrongPasscode):
				return errors.New("current passcode is incorrect")
			case errors.Is(err, lockstore.ErrInvalidPasscode):
				return errors.New("passcode must be exactly 4 digits")
			case errors.Is(err, lockstore.ErrConfirmMismatch):
				return errors.New("passcodes do not match")
			case errors.Is(err, lockstore.ErrNotConfigured):
				return errors.New("no passcode configured; run 'chatlock setup' first")
			}
			return err
		}

		if strength, warnings := security.CheckPasscode(newPasscode); len(warnings) > 0 {
			fmt.Printf("Passcode strength: %s\n", strength)
			for _, warning := range warnings {
				fmt.Printf("Warning: %s\n", warning)
			}
		}

		fmt.Println("Passcode changed.")
		return nil
	},
}

// disableCmd turns the feature off and clears all lock state.
var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable the chat lock and clear all lock state",
	Long: `Disable the chat lock.

This removes the passcode, unlocks every conversation and clears all
attempt records. Conversations themselves are not touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		passcode, err := readPasscode("Enter passcode to disable the lock: ")
		if err != nil {
			return err
		}
		ok, err := store.Verify(passcode)
		if err != nil {
			if errors.Is(err, lockstore.ErrNotConfigured) {
				return errors.New("chat lock is not enabled")
			}
			return err
		}
		if !ok {
			return errors.New("passcode is incorrect")
		}

		if err := store.Disable(); err != nil {
			return err
		}
		fmt.Println("Chat lock disabled.")
		return nil
	},
}

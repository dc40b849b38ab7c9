package main

import (
	"context"
	"fmt"

	"github.com/nexgram/chatlock/pkg/lockgate"

	"github.com/spf13/cobra"
)

// openCmd runs the passcode challenge for a conversation. In the messaging
// client this flow sits behind the conversation view; here it is the same
// state machine driven from the terminal.
var openCmd = &cobra.Command{
	Use:   "open <partner-id>",
	Short: "Open a conversation, passing the passcode challenge if it is locked",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conversationID := args[0]
		ctx := context.Background()

		gate, _, err := newGate()
		if err != nil {
			return err
		}

		challenge, err := gate.Open(ctx, conversationID)
		if err != nil {
			if challenge != nil && challenge.State() == lockgate.StateExhausted {
				fmt.Println("This conversation exhausted its attempts but could not be erased.")
				fmt.Println("Check your connection and open it again to retry.")
			}
			return err
		}
		if challenge == nil {
			fmt.Printf("Conversation %s is not locked. Opening.\n", conversationID)
			return nil
		}
		if challenge.State() == lockgate.StateExhausted {
			fmt.Println("This conversation was permanently deleted for security reasons.")
			return nil
		}

		for {
			guess, err := readPasscode("Enter passcode (leave empty to cancel): ")
			if err != nil {
				return err
			}

			result, err := challenge.Submit(ctx, guess)
			if err != nil {
				if result.State == lockgate.StateExhausted {
					fmt.Println("Attempts exhausted, but the conversation could not be erased.")
					fmt.Println("Check your connection and open it again to retry.")
				}
				return err
			}

			switch result.State {
			case lockgate.StateGranted:
				fmt.Printf("Unlocked. Opening conversation %s.\n", conversationID)
				return nil
			case lockgate.StateDenied:
				fmt.Printf("Wrong passcode. %d attempt(s) remaining today.\n", result.RemainingAttempts)
			case lockgate.StateExhausted:
				fmt.Printf("Too many failed attempts. %d message(s) were permanently deleted for security reasons.\n",
					result.DeletedCount)
				return nil
			case lockgate.StateChallenging:
				// Empty submission; nothing recorded
				fmt.Println("Cancelled.")
				return nil
			}
		}
	},
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// statusCmd summarizes the lock state on this device.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the chat lock status",
	RunE: func(cmd *cobra.Command, args []string) error {
		enabled, err := store.Enabled()
		if err != nil {
			return err
		}
		if !enabled {
			fmt.Println("Chat lock: disabled")
			return nil
		}

		fmt.Println("Chat lock: enabled")

		ids, err := store.LockedConversations()
		if err != nil {
			return err
		}
		fmt.Printf("Locked conversations: %d\n", len(ids))
		for _, id := range ids {
			count, err := store.FailureCount(id)
			if err != nil {
				return err
			}
			if count > 0 {
				fmt.Printf("  %s (%d failed attempt(s) today)\n", id, count)
			} else {
				fmt.Printf("  %s\n", id)
			}
		}

		pruned, err := store.PruneStaleAttempts()
		if err != nil {
			return err
		}
		if pruned > 0 {
			fmt.Printf("Pruned %d stale attempt record(s).\n", pruned)
		}
		return nil
	},
}

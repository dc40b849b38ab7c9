package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nexgram/chatlock/internal/cli"
	"github.com/nexgram/chatlock/pkg/lockstore"

	"github.com/spf13/cobra"
)

// lockCmd chooses which conversations require the passcode. Patterns are
// matched against the user's recent partners at the conversation service,
// and the locked set is replaced wholesale.
var lockCmd = &cobra.Command{
	Use:   "lock [pattern...]",
	Short: "Choose which conversations are locked",
	Long: `Choose which conversations require the passcode.

Patterns are matched against your recent conversation partners, for example:

  chatlock lock alice bob       # lock exactly these two
  chatlock lock 'team-*'        # lock every partner id starting with team-
  chatlock lock --list          # show what is currently locked
  chatlock lock --clear         # unlock everything

The given patterns replace the previous locked set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if lockList {
			ids, err := store.LockedConversations()
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("No conversations are locked.")
				return nil
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		}

		if lockClear {
			if err := store.SetLockedConversations(nil); err != nil {
				return err
			}
			fmt.Println("All conversations unlocked.")
			return nil
		}

		if len(args) == 0 {
			return errors.New("specify at least one partner id or pattern, or use --list / --clear")
		}

		_, cfg, err := newGate()
		if err != nil {
			return err
		}

		client := newConversationClient(cfg)
		partners, err := client.ListRecentPartners(context.Background(), cfg.UserID)
		if err != nil {
			return fmt.Errorf("failed to list recent partners: %w", err)
		}

		partnerIDs := make([]string, 0, len(partners))
		names := make(map[string]string, len(partners))
		for _, p := range partners {
			partnerIDs = append(partnerIDs, p.ID)
			names[p.ID] = p.DisplayName
		}

		ids, err := cli.ExpandPatterns(args, partnerIDs)
		if err != nil {
			return err
		}

		if err := store.SetLockedConversations(ids); err != nil {
			if errors.Is(err, lockstore.ErrNotConfigured) {
				return errors.New("no passcode configured; run 'chatlock setup' first")
			}
			return err
		}

		fmt.Printf("Locked %d conversation(s):\n", len(ids))
		for _, id := range ids {
			if name := names[id]; name != "" {
				fmt.Printf("  %s (%s)\n", id, name)
			} else {
				fmt.Printf("  %s\n", id)
			}
		}
		return nil
	},
}

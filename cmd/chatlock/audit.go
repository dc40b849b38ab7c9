package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// auditCmd is the parent command for audit log operations.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
}

// auditListCmd shows recent audit events.
var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show recent audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := store.Audit().ListEvents(auditLimit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No audit events recorded.")
			return nil
		}
		for _, e := range events {
			line := fmt.Sprintf("%s  %-20s %s", e.Timestamp, e.Operation, e.Result)
			if e.Error != nil && e.Error.Message != "" {
				line += "  (" + e.Error.Message + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

// auditVerifyCmd checks the HMAC chain for tampering.
var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity of the audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := store.Audit().Verify()
		if err != nil {
			return err
		}
		fmt.Printf("Records: %d\n", result.RecordsTotal)
		if result.Valid {
			fmt.Println("Audit log chain is intact.")
			return nil
		}
		fmt.Println("Audit log chain is BROKEN:")
		for _, msg := range result.Errors {
			fmt.Println("  " + msg)
		}
		return fmt.Errorf("audit log verification failed")
	},
}

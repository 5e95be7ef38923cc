package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"oscan-intake/internal/mail"
	"oscan-intake/pkg"
)

func newTestEmailCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "test-email",
		Short: "Send a sample welcome email synchronously to check mail settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if to == "" {
				return errors.New("--to is required")
			}
			tpl, err := mail.NewTemplates(cfg.PublicURL)
			if err != nil {
				return err
			}
			msg, err := tpl.Signup(pkg.User{Username: "Test User", Email: to, Role: pkg.UserRolePatient}, time.Now())
			if err != nil {
				return err
			}
			msg.ID = uuid.NewString()
			msg.Subject = "[TEST] " + msg.Subject

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := newTransport(cfg).Send(ctx, msg, nil); err != nil {
				return fmt.Errorf("send test email: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "test email sent to %s\n", to)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	return cmd
}

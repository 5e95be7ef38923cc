package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"oscan-intake/internal/db"
	"oscan-intake/internal/events"
)

func newEmitCmd() *cobra.Command {
	var (
		ev  events.Event
		via string
	)
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Publish a notification event on postgres or NATS",
		Example: `  oscan emit --kind user.login --user-id 7
  oscan emit --kind case.submitted --record-id 12 --pdf static/reports/r.pdf --via nats`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ev.Kind == "" {
				return errors.New("--kind is required")
			}
			switch strings.ToLower(via) {
			case "pg", "postgres":
				conn, err := openDB(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				if conn == nil {
					return errors.New("DATABASE_URL must be set")
				}
				defer conn.Close()
				payload, err := json.Marshal(ev)
				if err != nil {
					return err
				}
				n := db.NewNotifier(conn, cfg.DatabaseURL, cfg.NotifyChannel)
				if err := n.Notify(cmd.Context(), string(payload)); err != nil {
					return err
				}
			case "nats":
				if cfg.NATSURL == "" {
					return errors.New("NATS_URL must be set")
				}
				subject, err := events.SubjectFor(cfg.NATSSubject, ev.Kind)
				if err != nil {
					return err
				}
				src, err := events.ConnectNATS(cfg.NATSURL, cfg.NATSSubject)
				if err != nil {
					return err
				}
				defer src.Close()
				if err := src.Publish(subject, ev); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown --via %q (pg or nats)", via)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "emitted %s\n", ev.Kind)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar((*string)(&ev.Kind), "kind", "", "event kind: user.login, user.signup, case.submitted, appointment.booked")
	f.Int64Var(&ev.UserID, "user-id", 0, "account id for user.* events")
	f.Int64Var(&ev.RecordID, "record-id", 0, "patient record id for case.submitted")
	f.Int64Var(&ev.AppointmentID, "appointment-id", 0, "appointment id for appointment.booked")
	f.StringVar(&ev.PDFPath, "pdf", "", "report path attached to the scan result email")
	f.StringVar(&via, "via", "pg", "transport: pg or nats")
	return cmd
}

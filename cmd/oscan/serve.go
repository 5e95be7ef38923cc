package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"oscan-intake/internal/core"
	"oscan-intake/internal/db"
	"oscan-intake/internal/events"
	httpserver "oscan-intake/internal/http"
	"oscan-intake/internal/logging"
	"oscan-intake/internal/mail"
	"oscan-intake/internal/session"
)

const shutdownTimeout = 10 * time.Second

// directory is everything the server and the event handler look up.
type directory interface {
	core.Directory
	events.Records
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the intake API and the notification listeners",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	log := logging.NewLogger("serve")
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}

	var (
		dir      directory
		sessions core.SessionStore
		bg       sync.WaitGroup
	)
	if conn != nil {
		defer conn.Close()
		if err := db.Migrate(ctx, conn); err != nil {
			return err
		}
		dir = db.NewRepository(conn)
		pgSessions := db.NewSessionStore(conn, cfg.SessionTTL)
		sessions = pgSessions
		bg.Add(1)
		go func() {
			defer bg.Done()
			sweepLoop(ctx, pgSessions)
		}()
		log.Info("using postgres for accounts and sessions")
	} else {
		dir = core.NewStaticDirectory(cfg.Users)
		mem := session.NewMemoryStore(cfg.SessionTTL)
		sessions = mem
		bg.Add(1)
		go func() {
			defer bg.Done()
			mem.RunJanitor(ctx, 10*time.Minute)
		}()
		log.WithField("users", len(cfg.Users)).Warn("DATABASE_URL not set, using static users and in-memory sessions")
	}

	gateway, err := newGateway(ctx, cfg)
	if err != nil {
		return err
	}
	if !gateway.Configured() {
		log.Warn("no model credentials configured, intake will answer with a fallback")
	} else {
		log.WithField("models", gateway.Models()).Info("model gateway ready")
	}

	tpl, err := mail.NewTemplates(cfg.PublicURL)
	if err != nil {
		return err
	}
	dispatcher := mail.NewDispatcher(newTransport(cfg), cfg.MailWorkers, cfg.MailQueueSize)
	handler := events.NewHandler(dir, mail.NewMailer(tpl, dispatcher))

	if conn != nil && cfg.NotifyChannel != "" {
		notifier := db.NewNotifier(conn, cfg.DatabaseURL, cfg.NotifyChannel)
		bg.Add(1)
		go func() {
			defer bg.Done()
			err := notifier.Listen(ctx, func(ctx context.Context, payload string) {
				handler.HandlePayload(ctx, []byte(payload))
			})
			if err != nil {
				log.WithError(err).Error("postgres listener stopped")
			}
		}()
	}
	if cfg.NATSURL != "" {
		src, err := events.ConnectNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return err
		}
		defer src.Close()
		bg.Add(1)
		go func() {
			defer bg.Done()
			if err := src.Run(ctx, handler.HandlePayload); err != nil {
				log.WithError(err).Error("nats source stopped")
			}
		}()
	}

	intake := core.NewIntakeService(gateway, sessions, dir)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpserver.NewServer(intake, dir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	stop()
	bg.Wait()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("pending mail dropped at shutdown")
	}
	return runErr
}

func sweepLoop(ctx context.Context, store *db.SessionStore) {
	log := logging.NewLogger("session")
	t := time.NewTicker(10 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := store.Sweep(ctx)
			if err != nil {
				log.WithError(err).Warn("session sweep failed")
				continue
			}
			if n > 0 {
				log.WithField("removed", n).Debug("expired sessions swept")
			}
		}
	}
}

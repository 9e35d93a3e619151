package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/mattn/go-sqlite3"

	"github.com/thomasfsr/gymlog/src/bot"
	"github.com/thomasfsr/gymlog/src/config"
	"github.com/thomasfsr/gymlog/src/httpapi"
	"github.com/thomasfsr/gymlog/src/whatsapp"
)

const (
	transportWhatsApp = "whatsapp"
	transportHTTP     = "http"
)

func newServeCmd(a *app) *cobra.Command {
	var transport string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		Long: "Run the bot on WhatsApp, or on the JSON event API with --transport http.\n" +
			"The health endpoint is served in both modes.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if transport != transportWhatsApp && transport != transportHTTP {
				return fmt.Errorf("unknown transport %q", transport)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg, a.log, transport)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", transportWhatsApp, "whatsapp|http")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger, transport string) error {
	db, err := openGateway(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, sessionCheck, closeSessions, err := openSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	b := newBot(cfg, db, sessions, log)

	deps := map[string]httpapi.Dependency{"database": db}
	if sessionCheck != nil {
		deps["sessions"] = sessionCheck
	}
	var events httpapi.Handler
	if transport == transportHTTP {
		events = b
	}
	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpapi.NewRouter(events, deps, httpapi.Options{
			Token:  cfg.HTTP.Token,
			Logger: log.With().Str("component", "http").Logger(),
		}),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("transport", transport).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if transport == transportWhatsApp {
		client, closeStore, err := connectWhatsApp(ctx, cfg, log, b)
		if err != nil {
			_ = srv.Close()
			return err
		}
		defer closeStore()
		defer client.Disconnect()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// connectWhatsApp opens the device store, logs in (printing a QR code on the
// first run) and routes incoming messages to the bot.
func connectWhatsApp(ctx context.Context, cfg *config.Config, log zerolog.Logger, b *bot.Bot) (*whatsmeow.Client, func(), error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", cfg.WhatsApp.DBPath)
	container, err := sqlstore.New(ctx, "sqlite3", dsn, waLog.Zerolog(log.With().Str("component", "wa-store").Logger()))
	if err != nil {
		return nil, nil, fmt.Errorf("open whatsapp store: %w", err)
	}
	closeStore := func() { _ = container.Close() }

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("load whatsapp device: %w", err)
	}
	client := whatsmeow.NewClient(deviceStore, waLog.Zerolog(log.With().Str("component", "wa-client").Logger()))
	adapter := whatsapp.New(client, b, log.With().Str("component", "whatsapp").Logger())
	client.AddEventHandler(adapter.EventHandler)

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			closeStore()
			return nil, nil, fmt.Errorf("whatsapp qr channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			closeStore()
			return nil, nil, fmt.Errorf("whatsapp connect: %w", err)
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				fmt.Println("QR code:", evt.Code)
			} else {
				log.Info().Str("event", evt.Event).Msg("whatsapp login event")
			}
		}
		return client, closeStore, nil
	}

	if err := client.Connect(); err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("whatsapp connect: %w", err)
	}
	return client, closeStore, nil
}

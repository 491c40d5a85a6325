package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tradewell/backoffice-session/broadcast"
	"github.com/tradewell/backoffice-session/identity"
	"github.com/tradewell/backoffice-session/internal/config"
	"github.com/tradewell/backoffice-session/session"
	"github.com/tradewell/backoffice-session/storage"
	"github.com/tradewell/backoffice-session/token"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running session core: %s\n", err)
		os.Exit(1)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	store, err := storage.NewFileStore(c.GetProfileDir(), log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	hub := broadcast.NewHub(broadcast.DefaultChannelName)
	defer func() { _ = hub.Close() }()

	tabID := uuid.NewString()
	announcer := broadcast.NewAnnouncer(hub, store, tabID, log)
	sessionCtx := session.NewContext(store, log)
	tracker := session.NewTracker(store, sessionCtx.IsAuthenticated, c.GetActivityThrottle(), log)
	policy := session.NewPolicy(store, c.GetMaxSessionDuration(), c.GetInactivityTimeout())

	validator, err := session.NewValidator(
		session.Deps{
			Store:     store,
			Channel:   hub,
			Announcer: announcer,
			Tokens:    token.NewValidator(store, log),
			Policy:    policy,
			Context:   sessionCtx,
			Tracker:   tracker,
			Navigator: consoleNavigator{log: log},
			Notifier:  consoleNotifier{log: log},
		},
		session.Settings{
			LoginRoute:           c.GetLoginRoute(),
			ShowExpirationNotice: c.GetShowExpirationNotice(),
			RestoreAnnounceDelay: c.GetRestoreAnnounceDelay(),
			RevalidateInterval:   c.GetRevalidateInterval(),
		},
		tabID,
		log,
	)
	if err != nil {
		return err
	}

	httpClient := &http.Client{
		Transport: identity.NewTransport(nil, store, validator.AutoLogout, log),
	}
	identityClient := identity.NewClient(c, store, sessionCtx, announcer, log, identity.WithHTTPClient(httpClient))

	validator.Start()
	defer validator.Stop()

	// With credentials in the environment and no live session, log in
	// on startup. Otherwise the validator restores whatever the
	// profile directory already holds.
	email := config.GetEnv("LOGIN_EMAIL", "")
	password := config.GetEnv("LOGIN_PASSWORD", "")
	if email != "" && password != "" && !sessionCtx.IsAuthenticated() {
		if err := identityClient.Login(context.Background(), email, password); err != nil {
			log.Error().Err(err).Msg("startup login failed")
		} else {
			validator.SessionOpened()
		}
	}

	log.Info().
		Str("tab_id", tabID).
		Str("profile_dir", c.GetProfileDir()).
		Str("state", validator.State().String()).
		Msg("session core running")

	waitForStopSignal()
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

// consoleNavigator stands in for the UI router in the demo binary.
type consoleNavigator struct {
	log zerolog.Logger
}

func (n consoleNavigator) NavigateTo(route string) {
	n.log.Info().Str("route", route).Msg("navigating")
}

// consoleNotifier stands in for the UI toast sink.
type consoleNotifier struct {
	log zerolog.Logger
}

func (n consoleNotifier) Notify(title, description string) {
	n.log.Warn().Str("title", title).Msg(description)
}

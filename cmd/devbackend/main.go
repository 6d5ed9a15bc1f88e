package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/internal/fakebackend"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	addrVar     = "DEVBACKEND_ADDR"
	seedVar     = "DEVBACKEND_USERS"
	secretVar   = "DEVBACKEND_SECRET"
	tokenTTLVar = "DEVBACKEND_TOKEN_TTL"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	for {
		if err := run(); err != nil {
			log.Err(err).Msg("Error running dev backend")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Dev backend stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.FromEnv()
	if err != nil {
		return err
	}
	if lvl, err := zerolog.ParseLevel(c.GetLogLevel()); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	displayAppname(c.GetAppName() + " dev")

	backend, err := newBackend()
	if err != nil {
		return err
	}
	server := &http.Server{Addr: config.GetEnv(addrVar, ":8080"), Handler: backend}
	go listenAndServe(server)
	waitForStopSignal()
	return shutdown(server)
}

func newBackend() (*fakebackend.Backend, error) {
	var options []fakebackend.Option
	if secret := config.GetEnv(secretVar, ""); secret != "" {
		options = append(options, fakebackend.WithSecret([]byte(secret)))
	}
	if ttl := config.GetEnv(tokenTTLVar, ""); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, errors.Wrapf(err, "[newBackend] %s", tokenTTLVar)
		}
		options = append(options, fakebackend.WithTokenTTL(d))
	}
	backend := fakebackend.New(options...)

	seed := fakebackend.DefaultSeed
	if path := config.GetEnv(seedVar, ""); path != "" {
		s, err := fakebackend.LoadSeed(path)
		if err != nil {
			return nil, err
		}
		seed = s
	}
	if err := backend.Seed(seed); err != nil {
		return nil, err
	}
	log.Info().Int("users", len(seed)).Msg("Seeded accounts")
	return backend, nil
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("Dev backend listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

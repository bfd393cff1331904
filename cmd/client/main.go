package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	// Capture drivers register themselves on import; without these the
	// device source finds no hardware.
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"

	"github.com/dkeye/Meet/internal/adapters/ctrl"
	"github.com/dkeye/Meet/internal/adapters/rest"
	"github.com/dkeye/Meet/internal/adapters/rtc"
	signaladapter "github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app/peers"
	appsession "github.com/dkeye/Meet/internal/app/session"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/media"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	identity := domain.Identity{
		UserID:  domain.UserID(os.Getenv("MEET_USER_ID")),
		Token:   os.Getenv("MEET_TOKEN"),
		Name:    os.Getenv("MEET_NAME"),
		IsGuest: os.Getenv("MEET_TOKEN") == "",
	}
	if identity.Name == "" {
		identity.Name = "guest"
	}
	if err := identity.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid identity")
	}

	channel := signaladapter.NewChannel(signaladapter.Options{
		URL:               cfg.SignalURL,
		Identity:          identity,
		ReadLimit:         cfg.ReadLimit,
		PingPeriod:        cfg.PingPeriod,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
		ReconnectDelayMax: cfg.ReconnectDelayMax,
	})
	if err := channel.Open(ctx); err != nil {
		log.Fatal().Err(err).Msg("signaling channel open")
	}

	var source core.TrackSource
	if cfg.Capture.Synthetic {
		source = media.NewSyntheticSource()
	} else {
		source, err = media.NewDeviceSource()
		if err != nil {
			log.Fatal().Err(err).Msg("capture source init")
		}
	}

	manager := media.NewManager(source, core.VideoProfile{
		Width:  cfg.Capture.Width,
		Height: cfg.Capture.Height,
		Facing: cfg.Capture.Facing,
	})

	rtcConfig := rtc.DefaultConfig(cfg.STUNServers)
	newLink := func(sid domain.SessionID) (core.MediaLink, error) {
		return rtc.NewLink(rtcConfig, sid)
	}

	sess := appsession.New(ctx, appsession.Options{
		Channel:  channel,
		Media:    manager,
		Identity: identity,
		NewLink:  peers.LinkFactory(newLink),
		Grace:    cfg.FailureGrace,
	})

	meetings := rest.NewClient(cfg.APIURL, identity.Token, cfg.APITimeout)

	r := ctrl.SetupRouter(cfg, &ctrl.Controller{Session: sess, Meetings: meetings})
	addr := fmt.Sprintf(":%d", cfg.ControlPort)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Meet client started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("control server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	sess.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Client exited gracefully")
}

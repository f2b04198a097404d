package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Duet/internal/adapters/media"
	"github.com/dkeye/Duet/internal/adapters/rtc"
	"github.com/dkeye/Duet/internal/adapters/store/remote"
	"github.com/dkeye/Duet/internal/app/call"
	"github.com/dkeye/Duet/internal/config"
	"github.com/dkeye/Duet/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.ValidatePeer(); err != nil {
		log.Fatal().Err(err).Msg("invalid peer config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if err := run(ctx, cfg, level); err != nil {
		log.Error().Err(err).Msg("peer stopped")
		os.Exit(1)
	}
	log.Info().Msg("peer exited")
}

func run(ctx context.Context, cfg *config.Config, level zerolog.Level) error {
	store, err := remote.NewClient(cfg.Peer.StoreURL, cfg.Store.SubscriberBuffer)
	if err != nil {
		return err
	}
	api, err := rtc.NewAPI(level, nil)
	if err != nil {
		return fmt.Errorf("webrtc api: %w", err)
	}
	source := media.NewSource(media.Config{
		AudioRTPAddr: cfg.Peer.AudioRTPAddr,
		VideoRTPAddr: cfg.Peer.VideoRTPAddr,
	})
	engine := call.NewEngine(store, source, rtc.NewTransportFactory(api, rtc.Configuration(cfg.Peer.ICEServers)))
	defer engine.Hangup()

	statuses := make(chan domain.Status, 16)
	engine.OnStatusChange(func(st domain.Status) {
		select {
		case statuses <- st:
		default:
		}
	})

	if err := engine.StartMedia(ctx); err != nil {
		return err
	}

	switch cfg.Peer.Action {
	case "call":
		id, err := engine.CreateCall(ctx)
		if err != nil {
			return err
		}
		// the other participant joins with this id
		fmt.Println(id)
	case "join":
		if err := engine.JoinCall(ctx, domain.CallID(cfg.Peer.CallID)); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case st := <-statuses:
				log.Info().Str("module", "peer").Stringer("status", st).Str("call_id", engine.CallID().String()).Msg("status")
				switch {
				case st == domain.StatusHaveRemoteOffer && cfg.Peer.AutoAnswer:
					if err := engine.Answer(gctx); err != nil {
						return err
					}
				case st.Terminal():
					return fmt.Errorf("%w: %s", domain.ErrSessionFailed, st)
				}
			}
		}
	})
	return g.Wait()
}

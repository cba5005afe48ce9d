// Package app wires the sequencer, listener, status HTTP surface, and
// collaborators into a single runnable unit.
package app

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/rorelay/rorelay-server/internal/auth"
	"github.com/rorelay/rorelay-server/internal/config"
	"github.com/rorelay/rorelay-server/internal/core"
	"github.com/rorelay/rorelay-server/internal/httpapi"
	"github.com/rorelay/rorelay-server/internal/listener"
	"github.com/rorelay/rorelay-server/internal/registry"
	"github.com/rorelay/rorelay-server/internal/script"
	"github.com/rorelay/rorelay-server/internal/store/flatfile"
	"github.com/rorelay/rorelay-server/internal/store/sqlite"
)

// App wires together the sequencer, its listener, and its collaborators.
type App struct {
	cfg    *config.Config
	log    *zerolog.Logger
	seq    *core.Sequencer
	ln     *listener.Listener
	status *httpapi.Server
	store  *sqlite.Store
}

// New constructs the application from cfg. It opens the durable store
// and binds the game-port listener but does not yet accept connections
// (§4.3 "initialize... returns when ready to accept" happens in Run).
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.Server.DBFile)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_file", cfg.Server.DBFile).Msg("database initialized")

	authCache, err := flatfile.LoadAuthCache(cfg.Server.AuthFile)
	if err != nil {
		return nil, fmt.Errorf("load auth cache: %w", err)
	}
	motdLines, err := flatfile.LoadMOTD(cfg.Server.MotdFile)
	if err != nil {
		return nil, fmt.Errorf("load motd: %w", err)
	}

	authService := auth.NewService(nil, authCache)

	sequencerCfg := core.DefaultConfig()
	sequencerCfg.MaxClients = cfg.Game.MaxPlayers
	sequencerCfg.ServerName = cfg.Server.Name
	sequencerCfg.Owner = cfg.Server.Owner
	sequencerCfg.HeartbeatPeriod = cfg.HeartbeatPeriod
	sequencerCfg.MotdLines = motdLines

	registryClient := registry.New(cfg.API.Endpoint, cfg.API.Key, 0)

	seq := core.New(sequencerCfg, logger, registryClient, authService, script.NoOpScriptHost{}, st, st)

	addr := net.JoinHostPort(cfg.Server.IP, fmt.Sprintf("%d", cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	var passwordHash []byte
	if cfg.Server.Password != "" {
		hash, err := auth.HashPassword(cfg.Server.Password)
		if err != nil {
			return nil, fmt.Errorf("hash join password: %w", err)
		}
		passwordHash = []byte(hash)
	}

	gameListener := listener.New(ln, seq, logger, passwordHash)
	statusServer := httpapi.New(cfg.Server.StatusAddr, seq, time.Now(), logger)

	return &App{
		cfg:    cfg,
		log:    logger,
		seq:    seq,
		ln:     gameListener,
		status: statusServer,
		store:  st,
	}, nil
}

// Run starts the sequencer's background loops, the game listener, and
// the status HTTP server, and blocks until ctx is canceled or any of
// them fails fatally.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.seq.Start(ctx)
	defer a.seq.Stop()

	errCh := make(chan error, 2)
	go func() { errCh <- a.ln.Run(ctx) }()
	go func() { errCh <- a.status.Run(ctx) }()

	select {
	case err := <-errCh:
		cancel()
		a.cleanup()
		return err
	case <-ctx.Done():
		a.cleanup()
		<-errCh
		return nil
	}
}

// cleanup closes the durable store.
func (a *App) cleanup() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close store")
	} else {
		a.log.Info().Msg("store closed")
	}
}


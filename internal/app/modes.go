package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/omentrader/internal/server"
	"github.com/alanyoungcy/omentrader/internal/server/handler"
	"github.com/alanyoungcy/omentrader/internal/server/ws"
	"github.com/alanyoungcy/omentrader/internal/settlement"
)

// AgentMode runs rounds on the configured interval, plus the API when the
// server is enabled.
func (a *App) AgentMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting agent mode",
		slog.Duration("round_interval", a.cfg.Trader.RoundInterval.Duration))

	g, ctx := errgroup.WithContext(ctx)
	round := a.newRound(deps)
	g.Go(func() error {
		return round.Loop(ctx, a.cfg.Trader.RoundInterval.Duration)
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

// OnceMode runs a single round and returns.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "running a single round")
	return a.newRound(deps).RunOnce(ctx)
}

// ServerMode serves the API only: parameter updates, results and the
// settlement feed.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

func (a *App) newRound(deps *Dependencies) *Round {
	return &Round{
		Redeem:       deps.Redemption,
		Bet:          deps.Bet,
		Decisions:    deps.Decisions,
		Locks:        deps.Locks,
		Sink:         deps.Sink,
		Params:       deps.Params,
		Notifier:     deps.Notifier,
		LockKey:      "round:" + strings.ToLower(a.cfg.Chain.SafeAddress),
		Timeout:      a.cfg.Trader.RoundTimeout.Duration,
		MaxDecisions: a.cfg.Trader.MaxDecisions,
		Logger:       a.logger,
	}
}

// startHTTPServer adds the websocket hub, the HTTP server and its graceful
// shutdown to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var agent string
	if deps.Agent != (common.Address{}) {
		agent = deps.Agent.Hex()
	}
	hub := ws.NewHub(deps.SignalBus, ws.Config{
		Channels:     []string{settlement.PayloadChannel},
		Mode:         a.cfg.Mode,
		AgentAddress: agent,
		StartedAt:    time.Now().UTC(),
	}, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks, a.logger),
		Params:  handler.NewParamsHandler(deps.Params, a.cfg.Server.UpdateSecret, deps.Audit, a.logger),
		Results: handler.NewResultsHandler(deps.Results, a.logger),
	}
	if deps.Audit != nil {
		handlers.Audit = handler.NewAuditHandler(deps.Audit, a.logger)
	}
	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		UpdateRateLimit: a.cfg.Server.UpdateRateLimit,
		UpdateWindow:    time.Minute,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

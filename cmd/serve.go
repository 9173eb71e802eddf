package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xhad/docbot/pkg/session"
	"github.com/xhad/docbot/pkg/xero"
	"github.com/xhad/docbot/server"
	"go.uber.org/zap"
)

type ServeCmd struct {
	Addr string `help:"Listen address, overrides the config file."`
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	if c.Addr != "" {
		cfg.Server.Addr = c.Addr
	}

	var xc *xero.Client
	if cfg.Xero.Enabled() {
		xc = xero.New(xero.Config{
			ClientID:       cfg.Xero.ClientID,
			ClientSecret:   cfg.Xero.ClientSecret,
			RedirectURL:    cfg.Xero.RedirectURL,
			Scopes:         xero.ParseScopes(cfg.Xero.Scopes),
			AuthorizeURL:   cfg.Xero.AuthorizeURL,
			TokenURL:       cfg.Xero.TokenURL,
			APIBaseURL:     cfg.Xero.APIBaseURL,
			ConnectionsURL: cfg.Xero.ConnectionsURL,
			CookieSecret:   []byte(cfg.Server.CookieSecret),
			SecureCookie:   cfg.Server.SecureCookie,
		}, xero.WithLogger(a.logger))
	} else {
		a.logger.Info("xero integration disabled, API_XERO_CLIENT_ID is not set")
	}

	srv, err := server.New(server.Config{
		Addr:         cfg.Server.Addr,
		MaxUploadMB:  cfg.Server.MaxUploadMB,
		SecureCookie: cfg.Server.SecureCookie,
	}, server.Deps{
		Loader:    a.loader,
		Extractor: a.extractor,
		Sessions:  session.NewStore(cfg.Server.SessionTTL, nil, a.logger),
		Xero:      xc,
	}, a.logger)
	if err != nil {
		return err
	}

	a.logger.Info("starting docbot",
		zap.String("llm", cfg.LLM.Provider+"/"+cfg.LLM.Model),
		zap.String("index", cfg.Index.Backend))
	return srv.ListenAndServe(ctx)
}

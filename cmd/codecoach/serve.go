package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"codecoach/pkg/bridge"
	"codecoach/pkg/coach"
	"codecoach/pkg/host"
	"codecoach/pkg/persistence"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept editor connections over the websocket bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, flags *globalFlags, addr string) error {
	a, err := newApp(ctx, flags)
	if err != nil {
		return err
	}
	defer a.Close()

	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	server := bridge.NewServer(bridge.Options{
		Addr:     addr,
		Gatherer: a.registry,
		NewSession: func(ctx context.Context, editor host.Editor, panels host.PanelHost) (bridge.Session, error) {
			opts := a.sessionOptions(persistence.OriginBridge)
			opts.Editor = editor
			opts.Panels = panels
			sess, err := coach.New(ctx, opts)
			if err != nil {
				return nil, err
			}
			return sess, nil
		},
	})

	a.logger.Info("🚀 Serving editor bridge on %s (model %s)", addr, a.model)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("Editor bridge stopped")
	return nil
}

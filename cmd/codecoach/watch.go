package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"codecoach/pkg/coach"
	"codecoach/pkg/host/fswatch"
	"codecoach/pkg/host/terminal"
	"codecoach/pkg/persistence"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch FILE",
		Short: "Coach one file from the terminal, treating writes to it as saves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), flags, args[0], debounce)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "quiet period before a write counts as a save")
	return cmd
}

func runWatch(ctx context.Context, flags *globalFlags, path string, debounce time.Duration) error {
	a, err := newApp(ctx, flags)
	if err != nil {
		return err
	}
	defer a.Close()

	lines, out, restore, err := terminal.Open(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	defer restore()

	ui := terminal.New(out)
	editor, err := fswatch.New(path, debounce, ui.ShowMessage)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	opts := a.sessionOptions(persistence.OriginWatch)
	opts.Editor = editor
	opts.Panels = ui
	sess, err := coach.New(ctx, opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return editor.Run(gctx) })
	g.Go(func() error {
		// leaving the prompt ends the watch
		defer cancel()
		return ui.Run(gctx, lines, sess)
	})
	return g.Wait()
}

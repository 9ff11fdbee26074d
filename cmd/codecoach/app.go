package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/term"

	"codecoach/pkg/coach"
	"codecoach/pkg/config"
	"codecoach/pkg/gateway"
	"codecoach/pkg/llm/providers"
	"codecoach/pkg/logx"
	"codecoach/pkg/metrics"
	"codecoach/pkg/persistence"
	"codecoach/pkg/redact"
	"codecoach/pkg/utils"
)

// envSecretsPassword unlocks the secrets file without a prompt.
const envSecretsPassword = "CODECOACH_SECRETS_PASSWORD"

const redactTimeout = 2 * time.Second

// app holds what every session of the process shares.
type app struct {
	cfg      config.Config
	registry *prometheus.Registry
	recorder *metrics.PrometheusRecorder
	gateway  *gateway.Gateway
	store    *persistence.Store // nil when persistence is disabled
	model    string
	logger   *logx.Logger
}

func newApp(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Logging.Debug || flags.debug {
		logx.SetDebug(true, cfg.Logging.Domains)
	}

	a := &app{cfg: cfg, registry: prometheus.NewRegistry(), logger: logx.NewLogger("codecoach")}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.recorder = metrics.NewPrometheusRecorder(a.registry)

	if err := unlockSecrets(cfg.DataDir); err != nil {
		return nil, err
	}

	client, err := providers.NewClient(cfg.Inference, a.recorder)
	if err != nil {
		return nil, err
	}
	counter, err := utils.NewTokenCounter(cfg.Inference.Model)
	if err != nil {
		a.logger.Warn("token counter unavailable, using estimates: %v", err)
	}
	a.gateway, err = gateway.New(gateway.Options{
		Client:    client,
		Inference: cfg.Inference,
		Scanner:   redact.NewPatternScanner(redactTimeout),
		Counter:   counter,
		Recorder:  a.recorder,
	})
	if err != nil {
		return nil, err
	}
	a.model = cfg.Inference.Model
	if !a.gateway.Available() {
		a.logger.Warn("⚠️  No credential for %s: requests will fail until one is set (codecoach secrets set)", cfg.Inference.Model)
	}

	if cfg.Store.Path != "" {
		a.store, err = persistence.Open(ctx, cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		if n, err := a.store.MarkStaleSessions(ctx); err != nil {
			a.logger.Warn("mark stale sessions: %v", err)
		} else if n > 0 {
			a.logger.Info("Marked %d sessions from a previous run as crashed", n)
		}
	}
	return a, nil
}

// sessionOptions returns the shared part of a session's options.
func (a *app) sessionOptions(origin string) coach.Options {
	opts := coach.Options{
		Origin:    origin,
		Model:     a.model,
		Inference: a.gateway,
		Config:    a.cfg,
		Recorder:  a.recorder,
	}
	if a.store != nil {
		opts.Transcript = a.store
	}
	return opts
}

func (a *app) Close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store: %v", err)
	}
}

// unlockSecrets loads the encrypted secrets file when present. The password comes from
// the environment or, on a terminal, from a prompt.
func unlockSecrets(dataDir string) error {
	if !config.SecretsFileExists(dataDir) {
		return nil
	}
	password := os.Getenv(envSecretsPassword)
	if password == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			logx.Warnf("secrets file present but %s is not set; skipping", envSecretsPassword)
			return nil
		}
		var err error
		password, err = readPassword("Secrets password: ")
		if err != nil {
			return err
		}
	}
	secrets, err := config.DecryptSecretsFile(dataDir, password)
	if err != nil {
		return fmt.Errorf("unlock secrets: %w", err)
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(raw) == 0 {
		return "", errors.New("empty password")
	}
	return string(raw), nil
}

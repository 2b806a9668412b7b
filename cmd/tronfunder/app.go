package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"tronfunder/internal/config"
	"tronfunder/internal/confirm"
	"tronfunder/internal/funding"
	"tronfunder/internal/metrics"
	"tronfunder/internal/notify"
	"tronfunder/internal/tron"
)

// app holds the collaborators built once per process from Config.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	metrics  *metrics.Registry
	client   *tron.Client
	funder   *tron.Funder
	notifier notify.Notifier
	closers  []func(context.Context) error
}

func newLogger(level, format string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(lvl)
	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := newLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	client, err := tron.NewClient(tron.ClientConfig{
		NodeURL: cfg.Chain.NodeURL,
		APIKey:  cfg.Chain.APIKey,
		Timeout: cfg.Chain.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("tron client: %w", err)
	}

	a := &app{
		cfg:      cfg,
		log:      logger,
		metrics:  metrics.New(),
		client:   client,
		notifier: notify.Nop{},
	}

	if cfg.FundingEnabled() {
		a.funder, err = tron.NewFunder(client, cfg.Funder.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("funder: %w", err)
		}
		logger.WithField("funder", a.funder.Address()).Info("top-ups enabled")
	} else {
		logger.Warn("FUNDER_PRIVKEY not set, top-ups disabled")
	}

	if cfg.TelegramEnabled() {
		tg := notify.NewTelegram(notify.TelegramConfig{
			BotToken:      cfg.Telegram.BotToken,
			ChatID:        cfg.Telegram.ChatID,
			APIBase:       cfg.Telegram.APIBase,
			RatePerSecond: cfg.Telegram.RatePerSecond,
		})
		d := notify.NewDispatcher(tg, notify.DispatcherOptions{
			Logger:      logger,
			Metrics:     a.metrics,
			SendTimeout: cfg.Telegram.SendTimeout,
		})
		a.notifier = d
		a.closers = append(a.closers, d.Close)
	} else {
		logger.Info("telegram not configured, notifications disabled")
	}

	return a, nil
}

func (a *app) engine() *funding.Engine {
	// A nil *tron.Funder must stay a nil interface so the engine sees
	// top-ups as disabled.
	var transferer funding.Transferer
	if a.funder != nil {
		transferer = a.funder
	}
	return funding.NewEngine(a.client, transferer, a.notifier, funding.Policy{
		MinBalance:  a.cfg.Funding.MinBalanceTRX.Decimal,
		TopupAmount: a.cfg.Funding.TopupAmountTRX.Decimal,
	}, funding.WithAddressCheck(tron.IsValidAddress))
}

func (a *app) watcher() *confirm.Watcher {
	return confirm.NewWatcher(a.client, a.notifier, confirm.Options{
		PollInterval: a.cfg.Confirm.PollInterval,
		Window:       a.cfg.Confirm.Window,
		Logger:       a.log,
	})
}

// close flushes queued notifications.
func (a *app) close(ctx context.Context) {
	for _, c := range a.closers {
		if err := c(ctx); err != nil {
			a.log.WithError(err).Warn("shutdown incomplete")
		}
	}
}

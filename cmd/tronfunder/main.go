package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tronfunder/internal/config"
	"tronfunder/internal/confirm"
	"tronfunder/internal/monitor"
	"tronfunder/internal/server"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tronfunder",
		Short:         "Sponsor TRX top-ups for low wallets and watch approvals confirm",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (default $CONFIG_PATH or config.yaml)")

	load := func() (*app, error) {
		path := configPath
		if path == "" {
			path = config.Path()
		}
		return newApp(path)
	}

	root.AddCommand(newServeCmd(load), newFundCmd(load), newWatchCmd(load))
	return root
}

func newServeCmd(load func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			return serve(a)
		},
	}
}

func serve(a *app) error {
	apiServer := server.NewServer(a.cfg, server.Deps{
		Engine:  a.engine(),
		Watcher: a.watcher(),
		Chain:   a.client,
		Metrics: a.metrics,
		Logger:  a.log,
	})

	var mon *monitor.Monitor
	if a.funder != nil {
		mon = monitor.New(a.client, a.funder.Address(), monitor.Options{
			Threshold: a.cfg.Funding.TopupAmountTRX.Decimal,
			Timeout:   a.cfg.Chain.Timeout,
			Notifier:  a.notifier,
			Metrics:   a.metrics,
			Logger:    a.log,
		})
		if err := mon.Register(a.cfg.Monitor.Schedule); err != nil {
			return err
		}
		mon.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-ch:
		a.log.WithField("signal", sig.String()).Info("shutting down")
	case runErr = <-errCh:
		if runErr != nil {
			a.log.WithError(runErr).Error("server stopped")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		a.log.WithError(err).Warn("http shutdown incomplete")
	}
	if mon != nil {
		mon.Stop(ctx)
	}
	a.close(ctx)
	return runErr
}

func newFundCmd(load func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "fund <address>",
		Short: "Evaluate one wallet and top it up if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer closeWithTimeout(a)

			res, err := a.engine().Evaluate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"ok":                 true,
				"balance":            json.Number(res.Balance.String()),
				"topupTransactionId": res.TopupTransactionID(),
			})
		},
	}
}

func newWatchCmd(load func() (*app, error)) *cobra.Command {
	var approval confirm.Approval

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Wait for an approval transaction to confirm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer closeWithTimeout(a)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out, err := a.watcher().Await(ctx, approval)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"ok":        true,
				"confirmed": out.Confirmed(),
				"polls":     out.Polls,
				"elapsed":   out.Elapsed.String(),
			})
		},
	}
	cmd.Flags().StringVar(&approval.Owner, "owner", "", "approving owner address")
	cmd.Flags().StringVar(&approval.Spender, "spender", "", "approved spender address")
	cmd.Flags().StringVar(&approval.Amount, "amount", "", "approved amount")
	cmd.Flags().StringVar(&approval.TransactionID, "txid", "", "approval transaction id")
	return cmd
}

func closeWithTimeout(a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.close(ctx)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

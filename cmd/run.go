// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/rcsbridge/internal/api"
	"github.com/Thermoquad/rcsbridge/internal/bridge"
	"github.com/Thermoquad/rcsbridge/internal/logger"
	"github.com/Thermoquad/rcsbridge/internal/metrics"
	"github.com/Thermoquad/rcsbridge/internal/store"
	"github.com/Thermoquad/rcsbridge/pkg/bus"
)

const (
	heartbeatInterval = 5 * time.Minute
	shutdownTimeout   = 5 * time.Second

	// daemonEnv marks the re-executed background process
	daemonEnv = "RCSBRIDGE_DAEMON"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge (default)",
	Long: `Run the thermostat bridge.

Unless --no-background is given, the bridge detaches from the terminal and
continues in the background. The process stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	daemonized := os.Getenv(daemonEnv) != ""
	if !opts.noBackground && !daemonized {
		return daemonize()
	}

	logPath := ""
	if daemonized {
		logPath = opts.logFile
	}
	log, closeLog, err := logger.Open(logPath, opts.debug)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, opts, log); err != nil {
		log.Errorw("bridge stopped", "error", err)
		return err
	}
	log.Infow("bridge stopped")
	return nil
}

// serve wires the bridge together and runs it until ctx is done
func serve(ctx context.Context, o options, log *zap.SugaredLogger) error {
	identity := o.identity()

	st, err := store.Open(o.state, identity.String())
	if err != nil {
		return err
	}
	defer st.Close()

	svc, err := bus.NewService(identity, version, st)
	if err != nil {
		return err
	}

	m := metrics.New()

	transport, err := bus.DialNATS(bus.NATSConfig{
		URL:           o.natsURL,
		Name:          identity.String(),
		SubjectPrefix: o.subjectPrefix,
		Interface:     o.iface,
		Codec:         o.codec,
		OnError: func(err error) {
			log.Warnw("bus error", "error", err)
		},
		OnReconnect: func(url string) {
			log.Infow("bus connection restored", "url", url)
		},
	})
	if err != nil {
		return err
	}
	defer transport.Close()

	link := o.link
	if link.url != "" && link.username != "" {
		password, err := GetPassword()
		if err != nil {
			return err
		}
		link.password = password
	}
	lm := newLinkManager(func() (Connection, error) { return OpenConnection(link) }, link.describe(), nil, log, m)
	if err := lm.Connect(); err != nil {
		return err
	}
	defer lm.Close()

	bc := bridge.DefaultConfig()
	bc.Address = o.address
	bc.PollTimeout = o.pollTimeout
	bc.QueueSize = o.queueSize
	bc.DiffMode = o.diffMode
	bc.TraceMessages = o.debug >= logger.TraceDebug

	ctrl, err := bridge.New(bc, lm, transport, svc, log, m)
	if err != nil {
		return err
	}
	lm.sink = ctrl.DeliverLine

	if err := transport.Subscribe(func(msg *bus.Message) { ctrl.Deliver(msg) }); err != nil {
		return err
	}

	if err := ctrl.Prime(ctx, lm.Flush); err != nil {
		return fmt.Errorf("failed to prime link: %w", err)
	}

	log.Infow("bridge started",
		"service", svc.ID(),
		"version", svc.Version(),
		"link", link.describe(),
		"bus", o.natsURL,
		"address", o.address,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		lm.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := svc.Heartbeat(ctx, transport, heartbeatInterval); err != nil && !errors.Is(err, context.Canceled) {
			log.Warnw("heartbeat stopped", "error", err)
		}
	}()

	var srv *api.Server
	if o.httpAddr != "" {
		if o.debug < 3 {
			gin.SetMode(gin.ReleaseMode)
		}
		router := api.NewHandler(ctrl, m.Handler(), log).InitRoutes()
		srv = api.NewServer(o.httpAddr, router)
		go func() {
			if err := srv.Run(); err != nil {
				log.Errorw("status API failed", "addr", o.httpAddr, "error", err)
			}
		}()
		log.Infow("status API listening", "addr", o.httpAddr)
	}

	runErr := ctrl.Run(ctx)
	cancel()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnw("status API shutdown failed", "error", err)
		}
		cancel()
	}

	wg.Wait()

	flushCtx, cancelFlush := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelFlush()
	if err := transport.Flush(flushCtx); err != nil {
		log.Debugw("bus flush failed", "error", err)
	}
	return runErr
}

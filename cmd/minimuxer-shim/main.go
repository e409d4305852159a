// SPDX-License-Identifier: GPL-2.0-only

package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jkcoxson/minimuxer/config"
	"github.com/jkcoxson/minimuxer/ddimount"
	"github.com/jkcoxson/minimuxer/idevice"
	"github.com/jkcoxson/minimuxer/shim"
)

// Main is the principal function for the binary, wrapped only by `main` for
// convenience so errors can be reported and exit with a non-zero status.
func Main() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pairingBytes, err := os.ReadFile(cfg.PairingFile)
	if err != nil {
		return fmt.Errorf("failed to read pairing file: %w", err)
	}

	provider := idevice.NewNativeProvider("")
	s := shim.New(provider)
	if err := s.Start(pairingBytes, cfg.LogPath); err != nil {
		return fmt.Errorf("failed to start minimuxer-shim: %w", err)
	}
	if cfg.Debug {
		s.SetDebug(true)
	}
	if err := shim.TargetMuxAddress(); err != nil {
		return err
	}

	logger := s.Logger("main")
	registry := s.Registry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var g run.Group
	{
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			if s.Ready().Ready() {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		registerControlSurface(mux, &controlSurface{
			locator:  s.Locator(),
			logger:   s.Logger("control-surface"),
			docsRoot: cfg.DDIRoot,
			metrics:  newControlSurfaceMetrics(registry),
		})

		l, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %v", cfg.Listen, err)
		}
		g.Add(func() error {
			if err := http.Serve(l, mux); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("server exited unexpectedly: %v", err)
			}
			return nil
		}, func(error) {
			_ = l.Close()
		})
	}

	{
		term := make(chan os.Signal, 1)
		signal.Notify(term, syscall.SIGINT, syscall.SIGTERM)
		cancel := make(chan struct{})
		g.Add(func() error {
			select {
			case <-term:
				level.Info(logger).Log("msg", "caught interrupt; shutting down")
				return nil
			case <-cancel:
				return nil
			}
		}, func(error) {
			close(cancel)
		})
	}

	{
		ddiMetrics := ddimount.NewMetrics(registry)
		mounter := ddimount.NewMounter(s.Locator(), s.Logger("ddimount"), cfg.DDIRoot, s.PublishDMGMounted, ddiMetrics)
		cancel := make(chan struct{})
		g.Add(func() error {
			done := make(chan struct{})
			go func() {
				mounter.Run()
				close(done)
			}()
			select {
			case <-done:
			case <-cancel:
			}
			return nil
		}, func(error) {
			close(cancel)
		})
	}

	return g.Run()
}

func main() {
	if err := Main(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Execution failed: %v\n", err)
		os.Exit(1)
	}
}


// Package serve implements the TCP prediction daemon (C9): a
// line-in/prediction-out request loop bound to a frozen model, plus a
// side HTTP listener exposing Prometheus metrics.
package serve

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	wl "github.com/wabbitlearn/wabbitlearn"
)

// Config configures one Server instance.
type Config struct {
	Addr        string // TCP address for the prediction socket, e.g. ":26542"
	MetricsAddr string // HTTP address for /metrics; empty disables it
	LineTimeout time.Duration
}

// Server serves frozen-model predictions over TCP (§4.9 "Serving").
// Forward passes are read-only on the shared Regressor, so each
// connection takes only the read side of a sync.RWMutex and forward
// passes from different connections run concurrently; training always
// runs as a separate, single-threaded process from a Server, so the
// write side is unused here.
type Server struct {
	cfg      Config
	inst     *wl.Instance
	reg      *wl.Regressor
	registry *prometheus.Registry
	metrics  *Metrics
	guard    regressorGuard
}

// NewServer builds a Server around a frozen Instance/Regressor pair.
// reg is never mutated by serving; Learn is always called with
// update=false. registry is the Prometheus registry /metrics serves;
// a nil registry creates a fresh one.
func NewServer(cfg Config, inst *wl.Instance, reg *wl.Regressor, registry *prometheus.Registry) *Server {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &Server{
		cfg:      cfg,
		inst:     inst,
		reg:      reg,
		registry: registry,
		metrics:  NewMetrics(registry),
		guard:    regressorGuard{},
	}
}

// Run accepts connections on cfg.Addr until ctx is cancelled, and, if
// cfg.MetricsAddr is set, serves /metrics on a side HTTP listener.
// Both listeners are coordinated with an errgroup so a fatal error on
// either side tears down the other and Run returns promptly.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	glog.Infof("prediction daemon listening on %s", s.cfg.Addr)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-gctx.Done():
					return nil
				default:
					return fmt.Errorf("accept: %w", err)
				}
			}
			s.metrics.ConnectionsTotal.Inc()
			go s.handleConn(gctx, conn)
		}
	})

	if s.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
		httpSrv := &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			glog.Infof("metrics listening on %s", s.cfg.MetricsAddr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// handleConn runs one connection's request loop: parse line, forward
// pass, write prediction; `!` on parse error; graceful close on EOF
// (§4.9).
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	parser := wl.NewParser(s.inst)
	translator := wl.NewTranslator(s.inst)
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		if s.cfg.LineTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.cfg.LineTimeout)); err != nil {
				return
			}
		}
		line, err := readLine(r)
		if err != nil {
			return
		}

		start := time.Now()
		frame, perr := parser.Parse(line)
		if perr != nil {
			s.metrics.ParseErrorsTotal.Inc()
			if _, err := w.WriteString("!\n"); err != nil || w.Flush() != nil {
				return
			}
			continue
		}
		wl.ApplyTransforms(s.inst.Transforms, frame)
		fb := translator.Translate(frame)

		s.guard.RLock()
		pred := s.reg.Learn(fb, false)
		s.guard.RUnlock()

		s.metrics.PredictionsTotal.Inc()
		s.metrics.PredictSeconds.Observe(time.Since(start).Seconds())

		if _, err := fmt.Fprintf(w, "%.6f\n", pred); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hoist-sim/hoist-sim/sim"
	"github.com/hoist-sim/hoist-sim/sim/stream"
)

// serveCmd simulates a line, then replays its snapshot timeline to WebSocket clients
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulation and replay its timeline over WebSocket, with Prometheus metrics",
	Run: func(cmd *cobra.Command, args []string) {
		settings := mustSettings(cmd)

		s, err := buildSimulator(settings)
		if err != nil {
			logrus.Fatalf("Cannot start simulation: %v", err)
		}
		if err := runAndReport(s, os.Stdout); err != nil {
			// a failed run still has a timeline worth replaying
			logrus.Errorf("Simulation failed: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := serve(ctx, s, settings); err != nil {
			logrus.Fatalf("Server error: %v", err)
		}
	},
}

// newServeMux exposes a finished simulation: /ws streams snapshots, /timeline returns the whole
// timeline, /metrics the run's Prometheus registry.
func newServeMux(s *sim.Simulator, hub *stream.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWs)
	mux.Handle("/metrics", promhttp.HandlerFor(s.Metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/timeline", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.Timeline()); err != nil {
			logrus.Warnf("encoding timeline: %v", err)
		}
	})
	return mux
}

// replay sends the timeline once a client is connected, and again for later clients when looping.
func replay(ctx context.Context, hub *stream.Hub, timeline []sim.Snapshot, settings *Settings) {
	for {
		if err := hub.WaitForClient(ctx); err != nil {
			return
		}
		if err := hub.Replay(ctx, timeline, settings.Interval); err != nil {
			return
		}
		logrus.Infof("Replay finished, %d snapshots sent", len(timeline))
		if !settings.Loop {
			return
		}
	}
}

// serve runs the HTTP server and the replay loop until ctx is cancelled or the server fails.
func serve(ctx context.Context, s *sim.Simulator, settings *Settings) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := stream.NewHub()
	go hub.Run(ctx)

	srv := &http.Server{Addr: settings.Addr, Handler: newServeMux(s, hub)}
	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Serving /ws, /timeline and /metrics on %s", settings.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	go replay(ctx, hub, s.Timeline(), settings)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Warnf("shutdown: %v", err)
	}
	return serveErr
}

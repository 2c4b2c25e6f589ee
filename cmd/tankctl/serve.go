package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-tankbot/bridge"
	"github.com/arloliu/go-tankbot/session"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to the robot and bridge it to WebSocket clients",
		Long: `Serve connects to the robot and accepts WebSocket clients on /ws.
Clients send JSON intents such as {"type":"drive","left":150,"right":150}
and receive every robot line and link event as JSON. GET /status returns
the link state and counters.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr := a.cfg.Bridge.Listen
			if listen != "" {
				addr = listen
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", addr, err)
			}

			return a.serve(cmd.Context(), ln)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "HTTP listen address (default bridge.listen)")

	return cmd
}

type statusResponse struct {
	State           string `json:"state"`
	Target          string `json:"target,omitempty"`
	Clients         int    `json:"clients"`
	CommandsSent    uint64 `json:"commands_sent"`
	CommandsDropped uint64 `json:"commands_dropped"`
	FramesRecv      uint64 `json:"frames_received"`
	IOErrors        uint64 `json:"io_errors"`
}

// serve runs the bridge on ln until ctx is done.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	hubOpts := []bridge.Option{bridge.WithLogger(a.log)}
	if len(a.cfg.Bridge.AllowedOrigins) > 0 {
		hubOpts = append(hubOpts, bridge.WithAllowedOrigins(a.cfg.Bridge.AllowedOrigins...))
	}

	hub := bridge.NewHub(hubOpts...)
	defer hub.Close()

	events := session.ListenerFuncs{
		Connected:    func(name string) { a.log.Info("robot connected", "name", name) },
		Disconnected: func() { a.log.Warn("robot disconnected") },
		Error:        func(err error) { a.log.Error("robot link error", "error", err) },
	}

	s, err := a.connect(ctx, session.MultiListener{hub, events})
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer s.Close()

	hub.Bind(s)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		m := s.Metrics()
		resp := statusResponse{
			State:           s.State().String(),
			Clients:         hub.ClientCount(),
			CommandsSent:    m.CmdSendCount.Load(),
			CommandsDropped: m.CmdDropCount.Load(),
			FramesRecv:      m.FrameRecvCount.Load(),
			IOErrors:        m.IOErrorCount.Load(),
		}
		if t, ok := s.Target(); ok {
			resp.Target = t.String()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("bridge listening", "addr", ln.Addr().String())
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("bridge server failed: %w", err)
		}

		return nil

	case <-ctx.Done():
	}

	a.log.Info("shutting down bridge")

	// clients are hijacked connections, Shutdown does not wait for them.
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("bridge shutdown failed: %w", err)
	}

	return nil
}

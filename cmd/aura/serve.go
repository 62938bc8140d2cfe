package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"aura/internal/types"
)

var flagAddr string

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "127.0.0.1:8970", "listen address")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP ingress",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildAssistant()
		if err != nil {
			return err
		}
		defer a.Close()
		a.Start()

		mux := http.NewServeMux()
		mux.HandleFunc("/ask", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "POST only", http.StatusMethodNotAllowed)
				return
			}
			var body struct {
				Text   string `json:"text"`
				UserID string `json:"user_id"`
				Urgent bool   `json:"urgent"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
				http.Error(w, "body must be {\"text\": ...}", http.StatusBadRequest)
				return
			}

			priority := types.PriorityStandard
			if body.Urgent {
				priority = types.PriorityUrgent
			}
			done := make(chan string, 1)
			req := &types.Request{
				ID:       uuid.NewString(),
				Source:   "http",
				UserID:   body.UserID,
				Text:     body.Text,
				Priority: priority,
				Reply:    func(result string) { done <- result },
			}
			if err := a.Nexus.Submit(req); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			select {
			case <-r.Context().Done():
				a.Controller.Interrupt()
			case result := <-done:
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{"reply": result})
			}
		})
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			stats := a.Nexus.Telemetry()
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"governor":    a.Governor.State(),
				"queue_depth": stats.QueueDepth,
				"completed":   stats.Completed,
			})
		})

		srv := &http.Server{
			Addr:              flagAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		fmt.Printf("listening on http://%s\n", flagAddr)

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		}
	},
}

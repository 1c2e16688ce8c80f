package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"goa.design/clue/log"

	"github.com/parley-dev/parley/events"
	"github.com/parley-dev/parley/negotiation"
)

// handleHTTPServer mounts the five submitter-facing operations (spec.md
// §6.1) as plain JSON endpoints and starts serving in a background
// goroutine, shutting down gracefully when ctx is cancelled. There is no
// Goa design for this surface — the negotiation system is not itself a Goa
// service — so the mux and handlers are written directly rather than
// generated.
func handleHTTPServer(ctx context.Context, u *url.URL, engine *negotiation.Engine, wg *sync.WaitGroup, errc chan error, logger interface {
	Warn(ctx context.Context, msg string, keyvals ...any)
}) {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RawIntent    string         `json:"raw_intent"`
			ProfileHints map[string]any `json:"profile_hints"`
			KStar        int            `json:"k_star"`
			MinScore     float64        `json:"min_score"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		id, err := engine.Submit(r.Context(), negotiation.SubmitRequest{
			RawIntent:    req.RawIntent,
			ProfileHints: req.ProfileHints,
			KStar:        req.KStar,
			MinScore:     req.MinScore,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"session_id": id})
	})

	mux.HandleFunc("POST /sessions/{id}/confirm", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := engine.Confirm(r.Context(), r.PathValue("id"), req.Text); err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /sessions/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		if err := engine.Cancel(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sess, err := engine.GetStatus(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	})

	mux.HandleFunc("GET /sessions/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		handleSubscribe(w, r, engine)
	})

	handler := log.HTTP(ctx)(mux)
	srv := &http.Server{Addr: u.Host, Handler: handler, ReadHeaderTimeout: 60 * time.Second}

	wg.Add(1)
	go func() {
		defer wg.Done()
		go func() {
			log.Printf(ctx, "HTTP server listening on %q", u.Host)
			errc <- srv.ListenAndServe()
		}()
		<-ctx.Done()
		log.Printf(ctx, "shutting down HTTP server at %q", u.Host)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf(ctx, "failed to shutdown: %v", err)
		}
	}()
}

// handleSubscribe streams newline-delimited JSON events for one session
// (and its direct sub-negotiations) until the client disconnects.
func handleSubscribe(w http.ResponseWriter, r *http.Request, engine *negotiation.Engine) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, http.ErrNotSupported)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	var mu sync.Mutex
	sub, err := engine.Subscribe(r.PathValue("id"), events.SinkFunc(func(ctx context.Context, ev events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(ev); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer sub.Close()

	<-r.Context().Done()
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err.Error() != "EOF" {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/studio-carto/prospect-cli/internal/model"
	"github.com/studio-carto/prospect-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API over HTTP",
	Long: `Runs an HTTP server exposing the search pipeline and run history:
POST /api/search runs a search synchronously, GET /api/runs lists past runs,
GET /api/runs/{id} returns one, GET /health is the liveness probe.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initSearchEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(env.Store, env.Pipeline),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// searchRunner abstracts the pipeline so handlers can be tested against a stub.
type searchRunner interface {
	Run(ctx context.Context, req model.SearchRequest) (*model.SearchReport, error)
}

func buildRouter(st store.Store, runner searchRunner) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/search", handleSearch(runner))
		r.Get("/runs", handleRunsList(st))
		r.Get("/runs/{id}", handleRunGet(st))
	})

	return r
}

// requestLogger logs each request once it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func handleSearch(runner searchRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "", "invalid request body")
			return
		}
		if strings.TrimSpace(req.Address) == "" {
			writeError(w, http.StatusBadRequest, "", "address is required")
			return
		}
		if req.RadiusKM <= 0 {
			writeError(w, http.StatusBadRequest, "", "radius_km must be greater than zero")
			return
		}

		rep, err := runner.Run(r.Context(), req)
		if err != nil {
			code := model.CodeOf(err)
			writeError(w, statusForCode(code), code, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func handleRunsList(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.RunFilter{Limit: 50}
		if s := r.URL.Query().Get("status"); s != "" {
			filter.Status = model.RunStatus(s)
		}
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "", "limit must be a non-negative integer")
				return
			}
			filter.Limit = n
		}

		runs, err := st.ListRuns(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "", "list runs failed")
			return
		}
		if runs == nil {
			runs = []model.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleRunGet(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := st.GetRun(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				writeError(w, http.StatusNotFound, "", "run not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "", "get run failed")
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

// statusForCode maps pipeline error codes onto HTTP statuses: a bad address
// is the caller's problem, upstream failures are gateway errors.
func statusForCode(code model.ErrorCode) int {
	switch code {
	case model.CodeGeocodeNotFound:
		return http.StatusUnprocessableEntity
	case model.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case model.CodeGeocodeServiceError, model.CodeCommuneFetchError,
		model.CodeSearchServiceError, model.CodeMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type apiError struct {
	Error string          `json:"error"`
	Code  model.ErrorCode `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code model.ErrorCode, msg string) {
	writeJSON(w, status, apiError{Error: msg, Code: code})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default server.port from config)")
	rootCmd.AddCommand(serveCmd)
}

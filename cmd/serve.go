package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/portfolio-cli/internal/cache"
	"github.com/sells-group/portfolio-cli/internal/fetch"
	"github.com/sells-group/portfolio-cli/internal/model"
	"github.com/sells-group/portfolio-cli/internal/resilience"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for company-data requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(e.Service, e.Store, e.Breakers),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// companyDataRequest is the body for POST /companies/data.
type companyDataRequest struct {
	Company      model.Company `json:"company"`
	DataTypes    []string      `json:"data_types"`
	ForceRefresh bool          `json:"force_refresh"`
}

func newRouter(svc *fetch.Service, store cache.Store, breakers *resilience.ProviderBreakers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/providers/status", func(w http.ResponseWriter, _ *http.Request) {
		states := make(map[string]string)
		if breakers != nil {
			for provider, state := range breakers.States() {
				states[provider] = state.String()
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"breakers": states})
	})

	// Read-only view of the cache; never triggers a fetch.
	r.Get("/companies/{id}/data", func(w http.ResponseWriter, req *http.Request) {
		types, err := model.ParseDataTypes(splitTypesParam(req.URL.Query().Get("types")))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if len(types) == 0 {
			types = model.AllDataTypes
		}

		rec, err := store.Get(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			zap.L().Error("cache read failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache read failed"})
			return
		}
		if rec == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no cached data"})
			return
		}
		writeJSON(w, http.StatusOK, rec.Normalized(types))
	})

	r.Post("/companies/data", func(w http.ResponseWriter, req *http.Request) {
		var body companyDataRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if body.Company.ID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "company.id is required"})
			return
		}

		types, err := model.ParseDataTypes(body.DataTypes)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		result, err := svc.FetchCompanyData(req.Context(), body.Company, types, body.ForceRefresh)
		if err != nil {
			zap.L().Error("company data request failed",
				zap.String("company", body.Company.Label()),
				zap.Error(err),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "fetch failed"})
			return
		}

		writeJSON(w, http.StatusOK, result)
	})

	return r
}

func splitTypesParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// Package tcserver serves chain and history reports over HTTP.
package tcserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	v1 "github.com/tcbot-dev/tchelper/pkg/apis/config/v1"
	"github.com/tcbot-dev/tchelper/pkg/buildchain"
	"github.com/tcbot-dev/tchelper/pkg/db"
)

const requestIDHeader = "X-Request-ID"

type Server struct {
	listenAddr      string
	defaultServerID string
	resolvers       map[string]*buildchain.Resolver
	config          *v1.HelperConfig
	db              *db.DB
	httpServer      *http.Server
}

// NewServer serves reports for the build servers behind resolvers. dbClient may be nil,
// which disables stored history.
func NewServer(listenAddr, defaultServerID string, resolvers map[string]*buildchain.Resolver, config *v1.HelperConfig, dbClient *db.DB) *Server {
	if config == nil {
		config = &v1.HelperConfig{}
	}
	return &Server{
		listenAddr:      listenAddr,
		defaultServerID: defaultServerID,
		resolvers:       resolvers,
		config:          config,
		db:              dbClient,
	}
}

func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(requestIDMiddleware)

	router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/api/chain/{suite}", s.jsonChainReport).Methods(http.MethodGet)
	router.HandleFunc("/api/history/{suite}", s.jsonHistoryReport).Methods(http.MethodGet)
	router.HandleFunc("/api/history/{suite}/stored", s.jsonStoredHistoryReport).Methods(http.MethodGet)

	return router
}

// Serve blocks until the server is shut down.
func (s *Server) Serve() error {
	s.httpServer = &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Infof("Serving reports on %s ", s.listenAddr)

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return errors.Wrap(err, "server exited")
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, req *http.Request) {
	servers := make([]string, 0, len(s.resolvers))
	for id := range s.resolvers {
		servers = append(servers, id)
	}
	respondWithJSON(http.StatusOK, w, map[string]interface{}{
		"status":  "ok",
		"servers": servers,
	})
}

// resolverFor returns the resolver selected by the "server" query parameter.
func (s *Server) resolverFor(req *http.Request) (string, *buildchain.Resolver, bool) {
	serverID := req.URL.Query().Get("server")
	if serverID == "" {
		serverID = s.defaultServerID
	}
	r, ok := s.resolvers[serverID]
	return serverID, r, ok
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := req.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		started := time.Now()
		next.ServeHTTP(w, req)
		log.WithFields(log.Fields{
			"request": id,
			"path":    req.URL.Path,
			"elapsed": time.Since(started),
		}).Debug("handled request")
	})
}

func respondWithJSON(statusCode int, w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warning("failed to encode response")
	}
}

func failureResponse(w http.ResponseWriter, code int, message string) {
	respondWithJSON(code, w, map[string]interface{}{
		"code":    code,
		"message": message,
	})
}

// boolParam parses an optional boolean query parameter.
func boolParam(req *http.Request, name string, defaultValue bool) (bool, error) {
	v := req.URL.Query().Get(name)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Errorf("invalid value %q for %s", v, name)
	}
	return b, nil
}

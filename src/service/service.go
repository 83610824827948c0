package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/remnetwork/dvm-miner/src/node"
	"github.com/sirupsen/logrus"
)

// Service is the local HTTP API for inspecting a running miner. It binds to
// the loopback interface by default and exposes read-only state.
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServerMux of
// the http package. It is possible that another server in the same process is
// simultaneously using the DefaultServerMux. In which case, the handlers will
// be accessible from both servers.
func (s *Service) registerHandlers() {
	http.Handle("/stats", s.makeHandler(s.makeStatsHandler))
	http.Handle("/state", s.makeHandler(s.makeStateHandler))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	})
}

// Serve registers the API handlers with the DefaultServerMux of the http
// package and starts listening.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving service")

	err := http.ListenAndServe(s.bindAddress, nil)
	if err != nil {
		s.logger.WithError(err).Error("Service failed")
	}
}

func (s *Service) makeStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.node.GetStats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.logger.WithError(err).Error("Encoding stats")
		http.Error(w, "encoding stats", http.StatusInternalServerError)
	}
}

func (s *Service) makeStateHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"state": s.node.GetState().String(),
	})
}

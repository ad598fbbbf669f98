// Package server is a development stand-in for the partner-state API: it
// serves the batched poll endpoint from an in-memory state document that can
// be mutated over HTTP to simulate partner progress.
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

type Server struct {
	Token string

	mu    sync.Mutex
	state map[string]json.RawMessage
}

func New(token string) *Server {
	return &Server{Token: token, state: make(map[string]json.RawMessage)}
}

// LoadState seeds the state document from a JSON file.
func (s *Server) LoadState(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var state map[string]json.RawMessage
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	return nil
}

func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/sync/state", s.bearerAuth(s.handleState))
	mux.HandleFunc("POST /api/dev/state", s.bearerAuth(s.handleSetState))

	log.Printf("Starting mock sync server on %s", addr)
	return http.ListenAndServe(addr, mux)
}

// handleState returns the state document with a serverTime stamp injected,
// matching the poll endpoint contract.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	doc := make(map[string]json.RawMessage, len(s.state)+1)
	for k, v := range s.state {
		doc[k] = v
	}
	s.mu.Unlock()

	ts, _ := json.Marshal(time.Now().UTC().Format(time.RFC3339))
	doc["serverTime"] = ts

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		log.Printf("serve: could not write state response: %v", err)
	}
}

// handleSetState replaces the state document. Development tool for
// simulating partner activity; not part of the production contract.
func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	var state map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) bearerAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Token == "" {
			next(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.Token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

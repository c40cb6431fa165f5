package store

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// Revision headers used by the HTTP store protocol.
const (
	HeaderRevision         = "X-Coview-Revision"
	HeaderPreviousRevision = "X-Coview-Previous-Revision"
)

// Server exposes a MemoryStore over HTTP so that clients on different
// machines can rendezvous without any cloud object store. Blobs live under
// /v1/blobs/{key}; /watch/{key} upgrades to a WebSocket that streams every
// committed revision (debugging aid, not part of the polling protocol).
type Server struct {
	store    *MemoryStore
	upgrader websocket.Upgrader
}

// NewServer creates a store server around the given MemoryStore.
func NewServer(store *MemoryStore) *Server {
	return &Server{
		store: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}
}

// Handler returns the HTTP handler for the store endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/blobs/", s.handleBlob)
	mux.HandleFunc("/watch/", s.handleWatch)
	return mux
}

// StartServer starts the store HTTP server.
func (s *Server) StartServer(addr string) error {
	log.Printf("Store server starting on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/v1/blobs/")
	if key == "" {
		http.Error(w, "Missing blob key", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		text, rev, err := s.store.Get(r.Context(), key)
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set(HeaderRevision, rev)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		io.WriteString(w, text)

	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Unreadable body", http.StatusBadRequest)
			return
		}
		prevRev := r.Header.Get(HeaderPreviousRevision)
		rev, err := s.store.Put(r.Context(), key, string(body), prevRev)
		if errors.Is(err, ErrRevisionMismatch) {
			http.Error(w, "Revision mismatch", http.StatusPreconditionFailed)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set(HeaderRevision, rev)
		w.WriteHeader(http.StatusOK)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleWatch streams blob revisions over a WebSocket.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/watch/")
	if key == "" {
		http.Error(w, "Missing blob key", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates := s.store.Watch(key)
	defer s.store.Unwatch(key, updates)

	// Send the current revision first so a watcher never starts blind.
	if text, rev, err := s.store.Get(r.Context(), key); err == nil {
		s.writeUpdate(conn, Update{Key: key, Rev: rev, Text: text})
	}

	// Drain the client side so we notice a disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if !s.writeUpdate(conn, update) {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) writeUpdate(conn *websocket.Conn, update Update) bool {
	data, err := json.Marshal(update)
	if err != nil {
		return false
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("Watch write error: %v", err)
		return false
	}
	return true
}

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/deckrelay/internal/button"
	"github.com/nerrad567/deckrelay/internal/room"
)

// handleUpdate stores a button config sent with POST (replace) or PATCH
// (shallow merge) and pushes its title and image to connected viewers.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
			return
		}
		writeBadRequest(w, "reading request body")
		return
	}

	u, err := button.DecodeUpdate(r.Method, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if err := s.rooms.Update(r.Context(), identity, u); err != nil {
		switch {
		case errors.Is(err, button.ErrInvalidConfig):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		case errors.Is(err, room.ErrRegistryClosed):
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "server shutting down")
		default:
			s.logger.Error("saving button config",
				"identity", identity,
				"coordinates", u.Coordinate().String(),
				"error", err,
				"request_id", r.Context().Value(ctxKeyRequestID),
			)
			writeInternalError(w, "failed to save button")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "saved",
		"coordinates": u.Coordinate(),
	})
}

// handleConnect upgrades to a viewer session for identity and serves it
// until either side closes. The identity comes from the path, or from
// the key query parameter on the root path as the deck bridge dials it.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	if identity == "" {
		identity = r.URL.Query().Get("key")
	}
	if identity == "" {
		writeBadRequest(w, "missing room identity")
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		writeError(w, http.StatusUpgradeRequired, ErrCodeUpgradeRequired, "connect with a WebSocket upgrade")
		return
	}

	sess := room.NewSession()
	actor, err := s.rooms.Join(r.Context(), identity, sess)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "room unavailable")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		actor.Leave(sess)
		s.logger.Debug("websocket upgrade failed", "identity", identity, "error", err)
		return
	}

	s.logger.Debug("viewer connected", "identity", identity, "session", sess.ID())
	sess.Serve(conn, s.socketCfg, func(msg []byte) {
		actor.Deliver(sess, msg)
	})
	actor.Leave(sess)
	s.logger.Debug("viewer disconnected", "identity", identity, "session", sess.ID())
}

// handleNew redirects to a freshly minted identity.
func (s *Server) handleNew(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/"+uuid.NewString(), http.StatusFound)
}

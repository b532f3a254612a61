// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package websocket

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/everly/internal/auth"
	"github.com/tomtom215/everly/internal/logging"
	"github.com/tomtom215/everly/internal/modules/guard"
)

// EventsObject is the authorization object of the event stream.
const EventsObject = "events"

// Handler upgrades authorized requests to event stream connections.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler creates a handler registering clients with hub. Cross-origin
// upgrades are accepted from origins; "*" accepts any origin.
func NewHandler(hub *Hub, origins []string) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
	}
}

// Routes returns the stream endpoint protected by g. Clients that cannot
// set headers pass the token as the access_token query parameter.
func (h *Handler) Routes(g *guard.Guard) http.Handler {
	r := chi.NewRouter()
	r.Use(g.Protect(EventsObject))
	r.Get("/", h.ServeHTTP)
	return r
}

// ServeHTTP upgrades the connection of the authenticated principal.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, p.UserID, p.IsAdmin())
	client.send <- Message{Type: MessageTypeConnected, Data: map[string]string{"user_id": p.UserID}}
	h.hub.Register <- client
	client.Start()
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.ToLower(strings.TrimSuffix(o, "/"))] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if allowed[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

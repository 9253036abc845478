// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
realtime_handlers.go - WebSocket Upgrade

GET /realtime/ws upgrades to a websocket and hands the connection to
realtime.Hub via a realtime.Client, which streams BroadcastSnapshot
pushes for the requested website (spec §4.I).
*/

package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/logging"
	"github.com/sparklytics/engine/internal/realtime"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleRealtimeWS implements GET /realtime/ws.
func (s *Server) HandleRealtimeWS(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	websiteID, err := parseWebsiteID(r)
	if err != nil {
		rw.Err(err)
		return
	}
	if !s.websites.Known(websiteID) {
		rw.Err(apperr.New(apperr.KindUnknownWebsite, "website_id is not recognized"))
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.CtxErr(r.Context(), err).Msg("websocket upgrade failed")
		return
	}

	client := realtime.NewClient(s.hub, conn, websiteID)
	s.hub.Register <- client
	client.Start()
}

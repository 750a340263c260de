package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/kavach/opsengine/internal/engine"
	"github.com/kavach/opsengine/pkg/streaming"
)

const maxClientMessage = 512

// handleStream pushes every snapshot and alert of a site until the client
// disconnects. Subscribing starts an idle site.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	site := mux.Vars(r)["site"]

	if err := s.svc.LoadSite(r.Context(), site); err != nil {
		s.respondErr(w, r, err)
		return
	}
	sub, err := s.svc.Engine().Subscribe(site)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		s.logger.Warn("WebSocket upgrade failed", "site", site, "error", err)
		return
	}
	defer conn.Close()

	s.logger.Info("Stream client connected", "site", site, "subscription", sub.ID(), "remote", r.RemoteAddr)
	done := s.readPump(conn)
	s.writePump(conn, sub, done)

	snaps, alerts := sub.Dropped()
	s.logger.Info("Stream client disconnected", "site", site, "subscription", sub.ID(),
		"droppedSnapshots", snaps, "droppedAlerts", alerts)
}

// readPump discards client messages and answers pongs. The returned channel
// closes when the client goes away.
func (s *Server) readPump(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})
	pongWait := 2 * s.opts.PingInterval

	conn.SetReadLimit(maxClientMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}

func (s *Server) writePump(conn *websocket.Conn, sub *engine.Subscription, done <-chan struct{}) {
	ping := time.NewTicker(s.opts.PingInterval)
	defer ping.Stop()

	for {
		var (
			env streaming.Envelope
			err error
		)
		select {
		case <-done:
			return
		case snap, ok := <-sub.Snapshots():
			if !ok {
				s.closeStream(conn, websocket.CloseGoingAway, "site closed")
				return
			}
			env, err = streaming.SnapshotEnvelope(snap)
		case a, ok := <-sub.Alerts():
			if !ok {
				s.closeStream(conn, websocket.CloseGoingAway, "site closed")
				return
			}
			env, err = streaming.AlertEnvelope(a)
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteTimeout)); err != nil {
				return
			}
			continue
		}
		if err != nil {
			s.logger.Error("Encoding stream message", "site", sub.SiteID(), "error", err)
			continue
		}

		if err := conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			return
		}
		if err := conn.WriteJSON(env); err != nil {
			s.logger.Debug("Stream write failed", "site", sub.SiteID(), "error", err)
			return
		}
	}
}

func (s *Server) closeStream(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(s.opts.WriteTimeout))
}

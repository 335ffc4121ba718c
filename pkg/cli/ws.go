package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"golang.org/x/net/websocket"

	"github.com/mchmarny/pulse/pkg/intel"
)

const (
	alertMessageType    = "critical_alerts"
	wsWriteTimeout      = 10 * time.Second
	defaultAlertSeconds = 30
)

type alert struct {
	Pincode    int     `json:"pincode"`
	District   string  `json:"district"`
	State      string  `json:"state"`
	Governance float64 `json:"governance_risk_score"`
	RiskLevel  string  `json:"risk_level"`
	Type       string  `json:"anomaly_type"`
}

type alertMessage struct {
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	CriticalCount int       `json:"critical_count"`
	Alerts        []alert   `json:"alerts"`
}

func alertsHandler(s *server) http.Handler {
	ws := websocket.Server{
		Handshake: s.checkOrigin,
		Handler:   s.streamAlerts,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.WebSocket.Enabled {
			writeError(w, http.StatusNotFound, "websocket alerts are disabled")
			return
		}
		ws.ServeHTTP(w, r)
	})
}

// checkOrigin accepts clients without an Origin header and browsers from
// the configured CORS origins.
func (s *server) checkOrigin(cfg *websocket.Config, r *http.Request) error {
	origin, err := websocket.Origin(cfg, r)
	if err != nil {
		return fmt.Errorf("invalid origin: %w", err)
	}
	cfg.Origin = origin
	if origin == nil || slices.Contains(s.cfg.Server.CORSOrigins, "*") {
		return nil
	}
	if slices.Contains(s.cfg.Server.CORSOrigins, origin.String()) {
		return nil
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func (s *server) alertMessage() *alertMessage {
	rows := s.ds.CriticalAlerts(s.cfg.WebSocket.AlertLimit)
	msg := &alertMessage{
		Type:          alertMessageType,
		Timestamp:     time.Now().UTC(),
		CriticalCount: len(rows),
		Alerts:        make([]alert, 0, len(rows)),
	}
	for _, p := range rows {
		msg.Alerts = append(msg.Alerts, alert{
			Pincode:    p.Pincode,
			District:   p.District,
			State:      p.State,
			Governance: p.Governance,
			RiskLevel:  p.RiskLevel,
			Type:       intel.AnomalyType(p),
		})
	}
	return msg
}

// streamAlerts sends the critical pincodes on connect and then on every
// alert interval until the client goes away.
func (s *server) streamAlerts(conn *websocket.Conn) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the stream is push only, reads just detect the close
	go func() {
		defer cancel()
		var discard []byte
		for {
			if err := websocket.Message.Receive(conn, &discard); err != nil {
				return
			}
		}
	}()

	interval := s.cfg.WebSocket.AlertInterval
	if interval <= 0 {
		interval = defaultAlertSeconds * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	remote := conn.Request().RemoteAddr
	slog.Debug("alert stream opened", "remote", remote)
	for {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return
		}
		if err := websocket.JSON.Send(conn, s.alertMessage()); err != nil {
			slog.Debug("alert stream closed", "remote", remote, "error", err)
			return
		}
		select {
		case <-ctx.Done():
			slog.Debug("alert stream closed", "remote", remote)
			return
		case <-ticker.C:
		}
	}
}

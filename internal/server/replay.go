package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/shaunagostinho/igc2kml/internal/geodesy"
	"github.com/shaunagostinho/igc2kml/internal/igc"
)

// ReplayFrame is the JSON structure sent to replay clients, one per fix.
type ReplayFrame struct {
	Index      int      `json:"index"`
	Total      int      `json:"total"`
	Fix        *igc.Fix `json:"fix,omitempty"`
	DistanceKm float64  `json:"distanceKm"`
	Time       int64    `json:"time,omitempty"` // Unix ms of the fix
	Done       bool     `json:"done,omitempty"`
	Error      string   `json:"error,omitempty"`
	Stamp      int64    `json:"stamp"` // Unix ms
}

// handleReplay reads one IGC log from the client and streams its fixes
// back at the configured replay interval.
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithField("component", "ws").Warnf("upgrade error: %v", err)
		return
	}
	defer conn.Close()

	settings := s.cfg.ServerSettings()
	conn.SetReadLimit(settings.MaxUploadBytes)
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return
	}

	flight, err := igc.Parse(string(msg))
	if err != nil {
		conn.WriteJSON(ReplayFrame{Error: err.Error(), Stamp: time.Now().UnixMilli()})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader goroutine notices the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := time.Duration(settings.ReplayIntervalMs) * time.Millisecond
	if err := replay(ctx, conn, flight, interval); err != nil {
		log.WithField("component", "ws").Debugf("replay ended: %v", err)
	}
}

type frameWriter interface {
	WriteJSON(v interface{}) error
}

func replay(ctx context.Context, conn frameWriter, flight *igc.FlightLog, interval time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	stamps := flight.Timestamps()
	total := len(flight.Fixes)
	var dist float64
	for i := range flight.Fixes {
		if i > 0 {
			dist += geodesy.Distance(flight.Fixes[i-1].Position, flight.Fixes[i].Position)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
		frame := ReplayFrame{
			Index:      i,
			Total:      total,
			Fix:        &flight.Fixes[i],
			DistanceKm: dist,
			Time:       stamps[i].UnixMilli(),
			Stamp:      time.Now().UnixMilli(),
		}
		if err := conn.WriteJSON(frame); err != nil {
			return err
		}
	}
	return conn.WriteJSON(ReplayFrame{Total: total, DistanceKm: dist, Done: true, Stamp: time.Now().UnixMilli()})
}

var _ frameWriter = (*websocket.Conn)(nil)

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"risk-engine/internal/ensemble"
	"risk-engine/internal/features"
)

const (
	streamReadLimit    = 64 * 1024
	streamWriteTimeout = 10 * time.Second
)

// StreamMessage is one reply frame on the fraud stream.
type StreamMessage struct {
	Outcome    string                    `json:"outcome"`
	Assessment *ensemble.FraudAssessment `json:"assessment,omitempty"`
	Error      string                    `json:"error,omitempty"`
}

// handleFraudStream scores one JSON transaction per text frame and
// answers each with a StreamMessage. The server pings every StreamPing;
// a client that misses two pongs is dropped.
func (s *Server) handleFraudStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	s.metrics.StreamClientsAdd(1)
	defer s.metrics.StreamClientsAdd(-1)

	ping := s.opts.StreamPing
	conn.SetReadLimit(streamReadLimit)
	conn.SetReadDeadline(time.Now().Add(2 * ping))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * ping))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(ping)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(streamWriteTimeout)); err != nil {
					log.Debug().Err(err).Msg("Stream ping failed")
					return
				}
			case <-done:
				return
			}
		}
	}()

	log.Info().Str("remote", r.RemoteAddr).Msg("Fraud stream client connected")
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("Fraud stream closed unexpectedly")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(2 * ping))

		var reply StreamMessage
		var t features.Transaction
		if err := json.Unmarshal(msg, &t); err != nil {
			reply = StreamMessage{Outcome: ensemble.OutcomeInvalidInput.String(), Error: "invalid transaction JSON: " + err.Error()}
		} else {
			res := s.fraud.Score(t)
			reply = StreamMessage{Outcome: res.Outcome.String(), Assessment: res.Fraud}
			if res.Err != nil {
				reply.Error = res.Err.Error()
			}
		}

		conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			log.Debug().Err(err).Msg("Stream write failed")
			return
		}
	}
}

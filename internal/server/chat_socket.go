package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/efiadm/api-categorizer-aggr/internal/errors"
	"github.com/efiadm/api-categorizer-aggr/internal/logger"
	"github.com/efiadm/api-categorizer-aggr/internal/router"
)

const (
	writeWait      = 10 * time.Second
	maxSocketFrame = maxBodyBytes
)

// handleChatSocket answers questions sent as {"question":...} frames. Each
// question produces phase frames followed by one message or error frame.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.log.WithError(err).Debug("Chat socket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxSocketFrame)

	log := s.log.WithField("conn", uuid.NewString())
	log.Debug("Chat socket connected")

	// The reader cancels ctx when the peer goes away, which abandons the
	// question in flight and frees the chat slot.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan []byte)
	go func() {
		defer close(frames)
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.WithError(err).Warn("Chat socket closed unexpectedly")
				}
				log.Debug("Chat socket disconnected")
				return
			}
			select {
			case frames <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for data := range frames {
		var req ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if werr := s.writeFrame(conn, errorFrame(errors.NewValidationError("server", "invalid frame"))); werr != nil {
				return
			}
			continue
		}

		if err := s.answer(ctx, conn, log, req.Question); err != nil {
			log.WithError(err).Debug("Chat socket write failed")
			return
		}
	}
}

// answer runs one question and streams its frames. The returned error is a
// write failure; answer errors are sent as frames.
func (s *Server) answer(ctx context.Context, conn *websocket.Conn, log *logger.Logger, question string) error {
	var writeErr error
	observe := func(p router.Phase) {
		if writeErr == nil {
			writeErr = s.writeFrame(conn, Frame{Type: FramePhase, Phase: p})
		}
	}

	ex, err := s.explorer.Ask(ctx, question, observe)
	if writeErr != nil {
		return writeErr
	}

	switch {
	case ex != nil:
		frame := Frame{Type: FrameMessage, Exchange: ex}
		if err != nil {
			frame.Warning = err.Error()
		}
		return s.writeFrame(conn, frame)
	case err != nil:
		log.WithError(err).Debug("Question rejected")
		return s.writeFrame(conn, errorFrame(err))
	default:
		// Blank questions are ignored.
		return nil
	}
}

func errorFrame(err error) Frame {
	e := errors.Categorize(err, "server")
	status, code := statusFor(e)
	return Frame{
		Type: FrameError,
		Error: &ErrorResponse{
			Code:      code,
			Message:   e.Message,
			Stage:     e.Stage,
			Timestamp: time.Now().UTC(),
			Retryable: status == http.StatusConflict || status == http.StatusGatewayTimeout,
		},
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, f Frame) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}

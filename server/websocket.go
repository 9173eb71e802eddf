package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/xhad/docbot/pkg/extract"
	"github.com/xhad/docbot/pkg/session"
	"go.uber.org/zap"
)

// Message is the websocket frame in both directions. Clients send
// {"type":"question"}; the server replies with "start", any number of
// "stream" pieces, then "response" or "error".
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	id := c.Value
	if _, err := s.sessions.Get(id); err != nil {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		if msg.Type != "question" {
			s.send(conn, "error", "Unsupported message type.")
			continue
		}
		// Questions are answered one at a time; writes on conn are not concurrent.
		s.answer(r, conn, id, msg.Content)
	}
}

func (s *Server) answer(r *http.Request, conn *websocket.Conn, id, question string) {
	if strings.TrimSpace(question) == "" {
		s.send(conn, "error", "Please type a question.")
		return
	}

	lease, err := s.sessions.Lease(id)
	if errors.Is(err, session.ErrNotFound) {
		s.send(conn, "error", "Your session has expired. Reload the page and upload the PDF again.")
		return
	}
	if err != nil {
		s.send(conn, "error", "Upload a PDF before asking a question.")
		return
	}
	defer lease.Release()

	if !s.send(conn, "start", "") {
		return
	}
	answer, err := s.extractor.Ask(r.Context(), lease.Retriever, question, func(piece string) error {
		return conn.WriteJSON(Message{Type: "stream", Content: piece})
	})
	if err != nil {
		s.logger.Warn("question failed", zap.String("session", id), zap.Error(err))
		s.send(conn, "error", userMessage(err, extract.AskYourPDF))
		return
	}
	s.send(conn, "response", answer)
}

func (s *Server) send(conn *websocket.Conn, msgType, content string) bool {
	if err := conn.WriteJSON(Message{Type: msgType, Content: content}); err != nil {
		s.logger.Debug("websocket write failed", zap.Error(err))
		return false
	}
	return true
}

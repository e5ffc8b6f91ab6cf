package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/atlasdocs/atlaschat/models"
	"github.com/atlasdocs/atlaschat/protocol"
	"github.com/atlasdocs/atlaschat/sessions"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the proxy in front
	},
}

// WSFrameWriter sends encoded event frames as websocket text messages. The
// mutex serializes writes; gorilla allows one concurrent writer.
type WSFrameWriter struct {
	Conn *websocket.Conn
	mu   sync.Mutex
}

func (w *WSFrameWriter) WriteEvent(ev models.StreamEvent) error {
	frame, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteMessage(websocket.TextMessage, frame)
}

func (w *WSFrameWriter) Flush() {}

// handleChatWS carries the same chat turns over a websocket: each inbound
// text message is one Chat_Request, answered with the turn's frame sequence.
// Turns run one at a time; the read loop only resumes after the terminal
// frame is written.
func (s *Server) handleChatWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	user := userID(c)
	writer := &WSFrameWriter{Conn: conn}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.Logger.Printf("WebSocket read error: %v", err)
			}
			return
		}

		var req models.Chat_Request
		if err := json.Unmarshal(payload, &req); err != nil || req.Message == "" {
			if err := writer.WriteEvent(models.ErrorEvent("invalid chat request")); err != nil {
				s.Logger.Printf("Error writing to websocket: %v", err)
			}
			continue
		}

		conversationID := req.Conversation_ID
		if conversationID == "" {
			conversationID = uuid.NewString()
			if err := s.Store.CreateConversation(conversationID, user); err != nil {
				s.Logger.Printf("Error creating conversation: %v", err)
				if err := writer.WriteEvent(models.ErrorEvent("failed to create conversation")); err != nil {
					s.Logger.Printf("Error writing to websocket: %v", err)
				}
				continue
			}
		} else if convo, err := s.Store.GetConversation(conversationID); err != nil || convo.UserID != user {
			if err := writer.WriteEvent(models.ErrorEvent("conversation not found")); err != nil {
				s.Logger.Printf("Error writing to websocket: %v", err)
			}
			continue
		}

		session := sessions.NewChatSession(conversationID, user, s.Model, s.Resolver, s.Store)
		if err := session.RunStreamWriter(c.Request.Context(), req, writer); err != nil {
			return
		}
	}
}

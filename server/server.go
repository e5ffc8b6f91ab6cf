package server

import (
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/atlasdocs/atlaschat/models"
	"github.com/atlasdocs/atlaschat/sessions"
	"github.com/atlasdocs/atlaschat/stores"
)

// Server wires the chat endpoints over gin. One Server serves one knowledge
// source: all conversations stream against the same model client and
// citation resolver.
type Server struct {
	Router   *gin.Engine
	Model    sessions.ModelClient
	Resolver sessions.CitationResolver
	Store    stores.MessageStore
	Logger   *log.Logger
}

// New builds a Server with all routes registered.
func New(model sessions.ModelClient, resolver sessions.CitationResolver, store stores.MessageStore) *Server {
	s := &Server{
		Router:   gin.Default(),
		Model:    model,
		Resolver: resolver,
		Store:    store,
		Logger:   log.New(os.Stdout, "[SERVER] ", log.LstdFlags),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.Router.GET("/healthz", s.handleHealthz)

	r := s.Router.Group("/api/v1")
	r.POST("/chat/stream", s.handleChatStream)
	r.GET("/chat/ws", s.handleChatWS)
	r.GET("/conversations", s.handleListConversations)
	r.GET("/conversations/:conversationID", s.handleGetConversation)
	r.PUT("/conversations/:conversationID/title", s.handleUpdateTitle)
	r.DELETE("/conversations/:conversationID", s.handleDeleteConversation)
}

// Run starts the HTTP server on the given address.
func (s *Server) Run(addr string) error {
	return s.Router.Run(addr)
}

// userID reads the caller identity from the X-User-ID header. Auth lives in
// front of this service; an absent header maps to the anonymous user.
func userID(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return "anonymous"
}

func (s *Server) handleHealthz(c *gin.Context) {
	if err := s.Store.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleChatStream runs one chat turn and streams the event frames back as
// an event-stream response body.
func (s *Server) handleChatStream(c *gin.Context) {
	var req models.Chat_Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	user := userID(c)
	conversationID := req.Conversation_ID
	if conversationID == "" {
		conversationID = uuid.NewString()
		if err := s.Store.CreateConversation(conversationID, user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
			return
		}
	} else if _, ok := s.authorizeConversation(c, conversationID, user); !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	// The client needs the id before the first frame to route later turns.
	c.Header("X-Conversation-ID", conversationID)

	session := sessions.NewChatSession(conversationID, user, s.Model, s.Resolver, s.Store)
	writer := &FrameWriter{Context: c}

	if err := session.RunStreamWriter(c.Request.Context(), req, writer); err != nil {
		// Connection gone mid-stream; nothing left to send.
		s.Logger.Printf("Stream to client aborted: %v", err)
	}
}

func (s *Server) handleListConversations(c *gin.Context) {
	infos, err := s.Store.ListConversationsForUser(userID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	conversations := make([]models.ConversationResponse, 0, len(infos))
	for _, info := range infos {
		conversations = append(conversations, models.ConversationResponse{
			ConversationID: info.ConversationID,
			UserID:         info.UserID,
			Title:          info.Title,
			MessageCount:   info.MessageCount,
			CreatedAt:      info.CreatedAt,
			UpdatedAt:      info.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (s *Server) handleGetConversation(c *gin.Context) {
	conversationID := c.Param("conversationID")
	convo, ok := s.authorizeConversation(c, conversationID, userID(c))
	if !ok {
		return
	}

	history, err := s.Store.FetchHistory(conversationID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	messages := make([]models.ChatMessageResponse, 0, len(history))
	for _, msg := range history {
		messages = append(messages, models.ChatMessageResponse{
			ID:             msg.ID,
			CreatedAt:      msg.CreatedAt,
			ConversationID: msg.ConversationID,
			Sequence:       msg.Sequence,
			Role:           msg.Role,
			Text:           msg.Content,
			Citations:      msg.Citations(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": convo.ConversationID,
		"title":           convo.Title,
		"messages":        messages,
	})
}

func (s *Server) handleUpdateTitle(c *gin.Context) {
	conversationID := c.Param("conversationID")
	if _, ok := s.authorizeConversation(c, conversationID, userID(c)); !ok {
		return
	}

	var req models.TitleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	if err := s.Store.UpdateConversationTitle(conversationID, req.Title); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "title": req.Title})
}

func (s *Server) handleDeleteConversation(c *gin.Context) {
	conversationID := c.Param("conversationID")
	if _, ok := s.authorizeConversation(c, conversationID, userID(c)); !ok {
		return
	}

	if err := s.Store.DeleteConversation(conversationID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": conversationID})
}

// authorizeConversation checks the conversation exists and belongs to the
// caller, returning the fetched record so handlers don't refetch it. A
// foreign conversation reads as not found so ids don't leak.
func (s *Server) authorizeConversation(c *gin.Context, conversationID, user string) (*stores.Conversation, bool) {
	convo, err := s.Store.GetConversation(conversationID)
	if err != nil || convo.UserID != user {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return nil, false
	}
	return convo, true
}

package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"llm-chat/internal/domain"
	"llm-chat/internal/llm"
	"llm-chat/internal/repository"
	"llm-chat/internal/service"
)

// ChatHandler mantiene dependencias para endpoints de sesiones, mensajes
// y modelos.
type ChatHandler struct {
	logger  *zap.Logger
	history repository.ChatHistory
	chatSvc *service.ChatService
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(logger *zap.Logger, history repository.ChatHistory, chatSvc *service.ChatService) *ChatHandler {
	return &ChatHandler{
		logger:  logger,
		history: history,
		chatSvc: chatSvc,
	}
}

// CreateSession maneja POST /sessions. El body es opcional.
func (h *ChatHandler) CreateSession(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	_ = c.ShouldBindJSON(&req)

	id, err := h.history.CreateSession(c.Request.Context(), req.Name)
	if err != nil {
		h.logger.Error("create session failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":      id,
		"session": h.history.GetSessionInfo(c.Request.Context(), id),
	})
}

// ListSessions maneja GET /sessions.
func (h *ChatHandler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sessions": h.history.ListSessions(c.Request.Context()),
	})
}

// GetSession maneja GET /sessions/:id. Una sesión inexistente devuelve el
// registro por defecto, nunca un error: la UI siempre tiene qué renderizar.
func (h *ChatHandler) GetSession(c *gin.Context) {
	id := c.Param("id")
	c.JSON(http.StatusOK, gin.H{
		"id":      id,
		"session": h.history.GetSessionInfo(c.Request.Context(), id),
	})
}

// GetMessages maneja GET /sessions/:id/messages.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	messages, err := h.history.GetMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Warn("get messages failed", zap.Error(err))
		messages = []domain.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// RenameSession maneja PUT /sessions/:id/name.
func (h *ChatHandler) RenameSession(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if !h.history.RenameSession(c.Request.Context(), c.Param("id"), req.Name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not rename session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"renamed": true})
}

// DeleteSession maneja DELETE /sessions/:id.
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	if !h.history.DeleteSession(c.Request.Context(), c.Param("id")) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ClearSessions maneja DELETE /sessions.
func (h *ChatHandler) ClearSessions(c *gin.Context) {
	if !h.history.ClearAllSessions(c.Request.Context()) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not clear sessions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// ListModels maneja GET /models. Nunca devuelve un conjunto vacío.
func (h *ChatHandler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models": h.chatSvc.Models(c.Request.Context()),
	})
}

// PostMessage maneja POST /sessions/:id/messages. Con stream=true la
// respuesta pasa a server-sent events: eventos "delta" con el parcial
// acumulado, "done" con el turno persistido o "error" con el parcial
// alcanzado.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req struct {
		Content     string   `json:"content" binding:"required"`
		Model       string   `json:"model"`
		Temperature *float64 `json:"temperature"`
		MaxTokens   int      `json:"max_tokens"`
		Stream      bool     `json:"stream"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	opts := service.GenerateOptions{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	sessionID := c.Param("id")

	if req.Stream {
		h.streamTurn(c, sessionID, req.Content, opts)
		return
	}

	turn, err := h.chatSvc.Send(c.Request.Context(), sessionID, req.Content, opts, nil)
	if err != nil {
		h.turnError(c, err)
		return
	}
	c.JSON(http.StatusCreated, turn)
}

func (h *ChatHandler) streamTurn(c *gin.Context, sessionID, content string, opts service.GenerateOptions) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	turn, err := h.chatSvc.Send(c.Request.Context(), sessionID, content, opts, func(partial string) {
		c.SSEvent("delta", gin.H{"content": partial})
		c.Writer.Flush()
	})
	if err != nil {
		h.logger.Error("streaming turn failed", zap.String("session_id", sessionID), zap.Error(err))
		payload := gin.H{"error": err.Error()}
		var genErr *service.GenerationError
		if errors.As(err, &genErr) && genErr.Partial != "" {
			payload["partial"] = genErr.Partial
		}
		c.SSEvent("error", payload)
		c.Writer.Flush()
		return
	}

	c.SSEvent("done", turn)
	c.Writer.Flush()
}

func (h *ChatHandler) turnError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyPrompt),
		errors.Is(err, repository.ErrInvalidSession),
		errors.Is(err, repository.ErrInvalidMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrTurnInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "a response is already being generated for this session"})
	case errors.Is(err, llm.ErrConnection):
		h.logger.Error("backend unreachable", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "inference backend unreachable"})
	default:
		h.logger.Error("turn failed", zap.Error(err))
		payload := gin.H{"error": "could not generate response"}
		var genErr *service.GenerationError
		if errors.As(err, &genErr) && genErr.Partial != "" {
			payload["partial"] = genErr.Partial
		}
		c.JSON(http.StatusBadGateway, payload)
	}
}

package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/researchmate-backend/internal/chatstream"
	"github.com/yungbote/researchmate-backend/internal/http/response"
	"github.com/yungbote/researchmate-backend/internal/requestdata"
)

type ChatStreamHandler struct {
	orchestrator chatstream.Orchestrator
}

func NewChatStreamHandler(orchestrator chatstream.Orchestrator) *ChatStreamHandler {
	return &ChatStreamHandler{orchestrator: orchestrator}
}

type streamChatReq struct {
	ChatID    *string `json:"chatId"`
	Message   string  `json:"message"`
	ChatTitle string  `json:"chatTitle"`
	ToolMode  string  `json:"toolMode"`
}

// POST /api/chat/stream
//
// Validation failures are rejected with a JSON error before any stream bytes
// are written; once the NDJSON stream starts, all errors travel as stream
// events.
func (h *ChatStreamHandler) Stream(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing authenticated user"))
		return
	}

	var req streamChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("message is required"))
		return
	}
	if req.ToolMode != "" && !chatstream.ValidToolMode(req.ToolMode) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request",
			fmt.Errorf("unknown toolMode %q", req.ToolMode))
		return
	}

	var chatID *uuid.UUID
	if req.ChatID != nil && strings.TrimSpace(*req.ChatID) != "" {
		id, err := uuid.Parse(*req.ChatID)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_chat_id", err)
			return
		}
		chatID = &id
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	em := chatstream.NewNDJSONEmitter(c.Writer)
	h.orchestrator.Stream(c.Request.Context(), chatstream.StreamRequest{
		UserID:    rd.UserID,
		ChatID:    chatID,
		Message:   req.Message,
		ChatTitle: req.ChatTitle,
		ToolMode:  req.ToolMode,
	}, em)
}

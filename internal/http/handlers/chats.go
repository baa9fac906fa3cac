package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/researchmate-backend/internal/http/response"
	"github.com/yungbote/researchmate-backend/internal/platform/dbctx"
	"github.com/yungbote/researchmate-backend/internal/platform/logger"
	"github.com/yungbote/researchmate-backend/internal/repos"
	"github.com/yungbote/researchmate-backend/internal/requestdata"
)

type ChatsHandler struct {
	log       *logger.Logger
	chats     repos.ChatRepo
	messages  repos.ChatMessageRepo
	artifacts repos.ChatArtifactRepo
}

func NewChatsHandler(log *logger.Logger, chats repos.ChatRepo, messages repos.ChatMessageRepo, artifacts repos.ChatArtifactRepo) *ChatsHandler {
	return &ChatsHandler{
		log:       log.With("handler", "ChatsHandler"),
		chats:     chats,
		messages:  messages,
		artifacts: artifacts,
	}
}

func authedUser(c *gin.Context) (uuid.UUID, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing authenticated user"))
		return uuid.Nil, false
	}
	return rd.UserID, true
}

// GET /api/chats
func (h *ChatsHandler) List(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	chats, err := h.chats.ListByUser(dbc, userID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_chats_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"chats": chats})
}

// GET /api/chats/:id/messages?limit=200
func (h *ChatsHandler) ListMessages(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_chat_id", err)
		return
	}
	limit := 0
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	chatRow, err := h.chats.GetByID(dbc, userID, chatID)
	if err != nil {
		response.RespondError(c, http.StatusNotFound, "chat_not_found", err)
		return
	}
	msgs, err := h.messages.ListByChat(dbc, chatRow.ID, limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_messages_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"chat": chatRow, "messages": msgs})
}

type updateChatReq struct {
	ChatName  *string `json:"chatName"`
	IsStarred *bool   `json:"isStarred"`
}

// PATCH /api/chats/:id
func (h *ChatsHandler) Update(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_chat_id", err)
		return
	}
	var req updateChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	updates := map[string]interface{}{}
	if req.ChatName != nil {
		name := strings.TrimSpace(*req.ChatName)
		if name == "" {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("chatName cannot be empty"))
			return
		}
		updates["chat_name"] = name
	}
	if req.IsStarred != nil {
		updates["is_starred"] = *req.IsStarred
	}
	if len(updates) == 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("no fields to update"))
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	if _, err := h.chats.GetByID(dbc, userID, chatID); err != nil {
		response.RespondError(c, http.StatusNotFound, "chat_not_found", err)
		return
	}
	if err := h.chats.UpdateFields(dbc, userID, chatID, updates); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "update_chat_failed", err)
		return
	}
	updated, err := h.chats.GetByID(dbc, userID, chatID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "update_chat_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"chat": updated})
}

// DELETE /api/chats/:id
//
// Removes the chat and everything hanging off it. Message and artifact rows go
// first so a failure never leaves orphans pointing at a deleted chat.
func (h *ChatsHandler) Delete(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_chat_id", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	if _, err := h.chats.GetByID(dbc, userID, chatID); err != nil {
		response.RespondError(c, http.StatusNotFound, "chat_not_found", err)
		return
	}
	if err := h.messages.DeleteByChat(dbc, chatID); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "delete_chat_failed", err)
		return
	}
	if err := h.artifacts.DeleteByChat(dbc, chatID); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "delete_chat_failed", err)
		return
	}
	if err := h.chats.Delete(dbc, userID, chatID); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "delete_chat_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": true})
}

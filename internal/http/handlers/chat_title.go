package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/researchmate-backend/internal/chatstream"
	"github.com/yungbote/researchmate-backend/internal/http/response"
)

type ChatTitleHandler struct {
	titles chatstream.TitleService
}

func NewChatTitleHandler(titles chatstream.TitleService) *ChatTitleHandler {
	return &ChatTitleHandler{titles: titles}
}

type chatTitleReq struct {
	Message string `json:"message"`
}

// POST /api/chat/title
//
// Never errors to the caller. Anything that goes wrong, including an
// unparseable body, resolves to the fallback title.
func (h *ChatTitleHandler) Generate(c *gin.Context) {
	var req chatTitleReq
	_ = c.ShouldBindJSON(&req)
	title, didFallback := h.titles.Generate(c.Request.Context(), req.Message)
	response.RespondOK(c, gin.H{"title": title, "didFallback": didFallback})
}

package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/datingchat-server/internal/core"
	"github.com/vovakirdan/datingchat-server/internal/messages"
	"github.com/vovakirdan/datingchat-server/internal/proto"
	"github.com/vovakirdan/datingchat-server/internal/store"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// MessageHandlers serves the REST mailbox and presence endpoints.
type MessageHandlers struct {
	orch *core.Orchestrator
	log  *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(orch *core.Orchestrator, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{orch: orch, log: logger}
}

type pageQuery struct {
	Container  string `form:"container"`
	PageNumber int    `form:"page_number" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1"`
}

func currentUser(c *gin.Context) string {
	return c.GetString(ContextKeyUsername)
}

func (h *MessageHandlers) writeError(c *gin.Context, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: core.CodeOf(err)})
}

// SendMessage handles sending a message outside a websocket session.
// POST /api/messages
func (h *MessageHandlers) SendMessage(c *gin.Context) {
	var req proto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeValidation})
		return
	}

	msg, err := h.orch.SendMessage(c.Request.Context(), currentUser(c), req.RecipientUsername, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, messageToProto(msg))
}

// ListMessages returns one page of the caller's inbox, outbox or unread view.
// GET /api/messages
func (h *MessageHandlers) ListMessages(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid paging parameters", Code: core.ErrCodeValidation})
		return
	}

	page, err := h.orch.GetPage(c.Request.Context(), messages.Params{
		Container:  store.Container(q.Container),
		Username:   currentUser(c),
		PageNumber: q.PageNumber,
		PageSize:   q.PageSize,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	pagination := proto.Pagination{
		CurrentPage:  page.CurrentPage,
		ItemsPerPage: page.PageSize,
		TotalItems:   page.TotalCount,
		TotalPages:   page.TotalPages,
	}
	if header, err := json.Marshal(pagination); err == nil {
		c.Header("Pagination", string(header))
	}
	c.JSON(http.StatusOK, proto.MessagePage{
		Items:      messagesToProto(page.Items),
		Pagination: pagination,
	})
}

// GetThread returns the conversation with another user and marks the
// caller's unread messages read.
// GET /api/messages/thread/:username
func (h *MessageHandlers) GetThread(c *gin.Context) {
	thread, err := h.orch.GetThread(c.Request.Context(), currentUser(c), c.Param("username"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, messagesToProto(thread))
}

// DeleteMessage hides a message from the caller.
// DELETE /api/messages/:id
func (h *MessageHandlers) DeleteMessage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id", Code: core.ErrCodeValidation})
		return
	}

	if err := h.orch.DeleteMessage(c.Request.Context(), id, currentUser(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// OnlineUsers lists online usernames.
// GET /api/presence/online
func (h *MessageHandlers) OnlineUsers(c *gin.Context) {
	c.JSON(http.StatusOK, proto.OnlineUsers{Users: h.orch.GetOnlineUsers()})
}

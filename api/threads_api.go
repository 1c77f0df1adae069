package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"inference-gateway/common"
	"inference-gateway/domain"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
)

type CreateThreadRequest struct {
	MetaData map[string]interface{} `json:"metaData"`
}

func (ctrl *Controller) CreateThreadHandler(c *gin.Context) {
	var req CreateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}

	now := time.Now().UTC()
	thread := domain.Thread{
		Id:          "thread_" + ksuid.New().String(),
		WorkspaceId: workspaceId(c),
		MetaData:    req.MetaData,
		Created:     now,
		Updated:     now,
	}
	if err := ctrl.Storage.PersistThread(c.Request.Context(), thread); err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, thread)
}

func (ctrl *Controller) GetThreadHandler(c *gin.Context) {
	thread, err := ctrl.Storage.GetThread(c.Request.Context(), workspaceId(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			ctrl.ErrorHandler(c, http.StatusNotFound, err)
		} else {
			ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, thread)
}

func (ctrl *Controller) DeleteThreadHandler(c *gin.Context) {
	if err := ctrl.Storage.DeleteThread(c.Request.Context(), workspaceId(c), c.Param("id")); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			ctrl.ErrorHandler(c, http.StatusNotFound, err)
		} else {
			ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "thread deleted"})
}

const defaultMessagePageSize = 50

func (ctrl *Controller) GetMessagesHandler(c *gin.Context) {
	limit := defaultMessagePageSize
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	messages, err := ctrl.Storage.GetTrailingMessages(c.Request.Context(), workspaceId(c), c.Param("id"), limit)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type CreateMessageRequest struct {
	Role        string `json:"role" binding:"required"`
	Content     string `json:"content" binding:"required"`
	AssistantId string `json:"assistantId"`
	SenderId    string `json:"senderId"`
}

// CreateMessageHandler appends a message to a thread's history directly,
// for consumer-authored turns (eg the user prompt a subsequent
// POST /v1/completions references by message_id).
func (ctrl *Controller) CreateMessageHandler(c *gin.Context) {
	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}

	message := domain.Message{
		Id:          "msg_" + ksuid.New().String(),
		ThreadId:    c.Param("id"),
		Role:        domain.NormalizeMessageRole(req.Role),
		Content:     req.Content,
		AssistantId: req.AssistantId,
		SenderId:    req.SenderId,
		CreatedAt:   time.Now().UTC(),
	}
	if err := ctrl.Storage.AppendMessage(c.Request.Context(), message); err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

package api

import (
	"errors"
	"net/http"
	"time"

	"inference-gateway/common"
	"inference-gateway/domain"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
)

type AssistantRequest struct {
	Model         string                 `json:"model" binding:"required"`
	Instructions  string                 `json:"instructions"`
	Tools         []*domain.Tool         `json:"tools"`
	ToolResources domain.ToolResourceSet `json:"toolResources"`
}

// CreateAssistantHandler implements the Assistant-CRUD surface spec §6 names
// alongside Thread/Message/Action/API-key CRUD.
func (ctrl *Controller) CreateAssistantHandler(c *gin.Context) {
	var req AssistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}

	now := time.Now().UTC()
	assistant := domain.Assistant{
		Id:            "asst_" + ksuid.New().String(),
		WorkspaceId:   workspaceId(c),
		Model:         req.Model,
		Instructions:  req.Instructions,
		Tools:         req.Tools,
		ToolResources: req.ToolResources,
		Created:       now,
		Updated:       now,
	}
	if err := ctrl.Storage.PersistAssistant(c.Request.Context(), assistant); err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, assistant)
}

func (ctrl *Controller) GetAssistantHandler(c *gin.Context) {
	assistant, err := ctrl.Storage.GetAssistant(c.Request.Context(), workspaceId(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			ctrl.ErrorHandler(c, http.StatusNotFound, err)
		} else {
			ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, assistant)
}

func (ctrl *Controller) DeleteAssistantHandler(c *gin.Context) {
	if err := ctrl.Storage.DeleteAssistant(c.Request.Context(), workspaceId(c), c.Param("id")); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			ctrl.ErrorHandler(c, http.StatusNotFound, err)
		} else {
			ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "assistant deleted"})
}

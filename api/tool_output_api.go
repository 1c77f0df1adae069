package api

import (
	"errors"
	"net/http"
	"time"

	"inference-gateway/common"
	"inference-gateway/domain"
	"inference-gateway/orchestrator"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
)

type SubmitToolOutputRequest struct {
	ThreadId    string `json:"thread_id" binding:"required"`
	Content     string `json:"content"`
	ToolId      string `json:"tool_id" binding:"required"`
	Role        string `json:"role"`
	AssistantId string `json:"assistant_id"`
}

// SubmitToolOutputHandler implements POST /v1/messages/tools (spec §6):
// appends the tool message, marks the owning Action completed, and signals
// the waiting RunWorkflow so the engine resumes on its next turn. Re-posting
// a result for an already-terminal Action is a no-op (spec §8 idempotency),
// since router.Router.CreateAction/Dispatch and this handler are the only
// two writers of Action.ProcessedAt and both check IsTerminal first.
func (ctrl *Controller) SubmitToolOutputHandler(c *gin.Context) {
	var req SubmitToolOutputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}
	wsId := workspaceId(c)
	ctx := c.Request.Context()

	action, err := ctrl.Storage.GetPendingActionByToolCallId(ctx, wsId, req.ToolId)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Either this tool_id never existed, or it was already resolved
			// and is no longer pending: spec §8 requires re-submission
			// against an already-completed Action to be a no-op, so this is
			// reported as success rather than a 404.
			c.JSON(http.StatusOK, gin.H{"message": "no pending action for that tool_id; treated as already processed"})
			return
		}
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}

	now := time.Now().UTC()
	action.Status = domain.ActionStatusCompleted
	action.Result = req.Content
	action.ProcessedAt = &now
	if err := ctrl.Storage.PersistAction(ctx, action); err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}

	message := domain.Message{
		Id:         "msg_" + ksuid.New().String(),
		ThreadId:   req.ThreadId,
		Role:       domain.MessageRoleTool,
		Content:    req.Content,
		ToolId:     action.Id,
		ToolCallId: action.ToolCallId,
		SenderId:   action.ToolName,
		CreatedAt:  now,
	}
	if req.AssistantId != "" {
		message.AssistantId = req.AssistantId
	}
	if err := ctrl.Storage.AppendMessage(ctx, message); err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}

	if err := ctrl.TemporalClient.SignalWorkflow(ctx, action.RunId, "", orchestrator.ToolOutputSignalName, nil); err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"action": action})
}

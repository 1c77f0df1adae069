package api

import (
	"errors"
	"net/http"

	"inference-gateway/common"
	"inference-gateway/orchestrator"

	"github.com/gin-gonic/gin"
)

func (ctrl *Controller) GetRunHandler(c *gin.Context) {
	run, err := ctrl.Storage.GetRun(c.Request.Context(), workspaceId(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			ctrl.ErrorHandler(c, http.StatusNotFound, err)
		} else {
			ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, run)
}

// CancelRunHandler signals RunWorkflow's cancel channel (spec §4.6's
// cancellation contract, realized as a Temporal signal rather than a
// watched Redis key so the cancel request itself is durable and delivered
// even if it arrives before the workflow reaches a suspension point).
func (ctrl *Controller) CancelRunHandler(c *gin.Context) {
	wsId := workspaceId(c)
	runId := c.Param("id")

	if _, err := ctrl.Storage.GetRun(c.Request.Context(), wsId, runId); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			ctrl.ErrorHandler(c, http.StatusNotFound, err)
		} else {
			ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		}
		return
	}

	if err := ctrl.TemporalClient.SignalWorkflow(c.Request.Context(), runId, "", orchestrator.CancelSignalName, nil); err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cancellation requested"})
}

func (ctrl *Controller) GetActionHandler(c *gin.Context) {
	action, err := ctrl.Storage.GetAction(c.Request.Context(), workspaceId(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			ctrl.ErrorHandler(c, http.StatusNotFound, err)
		} else {
			ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, action)
}

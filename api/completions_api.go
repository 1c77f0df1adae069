package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"inference-gateway/domain"
	"inference-gateway/orchestrator"
	"inference-gateway/providers"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

type CreateCompletionRequest struct {
	RunId       string `json:"run_id" binding:"required"`
	ThreadId    string `json:"thread_id" binding:"required"`
	MessageId   string `json:"message_id"`
	AssistantId string `json:"assistant_id" binding:"required"`
	Model       string `json:"model" binding:"required"`
	APIKey      string `json:"api_key,omitempty"`
}

// CreateCompletionHandler implements POST /v1/completions (spec §6): it
// persists a queued Run, starts the RunWorkflow Temporal execution keyed by
// run_id, then tails the run's event-bus stream and forwards every chunk as
// an anonymous `data: {...}` SSE frame until the run reaches a terminal
// status, grounded on the teacher's GetFlowActionChangesHandler poll-loop
// idiom but framed as unnamed data frames rather than named SSEvents.
func (ctrl *Controller) CreateCompletionHandler(c *gin.Context) {
	var req CreateCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}
	wsId := workspaceId(c)

	run := domain.Run{
		Id:          req.RunId,
		WorkspaceId: wsId,
		ThreadId:    req.ThreadId,
		AssistantId: req.AssistantId,
		Status:      domain.RunStatusQueued,
		Model:       req.Model,
		CreatedAt:   time.Now().UTC(),
	}
	if err := ctrl.Storage.PersistRun(c.Request.Context(), run); err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}

	params := orchestrator.RunWorkflowParams{
		WorkspaceId:  wsId,
		RunId:        req.RunId,
		ThreadId:     req.ThreadId,
		AssistantId:  req.AssistantId,
		Provider:     providers.ProviderFromModel(req.Model),
		CallerAPIKey: req.APIKey,
	}
	_, err := ctrl.TemporalClient.ExecuteWorkflow(c.Request.Context(), client.StartWorkflowOptions{
		ID:        req.RunId,
		TaskQueue: ctrl.TemporalTaskQueue,
	}, orchestrator.RunWorkflow, params)
	var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
	if err != nil && !errors.As(err, &alreadyStarted) {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, fmt.Errorf("failed to start run workflow: %w", err))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	clientGone := c.Request.Context().Done()
	lastID := "0"
	errorSent := false
	for {
		select {
		case <-clientGone:
			return
		default:
		}

		chunks, nextID, err := ctrl.EventBus.Tail(c.Request.Context(), req.RunId, lastID)
		if err != nil {
			log.Error().Err(err).Str("runId", req.RunId).Msg("failed to tail run event stream")
			writeCompletionFrame(c, domain.StreamChunk{Type: domain.StreamChunkError, RunId: req.RunId, Content: domain.ErrorContent{
				ErrorType: "event_bus_error",
				Message:   err.Error(),
			}})
			return
		}
		lastID = nextID
		for _, chunk := range chunks {
			writeCompletionFrame(c, chunk)
			if chunk.Type == domain.StreamChunkError {
				errorSent = true
			}
		}

		run, err := ctrl.Storage.GetRun(c.Request.Context(), wsId, req.RunId)
		if err != nil {
			log.Error().Err(err).Str("runId", req.RunId).Msg("failed to poll run status")
			continue
		}
		if run.Status.Terminal() {
			if !errorSent && run.Status != domain.RunStatusCompleted {
				writeCompletionFrame(c, domain.StreamChunk{Type: domain.StreamChunkError, RunId: req.RunId, Content: domain.ErrorContent{
					ErrorType: string(run.Status),
					Message:   run.FailReason,
				}})
			}
			fmt.Fprint(c.Writer, "data: [DONE]\n\n")
			c.Writer.Flush()
			return
		}
	}
}

func writeCompletionFrame(c *gin.Context, chunk domain.StreamChunk) {
	raw, err := json.Marshal(chunk)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal completion frame")
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", raw)
	c.Writer.Flush()
}

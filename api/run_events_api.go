package api

import (
	"time"

	"inference-gateway/domain"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// runEventPollInterval matches spec §6's "Polls run state every 500 ms".
const runEventPollInterval = 500 * time.Millisecond

// GetRunEventsHandler implements GET /v1/runs/{run_id}/events (spec §6): a
// named-event SSE stream (action_required, tool_invoked, run_ended,
// cancelled, error). tool_invoked is derived by tailing the run's
// StreamChunkToolCall chunks off the event bus; the rest by polling Run and
// pending-Action state, grounded on the teacher's GetFlowActionChangesHandler
// poll-loop idiom but emitting c.SSEvent named frames per kind instead of
// the teacher's single "flow/action" type.
func (ctrl *Controller) GetRunEventsHandler(c *gin.Context) {
	runId := c.Param("runId")
	wsId := workspaceId(c)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	clientGone := c.Request.Context().Done()

	ticker := time.NewTicker(runEventPollInterval)
	defer ticker.Stop()

	var lastStatus domain.RunStatus
	seenPending := map[string]bool{}
	lastChunkID := "0"

	for {
		select {
		case <-clientGone:
			return
		case <-ticker.C:
			ctx := c.Request.Context()

			chunks, nextID, err := ctrl.EventBus.Tail(ctx, runId, lastChunkID)
			if err != nil {
				log.Error().Err(err).Str("runId", runId).Msg("failed to tail run event stream")
			} else {
				lastChunkID = nextID
				for _, chunk := range chunks {
					if chunk.Type == domain.StreamChunkToolCall {
						c.SSEvent("tool_invoked", chunk.Content)
						c.Writer.Flush()
					}
				}
			}

			run, err := ctrl.Storage.GetRun(ctx, wsId, runId)
			if err != nil {
				c.SSEvent("error", gin.H{"error": err.Error()})
				c.Writer.Flush()
				return
			}

			pending, err := ctrl.RunStore.PendingActions(ctx, wsId, runId)
			if err != nil {
				log.Error().Err(err).Str("runId", runId).Msg("failed to poll pending actions")
			} else {
				newlyPending := make([]domain.Action, 0, len(pending))
				for _, action := range pending {
					if !seenPending[action.Id] {
						newlyPending = append(newlyPending, action)
						seenPending[action.Id] = true
					}
				}
				if len(newlyPending) > 0 {
					c.SSEvent("action_required", newlyPending)
					c.Writer.Flush()
				}
			}

			if run.Status == lastStatus {
				continue
			}
			lastStatus = run.Status

			switch run.Status {
			case domain.RunStatusCancelled:
				c.SSEvent("cancelled", run)
				c.Writer.Flush()
				return
			case domain.RunStatusCompleted, domain.RunStatusFailed, domain.RunStatusExpired:
				c.SSEvent("run_ended", run)
				c.Writer.Flush()
				return
			}
		}
	}
}

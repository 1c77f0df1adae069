package orchestrator

import (
	"testing"
	"time"

	"inference-gateway/common"
	"inference-gateway/domain"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

func TestRunWorkflow_CompletesWhenTurnHasNoToolCalls(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	var a *Activities
	env.OnActivity(a.TransitionRun, mock.Anything, mock.Anything).Return(domain.Run{}, nil)
	env.OnActivity(a.BuildTurnContext, mock.Anything, mock.Anything).Return(BuildTurnContextResult{
		Assistant: domain.Assistant{Model: "gpt-4o"},
	}, nil)
	env.OnActivity(a.ExecuteTurn, mock.Anything, mock.Anything).Return(ExecuteTurnResult{Content: "hello there"}, nil)

	env.ExecuteWorkflow(RunWorkflow, RunWorkflowParams{
		WorkspaceId: "ws1",
		RunId:       "run1",
		ThreadId:    "thread1",
		AssistantId: "asst1",
		Provider:    common.OpenaiToolChatProvider,
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
}

func TestRunWorkflow_DispatchesPlatformActionsThenContinues(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	var a *Activities
	env.OnActivity(a.TransitionRun, mock.Anything, mock.Anything).Return(domain.Run{}, nil)

	env.OnActivity(a.BuildTurnContext, mock.Anything, mock.Anything).Return(BuildTurnContextResult{
		Assistant: domain.Assistant{Model: "gpt-4o"},
	}, nil)
	env.OnActivity(a.ExecuteTurn, mock.Anything, mock.Anything).Return(ExecuteTurnResult{
		ToolCalls: []domain.ToolCallContent{{Id: "call_1", Name: "web_search", Arguments: map[string]interface{}{"query": "go"}}},
	}, nil).Once()
	env.OnActivity(a.ExecuteTurn, mock.Anything, mock.Anything).Return(ExecuteTurnResult{Content: "done"}, nil)

	env.OnActivity(a.CreateActions, mock.Anything, mock.Anything).Return([]ActionDispatch{
		{Action: domain.Action{Id: "action_1", ToolName: "web_search"}, Platform: true},
	}, nil)
	env.OnActivity(a.DispatchPlatformActions, mock.Anything, mock.Anything, mock.Anything).Return([]domain.Action{
		{Id: "action_1", ToolName: "web_search", Status: domain.ActionStatusCompleted},
	}, nil)

	env.ExecuteWorkflow(RunWorkflow, RunWorkflowParams{
		WorkspaceId: "ws1",
		RunId:       "run1",
		ThreadId:    "thread1",
		AssistantId: "asst1",
		Provider:    common.OpenaiToolChatProvider,
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
}

func TestRunWorkflow_FailsOnProviderError(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	var a *Activities
	env.OnActivity(a.TransitionRun, mock.Anything, mock.Anything).Return(domain.Run{}, nil)
	env.OnActivity(a.BuildTurnContext, mock.Anything, mock.Anything).Return(BuildTurnContextResult{
		Assistant: domain.Assistant{Model: "gpt-4o"},
	}, nil)
	env.OnActivity(a.ExecuteTurn, mock.Anything, mock.Anything).Return(ExecuteTurnResult{
		IsError: true, ErrorText: "upstream rate limited",
	}, nil)

	env.ExecuteWorkflow(RunWorkflow, RunWorkflowParams{
		WorkspaceId: "ws1",
		RunId:       "run1",
		ThreadId:    "thread1",
		AssistantId: "asst1",
		Provider:    common.OpenaiToolChatProvider,
	})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}

// TestRunWorkflow_CancelSignalDuringExecuteTurnCancelsRun exercises the
// mid-stream cancellation path: a cancel signal arriving while ExecuteTurn
// is still in flight must cancel that turn's activity rather than waiting
// for it to finish naturally.
func TestRunWorkflow_CancelSignalDuringExecuteTurnCancelsRun(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	var a *Activities
	var transitions []domain.RunStatus
	env.OnActivity(a.TransitionRun, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		in := args.Get(1).(TransitionRunInput)
		transitions = append(transitions, in.To)
	}).Return(domain.Run{}, nil)
	env.OnActivity(a.BuildTurnContext, mock.Anything, mock.Anything).Return(BuildTurnContextResult{
		Assistant: domain.Assistant{Model: "gpt-4o"},
	}, nil)
	env.OnActivity(a.ExecuteTurn, mock.Anything, mock.Anything).
		After(5 * time.Second).
		Return(ExecuteTurnResult{Content: "hello"}, nil)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(CancelSignalName, nil)
	}, time.Second)

	env.ExecuteWorkflow(RunWorkflow, RunWorkflowParams{
		WorkspaceId: "ws1",
		RunId:       "run1",
		ThreadId:    "thread1",
		AssistantId: "asst1",
		Provider:    common.OpenaiToolChatProvider,
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.Contains(t, transitions, domain.RunStatusCancelling)
	require.Contains(t, transitions, domain.RunStatusCancelled)
}

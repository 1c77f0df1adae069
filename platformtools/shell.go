package platformtools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Shell executes a shell command in a per-thread persistent session so a
// run's tool calls share working directory and environment across turns,
// grounded on dev/run_command.go and coding/unix/run_command.go's
// line-by-line output forwarding, generalized from an in-process exec.Cmd to
// a room of websocket-connected workers keyed by thread id (spec §4.4).
type Shell struct {
	WorkerURL string
	Timeout   time.Duration

	mu      sync.Mutex
	rooms   map[string]*websocket.Conn // threadId -> persistent worker connection
}

func NewShell(workerURL string) *Shell {
	return &Shell{
		WorkerURL: workerURL,
		rooms:     map[string]*websocket.Conn{},
	}
}

func (s *Shell) Name() string { return "shell" }

type shellCommand struct {
	Command string `json:"command"`
}

type shellOutput struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// Invoke expects args["thread_id"] so commands for the same thread reuse one
// persistent worker connection (a shell session), and args["command"] for
// the command text itself.
func (s *Shell) Invoke(ctx context.Context, workspaceId string, args map[string]interface{}) (string, bool, error) {
	threadId, _ := args["thread_id"].(string)
	command, _ := args["command"].(string)
	if command == "" {
		return "missing required argument: command", true, nil
	}
	if threadId == "" {
		threadId = workspaceId
	}

	conn, err := s.connFor(ctx, threadId)
	if err != nil {
		return "", false, fmt.Errorf("failed to connect to shell worker: %w", err)
	}

	if err := conn.WriteJSON(shellCommand{Command: command}); err != nil {
		s.dropConn(threadId)
		return "", false, fmt.Errorf("failed to send command to shell worker: %w", err)
	}

	var out shellOutput
	if err := conn.ReadJSON(&out); err != nil {
		s.dropConn(threadId)
		return "", false, fmt.Errorf("failed to read shell worker output: %w", err)
	}

	result := out.Stdout
	if out.Stderr != "" {
		result += "\n" + out.Stderr
	}
	return result, out.ExitCode != 0, nil
}

func (s *Shell) connFor(ctx context.Context, threadId string) (*websocket.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.rooms[threadId]; ok {
		return conn, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.WorkerURL, nil)
	if err != nil {
		return nil, err
	}
	s.rooms[threadId] = conn
	return conn, nil
}

func (s *Shell) dropConn(threadId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.rooms[threadId]; ok {
		conn.Close()
		delete(s.rooms, threadId)
	}
}

func (s *Shell) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 10 * time.Second
}

// Close tears down every open shell worker connection, used on server
// shutdown.
func (s *Shell) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conn := range s.rooms {
		conn.Close()
		delete(s.rooms, id)
	}
}

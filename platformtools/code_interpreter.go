// Package platformtools implements the built-in tool handlers a run's
// Assistant can enable (spec §4.4): code_interpreter, shell, vector store
// search, and web browsing. Each handler satisfies router.Handler so the
// router can dispatch to it by name without knowing its implementation.
package platformtools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// CodeInterpreter runs code in a sandboxed worker reached over a websocket,
// one connection per invocation, grounded on the teacher's line-by-line
// process output forwarding in dev/run_command.go and coding/unix's
// process-streaming idioms generalized from a local subprocess to a remote
// sandbox connection.
type CodeInterpreter struct {
	// SandboxURL is the ws:// or wss:// endpoint of the code execution
	// sandbox (one sandbox per workspace is typical in production).
	SandboxURL string
	// S3Client, when non-nil, is used to persist generated output artifacts
	// (eg plots, files written by the executed code) so they can be linked
	// from the tool result instead of inlined.
	S3Client         *s3.Client
	ArtifactBucket   string
	ConnectTimeout   time.Duration
}

func (c *CodeInterpreter) Name() string { return "code_interpreter" }

type codeInterpreterRequest struct {
	Code string `json:"code"`
}

type codeInterpreterLine struct {
	Stream   string `json:"stream"` // "stdout" | "stderr"
	Text     string `json:"text"`
	Done     bool   `json:"done"`
	ExitCode int    `json:"exitCode,omitempty"`
	Artifact string `json:"artifact,omitempty"` // base64, present on the final message if any file was produced
}

func (c *CodeInterpreter) Invoke(ctx context.Context, workspaceId string, args map[string]interface{}) (string, bool, error) {
	code, _ := args["code"].(string)
	if code == "" {
		return "missing required argument: code", true, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.SandboxURL, nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to connect to code interpreter sandbox: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(codeInterpreterRequest{Code: code}); err != nil {
		return "", false, fmt.Errorf("failed to send code to sandbox: %w", err)
	}

	var output bytes.Buffer
	var isError bool
	var artifactB64 string
	for {
		var line codeInterpreterLine
		if err := conn.ReadJSON(&line); err != nil {
			if output.Len() > 0 {
				break // sandbox closed the connection after the final line
			}
			return "", false, fmt.Errorf("failed reading sandbox output: %w", err)
		}
		output.WriteString(line.Text)
		if line.Stream == "stderr" {
			isError = true
		}
		if line.Artifact != "" {
			artifactB64 = line.Artifact
		}
		if line.Done {
			if line.ExitCode != 0 {
				isError = true
			}
			break
		}
	}

	if artifactB64 != "" && c.S3Client != nil {
		if url, err := c.uploadArtifact(ctx, workspaceId, artifactB64); err != nil {
			log.Warn().Err(err).Msg("failed to upload code_interpreter artifact to s3")
		} else {
			output.WriteString("\n[artifact uploaded: " + url + "]")
		}
	}

	return output.String(), isError, nil
}

func (c *CodeInterpreter) timeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return 10 * time.Second
}

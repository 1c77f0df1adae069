package platformtools

import (
	"context"
	"encoding/base64"
	"fmt"

	"inference-gateway/utils"

	"github.com/segmentio/ksuid"
)

func newArtifactId() string {
	return ksuid.New().String()
}

// uploadArtifact persists a base64-encoded file produced by a sandboxed
// code_interpreter run to S3, keyed by workspace so artifacts from
// different tenants never collide, and returns the s3:// URL of the object.
func (c *CodeInterpreter) uploadArtifact(ctx context.Context, workspaceId, base64Data string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(base64Data)
	if err != nil {
		return "", fmt.Errorf("failed to decode artifact: %w", err)
	}

	key := fmt.Sprintf("%s/code_interpreter/%s", workspaceId, newArtifactId())
	if err := utils.UploadBytes(ctx, c.S3Client, c.ArtifactBucket, key, "application/octet-stream", raw); err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", c.ArtifactBucket, key), nil
}

package common

import (
	"fmt"
	"os"
	"strconv"

	"go.temporal.io/sdk/client"
)

const defaultServerPort = 8855
const defaultServerHost = "127.0.0.1"

// GetServerHost returns the gateway HTTP server's listen address.
func GetServerHost() string {
	host := os.Getenv("GATEWAY_SERVER_HOST")
	if host == "" {
		return defaultServerHost
	}
	return host
}

// GetServerPort returns the gateway HTTP server's listen port.
func GetServerPort() int {
	port := os.Getenv("GATEWAY_SERVER_PORT")
	if port == "" {
		return defaultServerPort
	}
	intPort, err := strconv.Atoi(port)
	if err != nil {
		panic(fmt.Sprintf("failed to parse GATEWAY_SERVER_PORT: %s", port))
	}
	return intPort
}

func GetTemporalNamespace() string {
	ns := os.Getenv("GATEWAY_TEMPORAL_NAMESPACE")
	if ns == "" {
		ns = client.DefaultNamespace
	}
	return ns
}

const defaultTemporalTaskQueue = "inference-gateway"

func GetTemporalTaskQueue() string {
	tq := os.Getenv("GATEWAY_TEMPORAL_TASK_QUEUE")
	if tq == "" {
		tq = defaultTemporalTaskQueue
	}
	return tq
}

const defaultTemporalHost = "localhost"

func GetTemporalServerHost() string {
	host := os.Getenv("GATEWAY_TEMPORAL_SERVER_HOST")
	if host == "" {
		host = defaultTemporalHost
	}
	return host
}

func GetTemporalServerPort() int {
	port := os.Getenv("GATEWAY_TEMPORAL_SERVER_PORT")
	if port == "" {
		return GetServerPort() + 10000
	}
	intPort, err := strconv.Atoi(port)
	if err != nil {
		panic(fmt.Sprintf("failed to parse GATEWAY_TEMPORAL_SERVER_PORT: %s", port))
	}
	return intPort
}

func GetTemporalServerHostPort() string {
	return fmt.Sprintf("%s:%d", GetTemporalServerHost(), GetTemporalServerPort())
}

func GetRedisAddr() string {
	addr := os.Getenv("GATEWAY_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	return addr
}

// GetQdrantAddr returns the host:port gRPC endpoint of the Qdrant instance
// backing platformtools.VectorSearch's vector_store_search handler.
func GetQdrantAddr() string {
	addr := os.Getenv("GATEWAY_QDRANT_ADDR")
	if addr == "" {
		addr = "localhost:6334"
	}
	return addr
}

// GetCodeInterpreterSandboxURL returns the websocket endpoint of the
// sandboxed code execution worker platformtools.CodeInterpreter dials.
func GetCodeInterpreterSandboxURL() string {
	url := os.Getenv("GATEWAY_SANDBOX_URL")
	if url == "" {
		url = "ws://localhost:8866/sandbox"
	}
	return url
}

// GetShellWorkerURL returns the websocket endpoint of the persistent shell
// worker platformtools.Shell dials for the "shell" tool.
func GetShellWorkerURL() string {
	url := os.Getenv("GATEWAY_SHELL_WORKER_URL")
	if url == "" {
		url = "ws://localhost:8867/shell"
	}
	return url
}

// GetArtifactBucket returns the S3 bucket platformtools.CodeInterpreter
// uploads generated artifacts to.
func GetArtifactBucket() string {
	bucket := os.Getenv("GATEWAY_ARTIFACT_BUCKET")
	if bucket == "" {
		bucket = "inference-gateway-artifacts"
	}
	return bucket
}

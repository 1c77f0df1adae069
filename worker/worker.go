package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"
	zerologadapter "logur.dev/adapter/zerolog"
	"logur.dev/logur"

	"inference-gateway/common"
	"inference-gateway/contextbuilder"
	"inference-gateway/db"
	"inference-gateway/eventbus"
	gatewaylogger "inference-gateway/logger"
	"inference-gateway/orchestrator"
	"inference-gateway/platformtools"
	"inference-gateway/providers"
	"inference-gateway/router"
	"inference-gateway/runstore"
	"inference-gateway/secret_manager"
	"inference-gateway/telemetry"
	"inference-gateway/utils"

	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
)

// Worker wraps a Temporal worker with telemetry shutdown.
type Worker struct {
	worker.Worker
	shutdownTracer func(context.Context) error
}

// Stop stops the worker and shuts down the tracer.
func (w *Worker) Stop() {
	w.Worker.Stop()
	if w.shutdownTracer != nil {
		if err := w.shutdownTracer(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry tracer")
		}
	}
}

// StartWorker wires up every dependency orchestrator.Activities needs —
// storage, the two-tier context cache, the tool router with its platform
// handlers, the event bus, and a default secret manager — then registers
// RunWorkflow/ExpirySweepWorkflow and starts polling taskQueue, grounded on
// the teacher's StartWorker (client.Dial retry loop, tracing interceptor,
// OnFatalError) generalized from the coding-agent activity set to the
// gateway's orchestrator.Activities.
func StartWorker(hostPort string, taskQueue string) *Worker {
	shutdownTracer, err := telemetry.InitTracer("inference-gateway-worker")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize telemetry tracer")
	}

	logger := logur.LoggerToKV(zerologadapter.New(gatewaylogger.Get()))
	tracingInterceptor, err := opentelemetry.NewTracingInterceptor(opentelemetry.TracerOptions{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create tracing interceptor")
	}
	clientOptions := client.Options{
		Logger:       logger,
		HostPort:     hostPort,
		Namespace:    common.GetTemporalNamespace(),
		Interceptors: []interceptor.ClientInterceptor{tracingInterceptor},
	}
	var temporalClient client.Client
	for i := 0; i < 5; i++ {
		temporalClient, err = client.Dial(clientOptions)
		if err == nil {
			break
		}
		log.Debug().Err(err).Msgf("Failed to create Temporal client, retrying in 500ms (attempt %d/5)", i+1)
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Unable to create Temporal client after multiple retries.")
	}

	activities := buildActivities()

	w := worker.New(temporalClient, taskQueue, worker.Options{
		OnFatalError: func(err error) {
			log.Fatal().Err(err).Msg("Worker encountered a fatal error")
		},
	})
	RegisterWorkflows(w)
	w.RegisterActivity(activities)

	if err := w.Start(); err != nil {
		log.Fatal().Err(err)
	}

	return &Worker{
		Worker:         w,
		shutdownTracer: shutdownTracer,
	}
}

// buildActivities constructs the full orchestrator.Activities dependency
// graph: SQLite-backed storage (db.Storage) satisfying every domain storage
// interface, a Redis client backing both the two-tier context cache and the
// event bus, and a tool router with every platformtools handler registered
// (spec §4.4's built-in tool catalog).
func buildActivities() *orchestrator.Activities {
	dbPath, err := common.GetGatewaySQLitePath()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve gateway database path")
	}
	storage, err := db.NewStorage(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open gateway database")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: common.GetRedisAddr()})

	secrets := secret_manager.SecretManagerContainer{SecretManager: secret_manager.EnvSecretManager{}}

	toolRouter := router.New(storage)
	registerPlatformTools(toolRouter, redisClient, secrets)

	return &orchestrator.Activities{
		ContextBuilder: contextbuilder.New(storage, storage, redisClient),
		Threads:        storage,
		Assistants:     storage,
		RunStore:       runstore.New(storage, storage, storage),
		Router:         toolRouter,
		EventBus:       eventbus.New(redisClient),
		DefaultSecrets: secrets,
	}
}

// registerPlatformTools wires every platform-side tool handler spec §4.4
// names into toolRouter, so router.Router.HasHandler classifies each of
// them as platform-dispatched rather than surfaced to the client.
func registerPlatformTools(toolRouter *router.Router, redisClient *redis.Client, secrets secret_manager.SecretManagerContainer) {
	web := platformtools.NewWeb(redisClient)
	toolRouter.Register(platformtools.WebRead{Web: web})
	toolRouter.Register(platformtools.WebScroll{Web: web})
	toolRouter.Register(platformtools.WebSearch{Web: web})

	toolRouter.Register(platformtools.NewShell(common.GetShellWorkerURL()))

	s3Client, err := utils.NewS3Client(context.Background())
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize S3 client, code_interpreter artifact upload disabled")
	}
	toolRouter.Register(&platformtools.CodeInterpreter{
		SandboxURL:     common.GetCodeInterpreterSandboxURL(),
		S3Client:       s3Client,
		ArtifactBucket: common.GetArtifactBucket(),
		ConnectTimeout: 10 * time.Second,
	})

	qdrantClient, err := newQdrantClient(common.GetQdrantAddr())
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize Qdrant client, vector_store_search disabled")
	} else {
		toolRouter.Register(&platformtools.VectorSearch{
			Client:   qdrantClient,
			Embedder: providers.NewOpenAIEmbedder(secrets, ""),
			TopK:     10,
		})
	}
}

func newQdrantClient(addr string) (*qdrant.Client, error) {
	host, portStr, found := strings.Cut(addr, ":")
	if !found {
		return nil, fmt.Errorf("invalid qdrant address %q, expected host:port", addr)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return nil, fmt.Errorf("invalid qdrant port in %q: %w", addr, err)
	}
	return qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
}

func RegisterWorkflows(w worker.WorkflowRegistry) {
	w.RegisterWorkflow(orchestrator.RunWorkflow)
	w.RegisterWorkflow(orchestrator.ExpirySweepWorkflow)
}

// Package api is the HTTP/SSE transport layer (spec §6): it accepts
// requests, starts/resumes orchestrator.RunWorkflow executions over Temporal,
// and streams run output back to callers. Grounded on the teacher's
// api/api.go (RunServer/Controller/DefineRoutes/NewController/ErrorHandler
// shape), generalized from the teacher's Task/Flow REST surface to the
// gateway's Run/Action/Assistant/Thread surface.
package api

import (
	"context"
	"fmt"
	"net/http"

	"inference-gateway/common"
	"inference-gateway/db"
	"inference-gateway/eventbus"
	"inference-gateway/runstore"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.temporal.io/sdk/client"
)

// RunServer builds a Controller, wires its routes, and starts listening in
// the background, mirroring the teacher's RunServer/srv.Shutdown lifecycle
// used by api/main/main.go.
func RunServer() *http.Server {
	gin.SetMode(gin.ReleaseMode)
	ctrl := NewController()
	allowedOrigins, err := GetAllowedOrigins()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse GATEWAY_ALLOWED_ORIGINS")
	}
	router := DefineRoutes(ctrl, allowedOrigins)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", common.GetServerHost(), common.GetServerPort()),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start API server")
		}
	}()

	return srv
}

// Controller bundles every dependency the HTTP handlers need: storage
// (satisfying every domain.*Storage interface), the run/action lifecycle
// facade, the event bus for SSE streaming, and a Temporal client for
// starting/signaling RunWorkflow executions.
type Controller struct {
	Storage           *db.Storage
	RunStore          *runstore.Store
	EventBus          *eventbus.Bus
	TemporalClient    client.Client
	TemporalTaskQueue string
}

// NewController wires a Controller from process configuration, grounded on
// worker/worker.go's buildActivities dependency graph so the api and worker
// processes build the same storage/redis/temporal clients from the same env.
func NewController() Controller {
	dbPath, err := common.GetGatewaySQLitePath()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve gateway database path")
	}
	storage, err := db.NewStorage(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open gateway database")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: common.GetRedisAddr()})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	temporalClient, err := client.NewLazyClient(client.Options{
		HostPort:  common.GetTemporalServerHostPort(),
		Namespace: common.GetTemporalNamespace(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create temporal client")
	}

	return Controller{
		Storage:           storage,
		RunStore:          runstore.New(storage, storage, storage),
		EventBus:          eventbus.New(redisClient),
		TemporalClient:    temporalClient,
		TemporalTaskQueue: common.GetTemporalTaskQueue(),
	}
}

// DefineRoutes lays out every route named in spec §6. Tenancy comes from
// the X-API-Key header (APIKeyAuthMiddleware resolves it to a WorkspaceId
// stashed in the gin context), so unlike the teacher's :workspaceId-prefixed
// REST tree, nothing here accepts a workspace id on the URL — a client
// cannot widen its own scope by editing a path segment.
func DefineRoutes(ctrl Controller, allowedOrigins *AllowedOrigins) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.ForwardedByClientIP = true
	r.SetTrustedProxies(nil)
	r.Use(CORSMiddleware(allowedOrigins))

	v1 := r.Group("/v1")
	v1.Use(ctrl.APIKeyAuthMiddleware())

	v1.POST("/completions", ctrl.CreateCompletionHandler)
	v1.GET("/runs/:runId/events", ctrl.GetRunEventsHandler)
	v1.POST("/messages/tools", ctrl.SubmitToolOutputHandler)

	assistants := v1.Group("/assistants")
	assistants.POST("", ctrl.CreateAssistantHandler)
	assistants.GET("/:id", ctrl.GetAssistantHandler)
	assistants.DELETE("/:id", ctrl.DeleteAssistantHandler)

	threads := v1.Group("/threads")
	threads.POST("", ctrl.CreateThreadHandler)
	threads.GET("/:id", ctrl.GetThreadHandler)
	threads.DELETE("/:id", ctrl.DeleteThreadHandler)
	threads.GET("/:id/messages", ctrl.GetMessagesHandler)
	threads.POST("/:id/messages", ctrl.CreateMessageHandler)

	runs := v1.Group("/runs")
	runs.GET("/:id", ctrl.GetRunHandler)
	runs.POST("/:id/cancel", ctrl.CancelRunHandler)

	actions := v1.Group("/actions")
	actions.GET("/:id", ctrl.GetActionHandler)

	apiKeys := v1.Group("/api_keys")
	apiKeys.POST("", ctrl.CreateAPIKeyHandler)
	apiKeys.DELETE("/:id", ctrl.RevokeAPIKeyHandler)

	return r
}

// ErrorHandler writes a uniform {"error": "..."} JSON body, mirroring the
// teacher's Controller.ErrorHandler.
func (ctrl *Controller) ErrorHandler(c *gin.Context, status int, err error) {
	log.Error().Err(err).Int("status", status).Str("path", c.Request.URL.Path).Msg("request failed")
	c.JSON(status, gin.H{"error": err.Error()})
}

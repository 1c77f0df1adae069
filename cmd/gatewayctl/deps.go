package main

import (
	"context"
	"fmt"

	"inference-gateway/common"
	"inference-gateway/db"
	"inference-gateway/eventbus"

	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
)

// openStorage opens the same SQLite database the api and worker processes
// use, grounded on api.NewController's storage-construction steps.
func openStorage() (*db.Storage, error) {
	dbPath, err := common.GetGatewaySQLitePath()
	if err != nil {
		return nil, fmt.Errorf("resolve gateway database path: %w", err)
	}
	storage, err := db.NewStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open gateway database: %w", err)
	}
	return storage, nil
}

func openEventBus() (*eventbus.Bus, error) {
	redisClient := redis.NewClient(&redis.Options{Addr: common.GetRedisAddr()})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return eventbus.New(redisClient), nil
}

func openTemporalClient() (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  common.GetTemporalServerHostPort(),
		Namespace: common.GetTemporalNamespace(),
	})
	if err != nil {
		return nil, fmt.Errorf("create temporal client: %w", err)
	}
	return c, nil
}

package di

import (
	"context"
	"testing"
	"time"

	"keepsake/internal/content/config"
	"keepsake/internal/shared/logger"

	"github.com/stretchr/testify/assert"
)

func TestContainer_EmptyLifecycle(t *testing.T) {
	c := NewContainer(&config.ServerConfig{}, logger.Nop())

	assert.NoError(t, c.ConnectRedis(context.Background()))
	assert.Nil(t, c.RedisClient)
	assert.Nil(t, c.GetContentModule())
	assert.NoError(t, c.HealthCheck(context.Background()))
	assert.NoError(t, c.Close())
}

func TestContainer_ContentNeedsMongo(t *testing.T) {
	c := NewContainer(&config.ServerConfig{}, logger.Nop())
	assert.Error(t, c.InitializeContent())
}

func TestContainer_UnreachableRedisFails(t *testing.T) {
	c := NewContainer(&config.ServerConfig{
		Redis: config.RedisConfig{Host: "127.0.0.1", Port: "1", MaxRetries: 0, PoolSize: 1},
	}, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, c.ConnectRedis(ctx))
	assert.Nil(t, c.RedisClient)
}

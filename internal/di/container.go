package di

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"keepsake/internal/content"
	"keepsake/internal/content/config"
	"keepsake/internal/shared/logger"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Container owns the server's external connections and the content module built on them.
type Container struct {
	mu sync.RWMutex

	Config *config.ServerConfig
	Logger logger.Logger

	MongoClient *mongo.Client
	MongoDB     *mongo.Database
	RedisClient *redis.Client

	ContentModule *content.ContentModule
}

// NewContainer creates an empty container.
func NewContainer(cfg *config.ServerConfig, log logger.Logger) *Container {
	if log == nil {
		log = logger.NewLogger()
	}
	return &Container{Config: cfg, Logger: log}
}

// ConnectMongo opens and verifies the MongoDB connection.
func (c *Container) ConnectMongo(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.Config.MongoDBURI))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	c.MongoClient = client
	c.MongoDB = client.Database(c.Config.DatabaseName)
	c.Logger.Infof("MongoDB connection established (database %s)", c.Config.DatabaseName)
	return nil
}

// ConnectRedis opens the relay connection when Redis is configured. Without it the server
// runs as a single instance; a configured but unreachable Redis is an error.
func (c *Container) ConnectRedis(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.Config.Redis.Enabled() {
		c.Logger.Info("REDIS_HOST not set, change events stay on this instance")
		return nil
	}

	client := config.NewRedisClient(c.Config.Redis)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to Redis at %s: %w", c.Config.Redis.GetAddr(), err)
	}
	c.RedisClient = client
	c.Logger.Infof("Redis connection established (%s)", c.Config.Redis.GetAddr())
	return nil
}

// InitializeContent builds the content module. MongoDB must be connected first.
func (c *Container) InitializeContent() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.MongoDB == nil {
		return errors.New("MongoDB must be initialized before the content module")
	}
	module, err := content.NewContentModule(c.Config, c.Logger, c.MongoDB, c.RedisClient)
	if err != nil {
		return fmt.Errorf("failed to create content module: %w", err)
	}
	c.ContentModule = module
	return nil
}

// GetContentModule returns the content module instance
func (c *Container) GetContentModule() *content.ContentModule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ContentModule
}

// HealthCheck pings every external dependency.
func (c *Container) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.MongoClient != nil {
		if err := c.MongoClient.Ping(ctx, nil); err != nil {
			return fmt.Errorf("MongoDB health check failed: %w", err)
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("Redis health check failed: %w", err)
		}
	}
	return nil
}

// Cleanup shuts everything down in reverse order of initialization.
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.ContentModule != nil {
		c.ContentModule.Stop()
		c.ContentModule = nil
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		c.RedisClient = nil
	}
	if c.MongoClient != nil {
		if err := c.MongoClient.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect mongo: %w", err))
		}
		c.MongoClient = nil
		c.MongoDB = nil
	}
	return errors.Join(errs...)
}

// Close gracefully shuts down all services in the container with timeout
func (c *Container) Close() error {
	c.Logger.Info("Closing container resources...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Cleanup(ctx); err != nil {
		c.Logger.Warnf("Cleanup errors occurred: %v", err)
		return err
	}
	c.Logger.Info("Container resources closed")
	return nil
}

// Package content wires the collection service: storage, change fan-out and the HTTP surface.
package content

import (
	"context"
	"errors"

	httpadapter "keepsake/internal/content/adapter/http"
	redispersistence "keepsake/internal/content/adapter/persistence"
	mongodbpersistence "keepsake/internal/content/adapter/persistence/mongodb"
	"keepsake/internal/content/config"
	"keepsake/internal/content/domain/model"
	"keepsake/internal/content/domain/repository"
	"keepsake/internal/content/usecase"
	"keepsake/internal/session"
	"keepsake/internal/shared/eventbus"
	"keepsake/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// ContentModule holds every server-side component of the collection service.
type ContentModule struct {
	Config *config.ServerConfig
	Logger logger.Logger

	Records repository.RecordRepository
	Blobs   repository.BlobStore
	Relay   *redispersistence.RedisEventRelay // nil without Redis

	EventBus         eventbus.EventBusInterface
	CollectionUC     *usecase.CollectionUsecase
	RealtimeUC       usecase.RealtimeUsecase
	Tokens           *session.TokenService // nil when writes are disabled
	Unlocker         *session.Unlocker     // nil when writes are disabled
	HTTPHandler      *httpadapter.HTTPHandler
	WebSocketHandler *httpadapter.WebSocketHandler

	cancelRelay context.CancelFunc
	relayDone   chan struct{}
}

// NewContentModule builds the module on db. redisClient may be nil, in which case change
// events only reach clients connected to this instance.
func NewContentModule(cfg *config.ServerConfig, log logger.Logger, db *mongo.Database, redisClient *redis.Client) (*ContentModule, error) {
	records := mongodbpersistence.NewRecordRepository(db, log)
	blobs, err := mongodbpersistence.NewGridFSBlobStore(db, log)
	if err != nil {
		return nil, err
	}

	var relay *redispersistence.RedisEventRelay
	if redisClient != nil {
		relay = redispersistence.NewRedisEventRelay(redisClient, cfg.Redis.Channel, cfg.Redis.StreamMaxLength, log)
	}
	return NewContentModuleWithStores(cfg, log, records, blobs, relay)
}

// NewContentModuleWithStores builds the module on the given stores. Tests use it with
// in-memory repositories.
func NewContentModuleWithStores(
	cfg *config.ServerConfig,
	log logger.Logger,
	records repository.RecordRepository,
	blobs repository.BlobStore,
	relay *redispersistence.RedisEventRelay,
) (*ContentModule, error) {
	if log == nil {
		log = logger.Nop()
	}
	log.Info("Initializing content module...")

	bus := eventbus.NewEventBus(log)
	realtimeUC := usecase.NewRealtimeUsecase(log)
	bus.Subscribe(eventbus.EventTypeRecordChanged, usecase.ChangeEventHandler(realtimeUC.PublishEvent))
	if relay != nil {
		bus.Subscribe(eventbus.EventTypeRecordChanged, usecase.ChangeEventHandler(relay.Publish))
		log.Info("Change events are relayed through Redis")
	}

	collectionUC := usecase.NewCollectionUsecase(records, blobs, bus, cfg.BaseURL(), log)

	m := &ContentModule{
		Config:       cfg,
		Logger:       log,
		Records:      records,
		Blobs:        blobs,
		Relay:        relay,
		EventBus:     bus,
		CollectionUC: collectionUC,
		RealtimeUC:   realtimeUC,
	}

	if cfg.WritesEnabled() {
		tokens, err := session.NewTokenService(cfg.Auth.JWTSecretKey, cfg.Auth.JWTIssuer, cfg.Auth.AdminTokenTTL)
		if err != nil {
			return nil, err
		}
		gate, err := session.NewGate(cfg.Auth.GateCodeHashes)
		if err != nil {
			return nil, err
		}
		m.Tokens = tokens
		m.Unlocker = session.NewUnlocker(gate, tokens, log)
		log.Infof("Writes enabled behind a %d step gate", gate.Total())
	} else {
		log.Warn("ADMIN_JWT_SECRET or GATE_CODE_HASHES not set, server is read-only")
	}

	var events httpadapter.EventLog
	if relay != nil {
		events = relay
	}
	m.HTTPHandler = httpadapter.NewHTTPHandler(collectionUC, m.Unlocker, events, httpadapter.NewAdminMiddleware(m.Tokens, log), log)
	m.WebSocketHandler = httpadapter.NewWebSocketHandler(realtimeUC, cfg.Realtime.WebSocketPath, cfg.Realtime.ClientSendChannelBuffer, log)

	log.Info("Content module initialized")
	return m, nil
}

// RegisterRoutes mounts the websocket endpoint and the REST API on router.
func (m *ContentModule) RegisterRoutes(router fiber.Router) {
	m.WebSocketHandler.RegisterRoutes(router)
	m.HTTPHandler.RegisterRoutes(router)
}

// StartRealtimeServices starts forwarding events published by other instances to local
// subscribers. It is a no-op without Redis.
func (m *ContentModule) StartRealtimeServices(ctx context.Context) {
	if m.Relay == nil || m.cancelRelay != nil {
		return
	}
	ctx, m.cancelRelay = context.WithCancel(ctx)
	m.relayDone = make(chan struct{})

	go func() {
		defer close(m.relayDone)
		err := m.Relay.Listen(ctx, func(event model.ChangeEvent) {
			if err := m.RealtimeUC.PublishEvent(ctx, event); err != nil {
				m.Logger.Errorf("Failed to deliver relayed %s event: %v", event.Kind, err)
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			m.Logger.Errorf("Change event relay stopped: %v", err)
		}
	}()
	m.Logger.Info("Realtime relay listener started")
}

// Stop ends the relay listener.
func (m *ContentModule) Stop() {
	if m.cancelRelay != nil {
		m.cancelRelay()
		<-m.relayDone
		m.cancelRelay = nil
	}
	if m.Relay != nil {
		if err := m.Relay.Close(); err != nil {
			m.Logger.Warnf("Failed to close relay: %v", err)
		}
	}
}

// Health pings the record store.
func (m *ContentModule) Health(ctx context.Context) error {
	return m.CollectionUC.Health(ctx)
}

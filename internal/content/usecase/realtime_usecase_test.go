package usecase

import (
	"context"
	"testing"

	"keepsake/internal/content/domain/model"
	"keepsake/internal/content/testutil"
	"keepsake/internal/shared/eventbus"
	"keepsake/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealtimeUsecase_DeliversToCollectionSubscribersOnly(t *testing.T) {
	ctx := context.Background()
	rt := NewRealtimeUsecase(logger.Nop())

	photos := make(chan model.ChangeEvent, 4)
	cards := make(chan model.ChangeEvent, 4)
	require.NoError(t, rt.Subscribe(ctx, "a", model.CollectionPhotos, photos))
	require.NoError(t, rt.Subscribe(ctx, "b", model.CollectionCards, cards))

	event := model.ChangeEvent{Kind: model.EventInsert, Collection: model.CollectionPhotos, Row: model.ContentItem{ID: 1}}
	require.NoError(t, rt.PublishEvent(ctx, event))

	assert.Equal(t, event, <-photos)
	assert.Empty(t, cards)
}

func TestRealtimeUsecase_PreservesOrderPerSubscriber(t *testing.T) {
	ctx := context.Background()
	rt := NewRealtimeUsecase(logger.Nop())
	ch := make(chan model.ChangeEvent, 10)
	require.NoError(t, rt.Subscribe(ctx, "a", model.CollectionCards, ch))

	for id := int64(1); id <= 5; id++ {
		require.NoError(t, rt.PublishEvent(ctx, model.ChangeEvent{Kind: model.EventInsert, Collection: model.CollectionCards, Row: model.ContentItem{ID: id}}))
	}
	for id := int64(1); id <= 5; id++ {
		assert.Equal(t, id, (<-ch).Row.ID)
	}
}

func TestRealtimeUsecase_FullChannelDropsWithoutBlocking(t *testing.T) {
	ctx := context.Background()
	rt := NewRealtimeUsecase(logger.Nop())
	ch := make(chan model.ChangeEvent, 1)
	require.NoError(t, rt.Subscribe(ctx, "slow", model.CollectionCards, ch))

	for i := 0; i < 3; i++ {
		require.NoError(t, rt.PublishEvent(ctx, model.ChangeEvent{Collection: model.CollectionCards}))
	}
	assert.Len(t, ch, 1)
}

func TestRealtimeUsecase_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	rt := NewRealtimeUsecase(logger.Nop())
	ch := make(chan model.ChangeEvent, 1)

	require.NoError(t, rt.Subscribe(ctx, "a", model.CollectionCards, ch))
	require.NoError(t, rt.Subscribe(ctx, "a", model.CollectionPhotos, ch))
	assert.Equal(t, 1, rt.SubscriberCount(model.CollectionCards))

	require.NoError(t, rt.Unsubscribe(ctx, "a", model.CollectionCards))
	assert.Equal(t, 0, rt.SubscriberCount(model.CollectionCards))
	assert.Equal(t, 1, rt.SubscriberCount(model.CollectionPhotos))

	require.NoError(t, rt.Unsubscribe(ctx, "ghost", model.CollectionPhotos))
	require.NoError(t, rt.UnsubscribeAll(ctx, "a"))
	assert.Equal(t, 0, rt.SubscriberCount(model.CollectionPhotos))
}

func TestRealtimeUsecase_RejectsUnknownCollection(t *testing.T) {
	rt := NewRealtimeUsecase(logger.Nop())
	err := rt.Subscribe(context.Background(), "a", model.Collection("x"), make(chan model.ChangeEvent))
	assert.Error(t, err)
}

func TestChangeEventHandler_RejectsForeignPayload(t *testing.T) {
	h := ChangeEventHandler(func(ctx context.Context, e model.ChangeEvent) error { return nil })
	err := h(context.Background(), eventbus.NewBasicEventWithSource(eventbus.EventTypeRecordChanged, "not an event", "test"))
	assert.Error(t, err)
}

func TestCollectionWritesReachRealtimeSubscribers(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewEventBus(logger.Nop())
	rt := NewRealtimeUsecase(logger.Nop())
	bus.Subscribe(eventbus.EventTypeRecordChanged, ChangeEventHandler(rt.PublishEvent))

	ch := make(chan model.ChangeEvent, 4)
	require.NoError(t, rt.Subscribe(ctx, "viewer", model.CollectionPhotos, ch))

	uc := NewCollectionUsecase(testutil.NewMemoryRecords(), nil, bus, "", logger.Nop())
	_, err := uc.Create(ctx, model.CollectionPhotos, []model.ContentItem{{MediaRef: "a"}})
	require.NoError(t, err)

	e := <-ch
	assert.Equal(t, model.EventInsert, e.Kind)
	assert.Equal(t, int64(1), e.Row.ID)
}

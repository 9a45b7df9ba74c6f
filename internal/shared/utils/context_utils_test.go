package utils

import (
	"context"
	"testing"

	"keepsake/internal/shared/contextkeys"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	_, err := GetRequestIDFromContext(ctx)
	assert.ErrorIs(t, err, ErrRequestIDNotFound)
	assert.Equal(t, "none", GetRequestIDOrDefault(ctx, "none"))

	ctx = WithRequestID(ctx, "req-7")
	id, err := GetRequestIDFromContext(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "req-7", id)
	assert.Equal(t, "req-7", GetRequestIDOrDefault(ctx, "none"))
}

func TestCollection(t *testing.T) {
	ctx := WithCollection(context.Background(), "gallery")
	c, err := GetCollectionFromContext(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "gallery", c)

	ctx = context.WithValue(context.Background(), contextkeys.CollectionKey, 42)
	_, err = GetCollectionFromContext(ctx)
	assert.ErrorIs(t, err, ErrCollectionNotString)
}

func TestWithComponent(t *testing.T) {
	ctx := WithComponent(context.Background(), "relay")
	assert.Equal(t, "relay", ctx.Value(contextkeys.ComponentKey))
}

package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActorID(t *testing.T) {
	ctx := context.Background()
	_, ok := GetActorID(ctx)
	assert.False(t, ok)

	id, ok := GetActorID(WithActorID(ctx, 42))
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestTenantID(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetTenantID(ctx))

	got := GetTenantID(WithTenantID(ctx, 7))
	require.NotNil(t, got)
	assert.Equal(t, int64(7), *got)
}

func TestRequestID(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
	assert.Equal(t, "abc", GetRequestID(WithRequestID(context.Background(), "abc")))
}

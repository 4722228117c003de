//go:build integration

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrface/internal/store/storetest"
)

func TestRefreshStoreRotation(t *testing.T) {
	s := NewRefreshStore(storetest.Open(t, "refresh_tokens"))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "a@kampus.ac.id", "live", time.Now().Add(time.Hour)))
	require.NoError(t, s.Save(ctx, "a@kampus.ac.id", "stale", time.Now().Add(-time.Minute)))

	require.NoError(t, s.Consume(ctx, "live"))
	assert.Error(t, s.Consume(ctx, "live"), "single use")
	assert.Error(t, s.Consume(ctx, "stale"))
	assert.Error(t, s.Consume(ctx, "unknown"))
}

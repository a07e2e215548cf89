package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishRecordsPayloads(t *testing.T) {
	t.Parallel()

	p := New()
	id, err := p.Publish(context.Background(), map[string]any{"created": 3})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	id, err = p.Publish(context.Background(), map[string]any{"created": 0})
	require.NoError(t, err)
	require.Equal(t, "memory-2", id)
	require.Len(t, p.Payloads(), 2)
}

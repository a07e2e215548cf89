package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoresCopies(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	data := []byte(`{"records":[]}`)
	require.NoError(t, m.Save(context.Background(), "runs/2026-08-04.json", data))

	data[0] = 'X'
	stored, ok := m.Object("runs/2026-08-04.json")
	require.True(t, ok)
	require.Equal(t, []byte(`{"records":[]}`), stored)
	require.Equal(t, 1, m.Len())
}

func TestGCSRequiresClientAndBucket(t *testing.T) {
	t.Parallel()

	_, err := NewGCS(nil, Config{Bucket: "batches"})
	require.Error(t, err)
}

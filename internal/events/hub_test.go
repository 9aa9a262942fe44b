package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRingBufferOverwritesOldest(t *testing.T) {
	h := NewHub(3)
	for i := 1; i <= 5; i++ {
		h.Publish(TypeTaskSucceeded, map[string]int{"n": i})
	}

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 3)
	assert.Equal(t, int64(3), snap[0].ID)
	assert.Equal(t, int64(5), snap[2].ID)

	var data map[string]int
	require.NoError(t, json.Unmarshal(snap[2].Data, &data))
	assert.Equal(t, 5, data["n"])

	since := h.SnapshotSince(4)
	require.Len(t, since, 1)
	assert.Equal(t, int64(5), since[0].ID)

	assert.Equal(t, int64(5), h.Count(TypeTaskSucceeded))
}

func TestHubRecentFiltersByType(t *testing.T) {
	h := NewHub(10)
	h.Publish(TypeTaskSucceeded, nil)
	h.Publish(TypeTaskFailed, map[string]string{"task": "a"})
	h.Publish(TypeTaskSucceeded, nil)
	h.Publish(TypeTaskPanicked, map[string]string{"task": "b"})
	h.Publish(TypeTaskFailed, map[string]string{"task": "c"})

	failures := h.Recent(2, TypeTaskFailed, TypeTaskPanicked)
	require.Len(t, failures, 2)
	assert.Equal(t, int64(5), failures[0].ID)
	assert.Equal(t, TypeTaskPanicked, failures[1].Type)

	all := h.Recent(100)
	assert.Len(t, all, 5)
	assert.Equal(t, json.RawMessage("{}"), all[4].Data)

	assert.Empty(t, NewHub(0).Recent(5))
}

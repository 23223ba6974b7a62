package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vista/provisioner/internal/dokploy"
)

func TestFindProject(t *testing.T) {
	list := dokploy.ListResponse([]any{
		map[string]any{"projectId": "proj-1", "name": "Acme-001"},
		map[string]any{"projectId": "proj-2", "name": "Globex-001"},
	})

	p, ok := findProject(list, "proj-2")
	require.True(t, ok)
	assert.Equal(t, "Globex-001", p["name"])

	_, ok = findProject(list, "proj-9")
	assert.False(t, ok)
}

func TestFindProject_DataWrapper(t *testing.T) {
	resp := dokploy.ObjectResponse(map[string]any{
		"data": []any{
			map[string]any{"projectId": "proj-1"},
		},
	})

	_, ok := findProject(resp, "proj-1")
	assert.True(t, ok)
}

func TestNewestDatabase_PicksLatestByTimestamp(t *testing.T) {
	project := map[string]any{
		"postgres": []any{
			map[string]any{"id": "db-old", "createdAt": "2026-01-01T00:00:00Z"},
			map[string]any{"id": "db-new", "createdAt": "2026-02-01T00:00:00Z"},
			map[string]any{"id": "db-mid", "createdAt": "2026-01-15T00:00:00Z"},
		},
	}

	entry, ok := newestDatabase(project)
	require.True(t, ok)
	assert.Equal(t, "db-new", entry["id"])
}

func TestNewestDatabase_FallsBackToFirstWithoutTimestamps(t *testing.T) {
	project := map[string]any{
		"postgres": []any{
			map[string]any{"id": "db-a"},
			map[string]any{"id": "db-b"},
		},
	}

	entry, ok := newestDatabase(project)
	require.True(t, ok)
	assert.Equal(t, "db-a", entry["id"])
}

func TestNewestDatabase_Empty(t *testing.T) {
	_, ok := newestDatabase(map[string]any{"postgres": []any{}})
	assert.False(t, ok)

	_, ok = newestDatabase(map[string]any{})
	assert.False(t, ok)
}

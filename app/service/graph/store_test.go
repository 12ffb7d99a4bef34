package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphmem/app/config"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	dir := t.TempDir()

	di := do.New()
	t.Cleanup(func() { _ = di.Shutdown() })

	do.ProvideValue(di, &config.Config{
		Storage: config.Storage{Dir: dir},
	})
	do.Provide(di, NewStore)

	return do.MustInvoke[*Store](di), dir
}

func TestStore_RoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	graph := &KnowledgeGraph{
		Entities: []Entity{
			{Name: "B", EntityType: "T2", Observations: []string{"two", "three"}},
			{Name: "A", EntityType: "T1", Observations: []string{"one"}},
		},
		Relationships: []Relationship{
			{From: "B", To: "A", RelationshipType: "precedes"},
			{From: "A", To: "B", RelationshipType: "follows"},
		},
	}

	require.NoError(t, store.Save("", graph))

	loaded, err := store.Load("")
	require.NoError(t, err)
	assert.Equal(t, graph, loaded)
}

func TestStore_LoadMissingFileYieldsEmptyGraph(t *testing.T) {
	store, _ := newTestStore(t)

	graph, err := store.Load("never-written")
	require.NoError(t, err)
	assert.Empty(t, graph.Entities)
	assert.Empty(t, graph.Relationships)
}

func TestStore_SaveOverwritesWholePartition(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Save("", &KnowledgeGraph{
		Entities: []Entity{{Name: "Old", EntityType: "T"}},
	}))
	require.NoError(t, store.Save("", &KnowledgeGraph{
		Entities: []Entity{{Name: "New", EntityType: "T"}},
	}))

	loaded, err := store.Load("")
	require.NoError(t, err)
	require.Len(t, loaded.Entities, 1)
	assert.Equal(t, "New", loaded.Entities[0].Name)
}

func TestStore_SessionKeySanitized(t *testing.T) {
	store, dir := newTestStore(t)

	require.NoError(t, store.Save("../escape/attempt", &KnowledgeGraph{
		Entities: []Entity{{Name: "X", EntityType: "T"}},
	}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "memory-.._escape_attempt.json", entries[0].Name())

	_, err = os.Stat(filepath.Join(dir, "memory-.._escape_attempt.json"))
	require.NoError(t, err)
}

func TestStore_RejectsUnknownRecordType(t *testing.T) {
	store, dir := newTestStore(t)

	path := filepath.Join(dir, "memory.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"banana","name":"X"}`+"\n"), 0644))

	_, err := store.Load("")
	require.Error(t, err)
}

func TestStore_SkipsBlankLines(t *testing.T) {
	store, dir := newTestStore(t)

	content := `{"type":"entity","name":"A","entityType":"T"}

{"type":"relationship","from":"A","to":"B","relationshipType":"r"}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "memory.json"), []byte(content), 0644))

	graph, err := store.Load("")
	require.NoError(t, err)
	assert.Len(t, graph.Entities, 1)
	assert.Len(t, graph.Relationships, 1)
}

func TestStore_Partitions(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Save("", &KnowledgeGraph{}))
	require.NoError(t, store.Save("beta", &KnowledgeGraph{}))
	require.NoError(t, store.Save("alpha", &KnowledgeGraph{}))

	sessions, err := store.Partitions()
	require.NoError(t, err)
	assert.Equal(t, []string{"", "alpha", "beta"}, sessions)
}

package graph

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/samber/do"

	"graphmem/app/config"
)

const (
	globalFileName  = "memory.json"
	sessionFileBase = "memory-"
)

// Store persists one knowledge graph per session as newline-delimited JSON,
// one record per entity and one per relationship. The empty session key
// denotes the global graph. A per-session mutex serializes the whole
// load-transform-save cycle of the engine, so two concurrent mutations of
// the same session cannot lose each other's writes.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(di *do.Injector) (*Store, error) {
	cfg := do.MustInvoke[*config.Config](di)

	if err := os.MkdirAll(cfg.Storage.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}

	return &Store{
		dir:   cfg.Storage.Dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Lock acquires the mutex for one session and returns its unlock func.
func (s *Store) Lock(session string) func() {
	s.mu.Lock()
	lock, ok := s.locks[session]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[session] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// sanitizeSession strips anything that could escape the storage dir
// when the session key is turned into a file name.
func sanitizeSession(session string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '_' || r == '-':
			return r
		default:
			return '_'
		}
	}, session)
}

func (s *Store) filePath(session string) string {
	if session == "" {
		return filepath.Join(s.dir, globalFileName)
	}

	return filepath.Join(s.dir, sessionFileBase+sanitizeSession(session)+".json")
}

// Load reads the graph of one session. A missing file is not an error,
// it yields the empty graph.
func (s *Store) Load(session string) (*KnowledgeGraph, error) {
	graph := &KnowledgeGraph{
		Entities:      []Entity{},
		Relationships: []Relationship{},
	}

	file, err := os.Open(s.filePath(session))
	if err != nil {
		if os.IsNotExist(err) {
			return graph, nil
		}

		return nil, fmt.Errorf("failed to open memory file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var item jsonLineItem
		if err = json.Unmarshal([]byte(line), &item); err != nil {
			return nil, fmt.Errorf("failed to parse JSON line: %w", err)
		}

		switch item.Type {
		case lineTypeEntity:
			graph.Entities = append(graph.Entities, Entity{
				Name:         item.Name,
				EntityType:   item.EntityType,
				Observations: item.Observations,
			})
		case lineTypeRelationship:
			graph.Relationships = append(graph.Relationships, Relationship{
				From:             item.From,
				To:               item.To,
				RelationshipType: item.RelationshipType,
			})
		default:
			return nil, fmt.Errorf("unknown record type %q", item.Type)
		}
	}

	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading memory file: %w", err)
	}

	return graph, nil
}

// Save overwrites the whole persisted state of one session.
func (s *Store) Save(session string, graph *KnowledgeGraph) error {
	file, err := os.OpenFile(s.filePath(session), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create/open memory file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	for _, e := range graph.Entities {
		item := jsonLineItem{
			Type:         lineTypeEntity,
			Name:         e.Name,
			EntityType:   e.EntityType,
			Observations: e.Observations,
		}
		if err = writeLine(writer, item); err != nil {
			return err
		}
	}

	for _, r := range graph.Relationships {
		item := jsonLineItem{
			Type:             lineTypeRelationship,
			From:             r.From,
			To:               r.To,
			RelationshipType: r.RelationshipType,
		}
		if err = writeLine(writer, item); err != nil {
			return err
		}
	}

	if err = writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}

	return nil
}

func writeLine(writer *bufio.Writer, item jsonLineItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if _, err = writer.WriteString(string(data) + "\n"); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	return nil
}

// Partitions lists every session that has persisted state, the global
// session reported as the empty string.
func (s *Store) Partitions() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage dir: %w", err)
	}

	var sessions []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		switch {
		case name == globalFileName:
			sessions = append(sessions, "")
		case strings.HasPrefix(name, sessionFileBase) && strings.HasSuffix(name, ".json"):
			sessions = append(sessions, strings.TrimSuffix(strings.TrimPrefix(name, sessionFileBase), ".json"))
		}
	}

	sort.Strings(sessions)

	return sessions, nil
}

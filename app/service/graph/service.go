package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

// ErrEntityNotFound is returned by AddObservations when a referenced
// entity does not exist in the session's graph.
var ErrEntityNotFound = errors.New("entity not found")

// Service is the graph engine. It holds no graph state of its own: every
// operation loads the session's graph, transforms it in memory and, for
// mutations, saves the result back in one locked cycle.
type Service struct {
	store *Store
}

func New(di *do.Injector) (*Service, error) {
	return &Service{
		store: do.MustInvoke[*Store](di),
	}, nil
}

// CreateEntities appends the input entities whose names are not already
// stored and returns exactly that subset. Duplicates within the input
// batch are only checked against existing state, not against each other.
func (s *Service) CreateEntities(ctx context.Context, session string, entities []Entity) ([]Entity, error) {
	unlock := s.store.Lock(session)
	defer unlock()

	graph, err := s.store.Load(session)
	if err != nil {
		return nil, err
	}

	existing := make(map[string]struct{}, len(graph.Entities))
	for _, e := range graph.Entities {
		existing[e.Name] = struct{}{}
	}

	created := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if _, ok := existing[e.Name]; ok {
			continue
		}

		created = append(created, e)
	}

	graph.Entities = append(graph.Entities, created...)

	if err = s.store.Save(session, graph); err != nil {
		return nil, err
	}

	slog.Info("Created entities", "session", session, "count", len(created))

	return created, nil
}

// CreateRelationships appends the input relationships whose exact
// (from, to, relationshipType) triple is not already stored and returns
// that subset.
func (s *Service) CreateRelationships(ctx context.Context, session string, relationships []Relationship) ([]Relationship, error) {
	unlock := s.store.Lock(session)
	defer unlock()

	graph, err := s.store.Load(session)
	if err != nil {
		return nil, err
	}

	existing := make(map[Relationship]struct{}, len(graph.Relationships))
	for _, r := range graph.Relationships {
		existing[r] = struct{}{}
	}

	created := make([]Relationship, 0, len(relationships))
	for _, r := range relationships {
		if _, ok := existing[r]; ok {
			continue
		}

		created = append(created, r)
	}

	graph.Relationships = append(graph.Relationships, created...)

	if err = s.store.Save(session, graph); err != nil {
		return nil, err
	}

	slog.Info("Created relationships", "session", session, "count", len(created))

	return created, nil
}

// AddObservations appends the not-yet-present contents to each named
// entity. A request naming an unknown entity fails the whole call with
// ErrEntityNotFound; nothing is persisted in that case.
func (s *Service) AddObservations(ctx context.Context, session string, requests []AddObservationsRequest) ([]AddObservationsResult, error) {
	unlock := s.store.Lock(session)
	defer unlock()

	graph, err := s.store.Load(session)
	if err != nil {
		return nil, err
	}

	results := make([]AddObservationsResult, 0, len(requests))

	for _, req := range requests {
		idx := pie.FindFirstUsing(graph.Entities, func(e Entity) bool {
			return e.Name == req.EntityName
		})
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, req.EntityName)
		}

		entity := &graph.Entities[idx]

		// Filter against the entity's state before appending, so a
		// content repeated within one request is appended twice. This
		// mirrors the create-time batch behavior.
		added := make([]string, 0, len(req.Contents))
		for _, content := range req.Contents {
			if !pie.Contains(entity.Observations, content) {
				added = append(added, content)
			}
		}

		entity.Observations = append(entity.Observations, added...)

		results = append(results, AddObservationsResult{
			EntityName:        req.EntityName,
			AddedObservations: added,
		})
	}

	if err = s.store.Save(session, graph); err != nil {
		return nil, err
	}

	slog.Info("Added observations", "session", session, "entities", len(results))

	return results, nil
}

// DeleteEntities removes every named entity and cascades to every
// relationship touching a removed name on either side. Unknown names are
// ignored.
func (s *Service) DeleteEntities(ctx context.Context, session string, names []string) error {
	unlock := s.store.Lock(session)
	defer unlock()

	graph, err := s.store.Load(session)
	if err != nil {
		return err
	}

	deleted := make(map[string]struct{}, len(names))
	for _, name := range names {
		deleted[name] = struct{}{}
	}

	graph.Entities = pie.Filter(graph.Entities, func(e Entity) bool {
		_, ok := deleted[e.Name]
		return !ok
	})

	graph.Relationships = pie.Filter(graph.Relationships, func(r Relationship) bool {
		_, fromDeleted := deleted[r.From]
		_, toDeleted := deleted[r.To]
		return !fromDeleted && !toDeleted
	})

	if err = s.store.Save(session, graph); err != nil {
		return err
	}

	slog.Info("Deleted entities", "session", session, "names", names)

	return nil
}

// DeleteObservations removes the listed observation strings from each
// named entity. Requests naming unknown entities are ignored.
func (s *Service) DeleteObservations(ctx context.Context, session string, deletions []DeleteObservationsRequest) error {
	unlock := s.store.Lock(session)
	defer unlock()

	graph, err := s.store.Load(session)
	if err != nil {
		return err
	}

	for _, d := range deletions {
		idx := pie.FindFirstUsing(graph.Entities, func(e Entity) bool {
			return e.Name == d.EntityName
		})
		if idx < 0 {
			continue
		}

		toDelete := make(map[string]struct{}, len(d.Observations))
		for _, obs := range d.Observations {
			toDelete[obs] = struct{}{}
		}

		graph.Entities[idx].Observations = pie.Filter(graph.Entities[idx].Observations, func(obs string) bool {
			_, ok := toDelete[obs]
			return !ok
		})
	}

	if err = s.store.Save(session, graph); err != nil {
		return err
	}

	slog.Info("Deleted observations", "session", session, "entities", len(deletions))

	return nil
}

// DeleteRelationships removes every stored relationship exactly matching
// one of the given triples. Non-matching triples are ignored.
func (s *Service) DeleteRelationships(ctx context.Context, session string, relationships []Relationship) error {
	unlock := s.store.Lock(session)
	defer unlock()

	graph, err := s.store.Load(session)
	if err != nil {
		return err
	}

	toDelete := make(map[Relationship]struct{}, len(relationships))
	for _, r := range relationships {
		toDelete[r] = struct{}{}
	}

	graph.Relationships = pie.Filter(graph.Relationships, func(r Relationship) bool {
		_, ok := toDelete[r]
		return !ok
	})

	if err = s.store.Save(session, graph); err != nil {
		return err
	}

	slog.Info("Deleted relationships", "session", session, "count", len(relationships))

	return nil
}

// ReadGraph returns the session's full graph in stored order.
func (s *Service) ReadGraph(ctx context.Context, session string) (*KnowledgeGraph, error) {
	unlock := s.store.Lock(session)
	defer unlock()

	return s.store.Load(session)
}

// SearchNodes returns the subgraph of entities whose name, type or any
// observation contains the query, case-insensitively.
func (s *Service) SearchNodes(ctx context.Context, session string, query string) (*KnowledgeGraph, error) {
	unlock := s.store.Lock(session)
	defer unlock()

	graph, err := s.store.Load(session)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)

	matched := pie.Filter(graph.Entities, func(e Entity) bool {
		if strings.Contains(strings.ToLower(e.Name), query) {
			return true
		}
		if strings.Contains(strings.ToLower(e.EntityType), query) {
			return true
		}

		return pie.Any(e.Observations, func(obs string) bool {
			return strings.Contains(strings.ToLower(obs), query)
		})
	})

	result := subgraph(graph, matched)

	slog.Info("Search completed",
		"session", session,
		"query", query,
		"entities_count", len(result.Entities),
	)

	return result, nil
}

// OpenNodes returns the subgraph of entities whose name appears in the
// given list. Unknown names are simply absent from the result.
func (s *Service) OpenNodes(ctx context.Context, session string, names []string) (*KnowledgeGraph, error) {
	unlock := s.store.Lock(session)
	defer unlock()

	graph, err := s.store.Load(session)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}

	matched := pie.Filter(graph.Entities, func(e Entity) bool {
		_, ok := wanted[e.Name]
		return ok
	})

	return subgraph(graph, matched), nil
}

// subgraph keeps the matched entities plus every relationship connected
// to a matched name on either side, even when the other endpoint did not
// match.
func subgraph(graph *KnowledgeGraph, matched []Entity) *KnowledgeGraph {
	matchedNames := make(map[string]struct{}, len(matched))
	for _, e := range matched {
		matchedNames[e.Name] = struct{}{}
	}

	relationships := pie.Filter(graph.Relationships, func(r Relationship) bool {
		_, fromMatched := matchedNames[r.From]
		_, toMatched := matchedNames[r.To]
		return fromMatched || toMatched
	})

	return &KnowledgeGraph{
		Entities:      matched,
		Relationships: relationships,
	}
}

// Stats loads every persisted session concurrently and reports its
// entity and relationship counts, sorted by session key.
func (s *Service) Stats(ctx context.Context) ([]PartitionStats, error) {
	sessions, err := s.store.Partitions()
	if err != nil {
		return nil, err
	}

	stats := make([]PartitionStats, len(sessions))

	g, _ := errgroup.WithContext(ctx)
	for i, session := range sessions {
		g.Go(func() error {
			unlock := s.store.Lock(session)
			defer unlock()

			graph, err := s.store.Load(session)
			if err != nil {
				return err
			}

			stats[i] = PartitionStats{
				Session:       session,
				Entities:      len(graph.Entities),
				Relationships: len(graph.Relationships),
			}

			return nil
		})
	}

	if err = g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Session < stats[j].Session
	})

	return stats, nil
}

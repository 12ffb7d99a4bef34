package graph

// Entity is a named node in the knowledge graph. Identity is Name;
// at most one entity per name exists within a session.
type Entity struct {
	Name         string   `json:"name" validate:"required"`
	EntityType   string   `json:"entityType" validate:"required"`
	Observations []string `json:"observations"`
}

// Relationship is a directed, typed edge between two entity names.
// From and To are free-form strings, the store never checks that they
// name existing entities. Identity is the whole triple.
type Relationship struct {
	From             string `json:"from" validate:"required"`
	To               string `json:"to" validate:"required"`
	RelationshipType string `json:"relationshipType" validate:"required"`
}

// KnowledgeGraph is the entire persisted state of one session.
// Insertion order of both sequences is preserved across save/load.
type KnowledgeGraph struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

type jsonLineItem struct {
	Type string `json:"type"`

	// entity fields
	Name         string   `json:"name,omitempty"`
	EntityType   string   `json:"entityType,omitempty"`
	Observations []string `json:"observations,omitempty"`

	// relationship fields
	From             string `json:"from,omitempty"`
	To               string `json:"to,omitempty"`
	RelationshipType string `json:"relationshipType,omitempty"`
}

const (
	lineTypeEntity       = "entity"
	lineTypeRelationship = "relationship"
)

type AddObservationsRequest struct {
	EntityName string   `json:"entityName" validate:"required"`
	Contents   []string `json:"contents"`
}

type AddObservationsResult struct {
	EntityName        string   `json:"entityName"`
	AddedObservations []string `json:"addedObservations"`
}

type DeleteObservationsRequest struct {
	EntityName   string   `json:"entityName" validate:"required"`
	Observations []string `json:"observations"`
}

// PartitionStats is a per-session summary of stored graph sizes.
type PartitionStats struct {
	Session       string `json:"session"`
	Entities      int    `json:"entities"`
	Relationships int    `json:"relationships"`
}

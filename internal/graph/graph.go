// Package graph records typed relationships between event, user and
// subscription identifiers.
//
// The structure is a three-level multimap, subject -> relation type ->
// set of objects. It only grows: there is no delete, and adding an edge
// that already exists is a no-op. Every level is a concurrent map, so
// single edges can be added from any goroutine. Callers that derive
// several edges from one input and need them to appear together must
// hold their own lock around the sequence.
package graph

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// RelationType names the kind of edge.
type RelationType int

const (
	SearchToSubscriptionID RelationType = 10 // search text -> subscription id
	SubscriptionGUIDToIDs  RelationType = 11 // discovery subscription -> ids it found
	RootLevelSubscription  RelationType = 14 // subscription -> root id of a page fetch
	EventChildren          RelationType = 15 // event -> events that tag it
	EventsByUser           RelationType = 16 // pubkey -> authored events
	UserByEvent            RelationType = 17 // event -> author pubkey
	EventParent            RelationType = 18 // event -> parent it replies to
	EventRoot              RelationType = 19 // event -> thread root
	ReferencedEvent        RelationType = 20 // event -> event embedded in its content
	EventMentionsUser      RelationType = 21 // event -> profile embedded in its content
)

type objectSet = *xsync.MapOf[string, struct{}]

type relationMap = *xsync.MapOf[RelationType, objectSet]

// Graph is the relation store. The zero value is not usable; call New.
type Graph struct {
	subjects *xsync.MapOf[string, relationMap]
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{subjects: xsync.NewMapOf[string, relationMap]()}
}

// AddRelation inserts subject -type-> object.
func (g *Graph) AddRelation(subject string, relType RelationType, object string) {
	relations, _ := g.subjects.LoadOrCompute(subject, func() relationMap {
		return xsync.NewMapOf[RelationType, objectSet]()
	})
	objects, _ := relations.LoadOrCompute(relType, func() objectSet {
		return xsync.NewMapOf[string, struct{}]()
	})
	objects.Store(object, struct{}{})
}

// TryGetRelation returns the objects of subject under relType, sorted.
func (g *Graph) TryGetRelation(subject string, relType RelationType) ([]string, bool) {
	objects, ok := g.lookup(subject, relType)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, objects.Size())
	objects.Range(func(object string, _ struct{}) bool {
		out = append(out, object)
		return true
	})
	sort.Strings(out)
	return out, true
}

// TryGetRelations unions the objects of every subject under relType.
// found is true if at least one subject had the relation.
func (g *Graph) TryGetRelations(subjects []string, relType RelationType) ([]string, bool) {
	found := false
	seen := make(map[string]struct{})
	for _, subject := range subjects {
		objects, ok := g.lookup(subject, relType)
		if !ok {
			continue
		}
		found = true
		objects.Range(func(object string, _ struct{}) bool {
			seen[object] = struct{}{}
			return true
		})
	}
	if !found {
		return nil, false
	}

	out := make([]string, 0, len(seen))
	for object := range seen {
		out = append(out, object)
	}
	sort.Strings(out)
	return out, true
}

// RelationExists reports whether subject has any edge of relType.
func (g *Graph) RelationExists(subject string, relType RelationType) bool {
	_, ok := g.lookup(subject, relType)
	return ok
}

// Size returns the number of subjects.
func (g *Graph) Size() int {
	return g.subjects.Size()
}

func (g *Graph) lookup(subject string, relType RelationType) (objectSet, bool) {
	relations, ok := g.subjects.Load(subject)
	if !ok {
		return nil, false
	}
	objects, ok := relations.Load(relType)
	if !ok || objects.Size() == 0 {
		return nil, false
	}
	return objects, true
}

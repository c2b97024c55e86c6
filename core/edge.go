package core

// EdgeNetwork is the opaque edge/CDN capability the core consumes but
// never implements. A request that an edge node can serve is counted as
// served without touching pool state.
type EdgeNetwork interface {
	// FindNearestEdge resolves a request origin to an edge node, if one
	// covers that location.
	FindNearestEdge(location string) (edgeID string, ok bool)
	// ServeFromEdge attempts to serve contentID from the given edge node
	// and reports whether it was a hit.
	ServeFromEdge(edgeID, contentID string) bool
}

// StaticEdge is a deterministic EdgeNetwork backed by a fixed location map
// and an injectable serve policy. It exists for wiring and tests; real
// deployments plug in an external edge subsystem.
type StaticEdge struct {
	// Nodes maps a location to the edge node covering it.
	Nodes map[string]string
	// ServePolicy decides cache hits. Nil means every lookup on a known
	// edge is a hit.
	ServePolicy func(edgeID, contentID string) bool
}

func (s *StaticEdge) FindNearestEdge(location string) (string, bool) {
	id, ok := s.Nodes[location]
	return id, ok
}

func (s *StaticEdge) ServeFromEdge(edgeID, contentID string) bool {
	if _, known := nodeSet(s.Nodes)[edgeID]; !known {
		return false
	}
	if s.ServePolicy == nil {
		return true
	}
	return s.ServePolicy(edgeID, contentID)
}

func nodeSet(nodes map[string]string) map[string]struct{} {
	set := make(map[string]struct{}, len(nodes))
	for _, id := range nodes {
		set[id] = struct{}{}
	}
	return set
}

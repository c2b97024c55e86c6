package core

import "math/rand"

// DemandSource produces the origins (and optional content IDs) of
// simulated traffic. Implementations must be deterministic for a given
// construction so test runs are reproducible.
type DemandSource interface {
	Next() (origin, contentID string)
}

// SeededDemand samples origins and content IDs from fixed slices with an
// explicitly seeded generator.
type SeededDemand struct {
	rng      *rand.Rand
	origins  []string
	contents []string
}

// NewSeededDemand builds a demand source. contents may be empty, in which
// case Next returns empty content IDs and requests never hit the edge.
func NewSeededDemand(seed int64, origins, contents []string) *SeededDemand {
	return &SeededDemand{
		rng:      rand.New(rand.NewSource(seed)),
		origins:  origins,
		contents: contents,
	}
}

func (d *SeededDemand) Next() (string, string) {
	var origin, content string
	if len(d.origins) > 0 {
		origin = d.origins[d.rng.Intn(len(d.origins))]
	}
	if len(d.contents) > 0 {
		content = d.contents[d.rng.Intn(len(d.contents))]
	}
	return origin, content
}

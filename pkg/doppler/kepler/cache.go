package kepler

import "sync"

type cacheKey struct {
	meanAnomaly  float64
	eccentricity float64
}

// SolveCache memoizes scalar Kepler solves. It is an explicit object owned
// by whoever attaches it to a Solver; Calls and Hits count every lookup and
// every cache hit. Safe for concurrent use.
type SolveCache struct {
	mu      sync.Mutex
	entries map[cacheKey]float64

	Calls int64
	Hits  int64
}

// NewSolveCache creates an empty cache.
func NewSolveCache() *SolveCache {
	return &SolveCache{entries: make(map[cacheKey]float64)}
}

func (c *SolveCache) solve(s *Solver, meanAnomaly, eccentricity float64) (float64, error) {
	key := cacheKey{meanAnomaly: meanAnomaly, eccentricity: eccentricity}

	c.mu.Lock()
	c.Calls++
	if e, ok := c.entries[key]; ok {
		c.Hits++
		c.mu.Unlock()
		return e, nil
	}
	c.mu.Unlock()

	e, err := s.solve(meanAnomaly, eccentricity)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return e, nil
}

// Len returns the number of memoized solutions.
func (c *SolveCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

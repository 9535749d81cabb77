package domain

import "time"

// Observation is one externally reported "recently played" event.
type Observation struct {
	TrackID   string
	TrackName string
	Artists   []string
	PlayedAt  time.Time
}

// Match associates an observed track name with a single catalog row.
type Match struct {
	ObservedName string
	Row          CatalogRow
}

// MatchSet is an insertion-ordered mapping from observed display name to match.
// Setting an existing name replaces its value but keeps its original position.
type MatchSet struct {
	order  []string
	byName map[string]Match
}

// NewMatchSet returns an empty MatchSet.
func NewMatchSet() *MatchSet {
	return &MatchSet{byName: make(map[string]Match)}
}

// Set records m under its ObservedName. It reports whether an earlier match was replaced.
func (s *MatchSet) Set(m Match) bool {
	if s.byName == nil {
		s.byName = make(map[string]Match)
	}
	_, replaced := s.byName[m.ObservedName]
	if !replaced {
		s.order = append(s.order, m.ObservedName)
	}
	s.byName[m.ObservedName] = m
	return replaced
}

// Len returns the number of distinct observed names.
func (s *MatchSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Entries returns the matches in insertion order.
func (s *MatchSet) Entries() []Match {
	if s == nil {
		return nil
	}
	out := make([]Match, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}

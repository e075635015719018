package pipeline

import (
	"sort"
	"sync"
	"time"
)

// FaceMatch is one face's recognition outcome within a frame.
type FaceMatch struct {
	EmployeeCode string     `json:"employee_code"`
	EmployeeName string     `json:"employee_name,omitempty"`
	Score        float64    `json:"score"`
	Method       string     `json:"method"`
	BBox         [4]float64 `json:"bbox"`
}

// Results is the outcome of one recognition pass over a frame.
type Results struct {
	FrameSeq  uint64      `json:"frame_seq"`
	Faces     []FaceMatch `json:"faces"`
	ProcessMS float64     `json:"process_ms"`
	At        time.Time   `json:"at"`
}

// resultCell is the single-slot hand-back between the worker and readers.
// The worker overwrites, readers always see the most recent completed
// batch.
type resultCell struct {
	mu  sync.Mutex
	val Results
}

func (c *resultCell) store(r Results) {
	c.mu.Lock()
	c.val = r
	c.mu.Unlock()
}

func (c *resultCell) load() Results {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.val
}

func (c *resultCell) reset() {
	c.store(Results{})
}

// Sighting records the first time an employee was recognized during the
// current run.
type Sighting struct {
	EmployeeCode string    `json:"employee_code"`
	EmployeeName string    `json:"employee_name,omitempty"`
	Confidence   float64   `json:"confidence"`
	Method       string    `json:"method"`
	At           time.Time `json:"at"`
}

// recognizedSet remembers who has been seen on a given work date. A new
// date empties the set.
type recognizedSet struct {
	mu   sync.Mutex
	date string
	seen map[string]Sighting
}

// add records a sighting and reports whether it was the first one for this
// employee on this date.
func (s *recognizedSet) add(date string, sighting Sighting) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.date != date {
		s.date = date
		s.seen = make(map[string]Sighting)
	}
	if _, ok := s.seen[sighting.EmployeeCode]; ok {
		return false
	}
	s.seen[sighting.EmployeeCode] = sighting
	return true
}

// snapshot returns the sightings for a date ordered by first-seen time.
// A date other than the recorded one yields nothing.
func (s *recognizedSet) snapshot(date string) []Sighting {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.date != date {
		return nil
	}
	out := make([]Sighting, 0, len(s.seen))
	for _, sighting := range s.seen {
		out = append(out, sighting)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

func (s *recognizedSet) reset() {
	s.mu.Lock()
	s.date = ""
	s.seen = nil
	s.mu.Unlock()
}

// nameCache avoids a store lookup per recognized face. Entries live for
// the duration of a run.
type nameCache struct {
	mu    sync.Mutex
	names map[string]string
}

func (c *nameCache) get(code string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.names[code]
	return name, ok
}

func (c *nameCache) put(code, name string) {
	c.mu.Lock()
	if c.names == nil {
		c.names = make(map[string]string)
	}
	c.names[code] = name
	c.mu.Unlock()
}

func (c *nameCache) reset() {
	c.mu.Lock()
	c.names = nil
	c.mu.Unlock()
}

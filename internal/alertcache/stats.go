package alertcache

import (
	"fmt"
	"time"
)

// Stats summarizes one cache call.
type Stats struct {
	Created int           `json:"created"`
	Updated int           `json:"updated"`
	Deleted int           `json:"deleted"`
	Matched int           `json:"matched"`
	Errors  int           `json:"errors"`
	Age     time.Duration `json:"age"`

	start time.Time
}

func newStats() Stats {
	return Stats{start: time.Now()}
}

// finish stamps the elapsed time.
func (s Stats) finish() Stats {
	if !s.start.IsZero() {
		s.Age = time.Since(s.start)
	}
	return s
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Created += other.Created
	s.Updated += other.Updated
	s.Deleted += other.Deleted
	s.Matched += other.Matched
	s.Errors += other.Errors
}

func (s Stats) String() string {
	return fmt.Sprintf("created=%d updated=%d deleted=%d matched=%d errors=%d age=%s",
		s.Created, s.Updated, s.Deleted, s.Matched, s.Errors, s.Age)
}

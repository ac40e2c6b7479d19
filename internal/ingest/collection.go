package ingest

// PageFailure records a page that produced no items because its fetch or parse failed.
type PageFailure struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Collection is everything a Source gathered during one run. Pages counts page
// requests attempted including failures, Skipped counts malformed list items
// and Duplicates counts items dropped by the per-source link set.
type Collection struct {
	Source      string         `json:"source"`
	Candidates  []RawCandidate `json:"-"`
	Pages       int            `json:"pages"`
	FailedPages int            `json:"failed_pages"`
	Skipped     int            `json:"skipped"`
	Duplicates  int            `json:"duplicates"`
	Failures    []PageFailure  `json:"failures,omitempty"`
}

// Merge folds other into c. Candidates are appended in order.
func (c *Collection) Merge(other Collection) {
	c.Candidates = append(c.Candidates, other.Candidates...)
	c.Pages += other.Pages
	c.FailedPages += other.FailedPages
	c.Skipped += other.Skipped
	c.Duplicates += other.Duplicates
	c.Failures = append(c.Failures, other.Failures...)
}

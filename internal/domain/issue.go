package domain

import "time"

// IssueStatus is the closed set of lifecycle states. The four
// canonical names below are the only values accepted over any
// boundary; anything else fails closed.
type IssueStatus string

const (
	StatusPending    IssueStatus = "Pending"
	StatusInProgress IssueStatus = "InProgress"
	StatusForReview  IssueStatus = "ForReview"
	StatusResolved   IssueStatus = "Resolved"
)

func ParseIssueStatus(s string) (IssueStatus, bool) {
	switch IssueStatus(s) {
	case StatusPending, StatusInProgress, StatusForReview, StatusResolved:
		return IssueStatus(s), true
	}
	return "", false
}

func (s IssueStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusForReview:
		return 2
	case StatusResolved:
		return 3
	}
	return -1
}

// CanAdvanceTo reports whether a plain status update may move from s
// to target. The lifecycle never moves backward, Resolved is terminal,
// and Resolved is only reachable through the rated resolve operation.
func (s IssueStatus) CanAdvanceTo(target IssueStatus) bool {
	if s.rank() < 0 || target.rank() < 0 {
		return false
	}
	if s == StatusResolved || target == StatusResolved {
		return false
	}
	return target.rank() >= s.rank()
}

// Location is a WGS84 coordinate.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

const CategoryOther = "Other"

// Comment belongs to exactly one issue. Append-only; insertion order
// is chronological order.
type Comment struct {
	ID          int64     `json:"id"`
	AuthorID    int64     `json:"-"`
	AuthorEmail string    `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Issue is identified by its short public id, never by the storage
// key. The reporter is immutable after creation; status, rating and
// assignment only change through the lifecycle engine.
type Issue struct {
	PublicID        string      `json:"id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Category        string      `json:"category"`
	PhotoURLs       []string    `json:"photoUrls"`
	Location        Location    `json:"location"`
	Status          IssueStatus `json:"status"`
	CreatedAt       time.Time   `json:"createdAt"`
	ResolvedAt      *time.Time  `json:"resolvedAt,omitempty"`
	ReporterID      int64       `json:"-"`
	ReporterEmail   string      `json:"reporterId"`
	ReporterName    string      `json:"reporterName"`
	AssignedToID    *int64      `json:"-"`
	AssignedToEmail *string     `json:"assignedTo"`
	AssignedToName  *string     `json:"assignedToName"`
	Rating          *int        `json:"rating"`
	Comments        []Comment   `json:"comments"`
}

// IsAssignee reports whether the principal is the currently assigned
// worker.
func (i Issue) IsAssignee(p Principal) bool {
	return i.AssignedToID != nil && *i.AssignedToID == p.ID
}

// IsReporter reports whether the principal filed the issue.
func (i Issue) IsReporter(p Principal) bool {
	return i.ReporterID == p.ID
}

// IssueFilter narrows a listing. Nil fields match everything.
type IssueFilter struct {
	ReporterID   *int64
	AssignedToID *int64
}

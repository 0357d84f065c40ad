package schema

import "fmt"

// SortField names a task field lists can be ordered by.
type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
	SortTitle     SortField = "title"
	SortPriority  SortField = "priority"
	SortDueDate   SortField = "dueDate"
)

// Order is the sort direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// Query selects one page of tasks.
type Query struct {
	Page   int       // 1-based
	Limit  int       // page size
	SortBy SortField // default createdAt
	Order  Order     // default asc
	Status Status    // empty = all statuses
}

// Validate checks paging and sort parameters.
func (q Query) Validate() error {
	if q.Page < 1 {
		return fmt.Errorf("page must be at least 1 (got %d)", q.Page)
	}
	if q.Limit < 1 {
		return fmt.Errorf("limit must be at least 1 (got %d)", q.Limit)
	}
	switch q.SortBy {
	case SortCreatedAt, SortUpdatedAt, SortTitle, SortPriority, SortDueDate:
	default:
		return fmt.Errorf("unknown sort field %q", q.SortBy)
	}
	if q.Order != Asc && q.Order != Desc {
		return fmt.Errorf("unknown sort order %q", q.Order)
	}
	if q.Status != "" && !q.Status.Valid() {
		return fmt.Errorf("unknown status filter %q", q.Status)
	}
	return nil
}

// Page is one page of results plus the total number of matches.
type Page struct {
	Items []Task `json:"items" yaml:"items"`
	Total int    `json:"total" yaml:"total"`
}

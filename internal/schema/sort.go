package schema

import (
	"sort"
	"strings"
)

// SortTasks returns a sorted copy of tasks. Titles compare
// case-insensitively, dates as plain strings and priority numerically with a
// missing priority treated as 0. Ties keep their input order.
func SortTasks(tasks []Task, by SortField, order Order) []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)

	less := func(a, b Task) int {
		switch by {
		case SortTitle:
			return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		case SortUpdatedAt:
			return strings.Compare(a.UpdatedAt, b.UpdatedAt)
		case SortDueDate:
			return strings.Compare(a.DueDate, b.DueDate)
		case SortPriority:
			pa, pb := a.PriorityValue(), b.PriorityValue()
			switch {
			case pa < pb:
				return -1
			case pa > pb:
				return 1
			}
			return 0
		default:
			return strings.Compare(a.CreatedAt, b.CreatedAt)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		c := less(out[i], out[j])
		if order == Desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

// SelectPage filters tasks by q.Status, sorts them and slices out page
// q.Page. Total is the filtered count.
func SelectPage(tasks []Task, q Query) Page {
	filtered := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if q.Status != "" && t.Status != q.Status {
			continue
		}
		filtered = append(filtered, t)
	}

	sorted := SortTasks(filtered, q.SortBy, q.Order)

	start := (q.Page - 1) * q.Limit
	if start > len(sorted) {
		start = len(sorted)
	}
	end := start + q.Limit
	if end > len(sorted) {
		end = len(sorted)
	}

	items := make([]Task, end-start)
	copy(items, sorted[start:end])
	return Page{Items: items, Total: len(sorted)}
}

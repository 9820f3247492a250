package domain

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Page is one window of a filtered, sorted listing.
type Page[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// Query describes search, equality filters, sort and window for a listing.
// A zero Limit returns everything after Offset.
type Query struct {
	Search string
	SortBy string
	Desc   bool
	Limit  int
	Offset int
	Where  map[string]string
}

type fieldSet[T any] struct {
	search []string
	sort   map[string]func(a, b T) int
	text   map[string]func(T) string
}

var boardFields = fieldSet[Board]{
	search: []string{"name", "description"},
	sort: map[string]func(a, b Board) int{
		"name":             func(a, b Board) int { return cmp.Compare(a.Name, b.Name) },
		"description":      func(a, b Board) int { return cmp.Compare(a.Description, b.Description) },
		"public_assigning": func(a, b Board) int { return compareBool(a.PublicAssigning, b.PublicAssigning) },
		"created_at":       func(a, b Board) int { return a.CreatedAt.Compare(b.CreatedAt) },
		"updated_at":       func(a, b Board) int { return a.UpdatedAt.Compare(b.UpdatedAt) },
	},
	text: map[string]func(Board) string{
		"name":             func(b Board) string { return b.Name },
		"description":      func(b Board) string { return b.Description },
		"public_assigning": func(b Board) string { return strconv.FormatBool(b.PublicAssigning) },
	},
}

var taskFields = fieldSet[Task]{
	search: []string{"task", "assignee", "stage", "notes"},
	sort: map[string]func(a, b Task) int{
		"task":       func(a, b Task) int { return cmp.Compare(a.Task, b.Task) },
		"assignee":   func(a, b Task) int { return cmp.Compare(deref(a.Assignee), deref(b.Assignee)) },
		"stage":      func(a, b Task) int { return cmp.Compare(a.Stage, b.Stage) },
		"reward":     func(a, b Task) int { return cmp.Compare(a.RewardSats(), b.RewardSats()) },
		"complete":   func(a, b Task) int { return compareBool(a.Complete, b.Complete) },
		"paid":       func(a, b Task) int { return compareBool(a.Paid, b.Paid) },
		"notes":      func(a, b Task) int { return cmp.Compare(a.Notes, b.Notes) },
		"created_at": func(a, b Task) int { return a.CreatedAt.Compare(b.CreatedAt) },
		"updated_at": func(a, b Task) int { return a.UpdatedAt.Compare(b.UpdatedAt) },
	},
	text: map[string]func(Task) string{
		"task":     func(t Task) string { return t.Task },
		"assignee": func(t Task) string { return deref(t.Assignee) },
		"stage":    func(t Task) string { return string(t.Stage) },
		"notes":    func(t Task) string { return t.Notes },
		"complete": func(t Task) string { return strconv.FormatBool(t.Complete) },
		"paid":     func(t Task) string { return strconv.FormatBool(t.Paid) },
	},
}

// PaginateBoards applies q to an already ownership-scoped board set.
func PaginateBoards(boards []Board, q Query) (Page[Board], error) {
	return paginate(boards, q, boardFields, func(b Board) (time.Time, string) { return b.CreatedAt, b.ID })
}

// PaginateTasks applies q to an already board-scoped task set.
func PaginateTasks(tasks []Task, q Query) (Page[Task], error) {
	return paginate(tasks, q, taskFields, func(t Task) (time.Time, string) { return t.CreatedAt, t.ID })
}

func paginate[T any](items []T, q Query, fs fieldSet[T], key func(T) (time.Time, string)) (Page[T], error) {
	if q.Limit < 0 || q.Offset < 0 {
		return Page[T]{}, validation("limit and offset must not be negative")
	}
	var order func(a, b T) int
	if q.SortBy != "" {
		var ok bool
		if order, ok = fs.sort[q.SortBy]; !ok {
			return Page[T]{}, validation("cannot sort by " + q.SortBy)
		}
	}
	for field := range q.Where {
		if _, ok := fs.text[field]; !ok {
			return Page[T]{}, validation("cannot filter by " + field)
		}
	}

	needle := strings.ToLower(strings.TrimSpace(q.Search))
	matched := make([]T, 0, len(items))
	for _, it := range items {
		if matchesWhere(it, q.Where, fs) && matchesSearch(it, needle, fs) {
			matched = append(matched, it)
		}
	}

	slices.SortStableFunc(matched, func(a, b T) int {
		if order != nil {
			if c := order(a, b); c != 0 {
				if q.Desc {
					return -c
				}
				return c
			}
		}
		at, aid := key(a)
		bt, bid := key(b)
		if c := at.Compare(bt); c != 0 {
			if order == nil && q.Desc {
				return -c
			}
			return c
		}
		return cmp.Compare(aid, bid)
	})

	total := len(matched)
	start := min(q.Offset, total)
	end := total
	if q.Limit > 0 {
		end = min(start+q.Limit, total)
	}
	return Page[T]{Data: matched[start:end], Total: total}, nil
}

func matchesSearch[T any](it T, needle string, fs fieldSet[T]) bool {
	if needle == "" {
		return true
	}
	for _, f := range fs.search {
		if strings.Contains(strings.ToLower(fs.text[f](it)), needle) {
			return true
		}
	}
	return false
}

func matchesWhere[T any](it T, where map[string]string, fs fieldSet[T]) bool {
	for field, want := range where {
		if !strings.EqualFold(fs.text[field](it), want) {
			return false
		}
	}
	return true
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

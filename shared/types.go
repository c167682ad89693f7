package shared

import "strings"

// EntityType names a persisted aggregate kind. It is used as a cache key
// segment and as the namespace of a list version token.
type EntityType string

const (
	AccountEntity  EntityType = "Account"
	ExpenseEntity  EntityType = "Expense"
	IncomeEntity   EntityType = "Income"
	TransferEntity EntityType = "Transfer"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// PageRequest describes one page of a list query. Page is 1-based.
type PageRequest struct {
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
	Search   string `json:"search,omitempty"`
	SortBy   string `json:"sortBy,omitempty"`
	Desc     bool   `json:"desc,omitempty"`
}

// Normalize clamps paging values and canonicalises the search term.
func (r PageRequest) Normalize() PageRequest {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize <= 0 {
		r.PageSize = DefaultPageSize
	}
	if r.PageSize > MaxPageSize {
		r.PageSize = MaxPageSize
	}
	r.Search = strings.ToLower(strings.TrimSpace(r.Search))
	r.SortBy = strings.ToLower(strings.TrimSpace(r.SortBy))
	return r
}

// Offset is the number of rows skipped before this page.
func (r PageRequest) Offset() int {
	return (r.Page - 1) * r.PageSize
}

type Page[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}

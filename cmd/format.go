package cmd

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"personal-ledger/domain"
	"personal-ledger/shared"
)

var (
	pageNumber int
	pageSize   int
	pageSearch string
	pageSort   string
	pageDesc   bool
)

func addPageFlags(c *cobra.Command) {
	c.Flags().IntVar(&pageNumber, "page", 1, "Page number (1-based)")
	c.Flags().IntVar(&pageSize, "size", shared.DefaultPageSize, "Items per page")
	c.Flags().StringVar(&pageSearch, "search", "", "Case-insensitive text filter")
	c.Flags().StringVar(&pageSort, "sort", "", "Sort field")
	c.Flags().BoolVar(&pageDesc, "desc", false, "Sort descending")
}

func pageRequest() shared.PageRequest {
	return shared.PageRequest{
		Page:     pageNumber,
		PageSize: pageSize,
		Search:   pageSearch,
		SortBy:   pageSort,
		Desc:     pageDesc,
	}.Normalize()
}

func printPageHeader(title string, page, size, total, shown int) {
	fmt.Printf("%s (page %d, size %d, %d shown of %d):\n", title, page, size, shown, total)
	if shown == 0 {
		fmt.Println("  (none)")
	}
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount (--amount) is required")
	}
	return domain.ParseAmount(s)
}

// parseDate accepts YYYY-MM-DD or RFC 3339. An empty flag gives the zero
// time: creates then default to now and updates keep the stored date.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

func formatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

package repository

import (
	"context"

	"github.com/fleetwatch/fleetwatch/internal/datastore/entities"
)

// ConditionCursor walks a ConditionSource one page at a time. Each page is an
// independent query so only one page is held in memory. Iteration stops once the
// rows seen reach the total reported by the source, or on an empty page.
type ConditionCursor struct {
	source   ConditionSource
	category entities.ConditionCategory
	scope    ConditionScope
	pageSize int

	offset int
	total  int64
	done   bool
}

// NewConditionCursor creates a cursor. A non-positive pageSize falls back to 100.
func NewConditionCursor(source ConditionSource, category entities.ConditionCategory, scope ConditionScope, pageSize int) *ConditionCursor {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &ConditionCursor{
		source:   source,
		category: category,
		scope:    scope,
		pageSize: pageSize,
		total:    -1,
	}
}

// Next returns the next page. It returns nil, nil when exhausted. After an error
// the cursor may be retried; the failed page is requested again.
func (c *ConditionCursor) Next(ctx context.Context) ([]ConditionComposite, error) {
	if c.done {
		return nil, nil
	}
	rows, total, err := c.source.FindConditions(ctx, c.category, c.scope, c.offset, c.pageSize)
	if err != nil {
		return nil, err
	}
	c.total = total
	c.offset += len(rows)
	if len(rows) == 0 || int64(c.offset) >= c.total {
		c.done = true
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows, nil
}

// Processed returns the number of rows returned so far.
func (c *ConditionCursor) Processed() int {
	return c.offset
}

// Total returns the row count reported by the last page, or -1 before the first page.
func (c *ConditionCursor) Total() int64 {
	return c.total
}

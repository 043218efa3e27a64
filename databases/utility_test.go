package databases

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMongoPaginate(t *testing.T) {
	tests := []struct {
		name          string
		limit, page   int
		wantL, wantSk int64
	}{
		{"first page", 10, 1, 10, 0},
		{"third page", 10, 3, 10, 20},
		{"zero page clamps to first", 10, 0, 10, 0},
		{"default limit", 0, 2, defaultPageSize, defaultPageSize},
		{"limit capped", 1000, 1, maxPageSize, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := newMongoPaginate(tt.limit, tt.page).getPaginatedOpts()
			assert.Equal(t, tt.wantL, *opts.Limit)
			assert.Equal(t, tt.wantSk, *opts.Skip)
		})
	}
}

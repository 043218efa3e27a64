package databases

import "go.mongodb.org/mongo-driver/mongo/options"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type mongoPaginate struct {
	limit int64
	page  int64
}

// newMongoPaginate clamps limit to [1, maxPageSize] and page (1-based) to at least 1
func newMongoPaginate(limit, page int) *mongoPaginate {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if page < 1 {
		page = 1
	}
	return &mongoPaginate{
		limit: int64(limit),
		page:  int64(page),
	}
}

func (mp *mongoPaginate) getPaginatedOpts() *options.FindOptions {
	l := mp.limit
	skip := mp.page*mp.limit - mp.limit
	fOpt := options.FindOptions{Limit: &l, Skip: &skip}

	return &fOpt
}

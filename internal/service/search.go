package service

import (
	"context"
	"strings"

	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/repository"
)

const maxQueryLen = 200

// SearchPage is one page of search results. TotalPages is 0 when nothing
// matches; a page past the end has no items but keeps the totals.
type SearchPage struct {
	Items      []model.Product `json:"items"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	Total      int64           `json:"total"`
	TotalPages int             `json:"totalPages"`
}

// SearchService serves paginated product search.
type SearchService struct {
	products ProductStore
	pageSize int
}

func NewSearchService(products ProductStore, pageSize int) *SearchService {
	if pageSize < 1 {
		pageSize = 20
	}
	return &SearchService{products: products, pageSize: pageSize}
}

// Search returns page of the active products matching query. Pages below
// 1 are treated as 1. The read is retried once on a transient failure.
func (s *SearchService) Search(ctx context.Context, query string, page int) (SearchPage, error) {
	query = strings.TrimSpace(query)
	if len(query) > maxQueryLen {
		return SearchPage{}, validation("query is too long")
	}
	if page < 1 {
		page = 1
	}
	q := repository.ProductQuery{Text: query, Page: page, PageSize: s.pageSize}

	type result struct {
		items []model.Product
		total int64
	}
	r, err := readOnce(ctx, func(ctx context.Context) (result, error) {
		items, total, err := s.products.Search(ctx, q)
		return result{items, total}, err
	})
	if err != nil {
		return SearchPage{}, internal(err)
	}
	if r.items == nil {
		r.items = []model.Product{}
	}
	return SearchPage{
		Items:      r.items,
		Page:       page,
		PageSize:   s.pageSize,
		Total:      r.total,
		TotalPages: totalPages(r.total, s.pageSize),
	}, nil
}

func totalPages(total int64, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

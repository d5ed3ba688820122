package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/repository"
)

func TestSearchPaging(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.product(t, "Blue mug", 1000, 3)
	e.product(t, "Red mug", 1100, 3)
	e.product(t, "Mug rack", 2500, 1)
	e.product(t, "Teapot", 3000, 2)

	first, err := e.search.Search(ctx, "MUG", 0)
	require.NoError(t, err)
	require.Equal(t, 1, first.Page)
	require.Equal(t, int64(3), first.Total)
	require.Equal(t, 2, first.TotalPages)
	require.Len(t, first.Items, 2)

	second, err := e.search.Search(ctx, "mug", 2)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	require.Equal(t, "Mug rack", second.Items[0].Name)

	past, err := e.search.Search(ctx, "mug", 9)
	require.NoError(t, err)
	require.Empty(t, past.Items)
	require.NotNil(t, past.Items)
	require.Equal(t, 2, past.TotalPages)
}

func TestSearchSkipsInactiveProducts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.product(t, "Glass jar", 500, 4)
	p.IsActive = false
	require.NoError(t, e.db.Products().Update(ctx, p))

	page, err := e.search.Search(ctx, "jar", 1)
	require.NoError(t, err)
	require.Empty(t, page.Items)
	require.Equal(t, 0, page.TotalPages)
}

func TestSearchRejectsLongQuery(t *testing.T) {
	e := newEnv(t)
	_, err := e.search.Search(context.Background(), strings.Repeat("x", maxQueryLen+1), 1)
	require.ErrorIs(t, err, ErrValidation)
}

// flakyProducts fails the first n searches with a storage error.
type flakyProducts struct {
	ProductStore
	fails int
	calls int
}

func (f *flakyProducts) Search(ctx context.Context, q repository.ProductQuery) ([]model.Product, int64, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, 0, errors.New("driver: bad connection")
	}
	return f.ProductStore.Search(ctx, q)
}

func TestSearchRetriesTransientReadOnce(t *testing.T) {
	e := newEnv(t)
	e.product(t, "Spoon", 200, 10)

	flaky := &flakyProducts{ProductStore: e.db.Products(), fails: 1}
	page, err := NewSearchService(flaky, 10).Search(context.Background(), "spoon", 1)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, 2, flaky.calls)

	flaky = &flakyProducts{ProductStore: e.db.Products(), fails: 2}
	_, err = NewSearchService(flaky, 10).Search(context.Background(), "spoon", 1)
	require.Equal(t, KindInternal, KindOf(err))
	require.Equal(t, 2, flaky.calls)
}

func TestTotalPages(t *testing.T) {
	require.Equal(t, 0, totalPages(0, 20))
	require.Equal(t, 1, totalPages(20, 20))
	require.Equal(t, 2, totalPages(21, 20))
}

package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// gatedFetch blocks each query until its gate is opened.
type gatedFetch struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	pages []int
}

func newGatedFetch(queries ...string) *gatedFetch {
	g := &gatedFetch{gates: map[string]chan struct{}{}}
	for _, q := range queries {
		g.gates[q] = make(chan struct{})
	}
	return g
}

func (g *gatedFetch) fetch(_ context.Context, query string, page int) (SearchResult, error) {
	g.mu.Lock()
	gate := g.gates[query]
	g.pages = append(g.pages, page)
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return SearchResult{Items: []Product{{Name: query}}, Page: page, TotalPages: 1}, nil
}

type outcome struct {
	state PagerState
	err   error
}

func waitSeq(t *testing.T, p *Pager, seq uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.seq == seq
	}, time.Second, time.Millisecond)
}

func TestLateResponseToOldQueryIsDiscarded(t *testing.T) {
	g := newGatedFetch("a", "ab")
	p := NewPager(g.fetch)
	ctx := context.Background()

	slow := make(chan outcome, 1)
	go func() {
		st, err := p.Search(ctx, "a")
		slow <- outcome{st, err}
	}()
	waitSeq(t, p, 1)

	fast := make(chan outcome, 1)
	go func() {
		st, err := p.Search(ctx, "ab")
		fast <- outcome{st, err}
	}()
	waitSeq(t, p, 2)

	close(g.gates["ab"])
	got := <-fast
	require.NoError(t, got.err)
	require.Equal(t, "ab", got.state.Items[0].Name)

	close(g.gates["a"])
	got = <-slow
	require.ErrorIs(t, got.err, ErrStale)

	st := p.State()
	require.Equal(t, "ab", st.Query)
	require.Len(t, st.Items, 1)
	require.Equal(t, "ab", st.Items[0].Name)
}

func TestLowerSequenceIsDiscardedForSameQuery(t *testing.T) {
	gate := make(chan struct{})
	calls := 0
	var mu sync.Mutex
	p := NewPager(func(_ context.Context, q string, page int) (SearchResult, error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			<-gate
			return SearchResult{Items: []Product{{Name: "old"}}, Page: 1, TotalPages: 1}, nil
		}
		return SearchResult{Items: []Product{{Name: "new"}}, Page: 1, TotalPages: 1}, nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := p.Search(context.Background(), "tea")
		done <- err
	}()
	waitSeq(t, p, 1)

	_, err := p.Search(context.Background(), "tea")
	require.NoError(t, err)
	close(gate)
	require.ErrorIs(t, <-done, ErrStale)
	require.Equal(t, "new", p.State().Items[0].Name)
}

func TestQueryChangeCancelsInFlight(t *testing.T) {
	cancelled := make(chan error, 1)
	p := NewPager(func(ctx context.Context, q string, page int) (SearchResult, error) {
		if q == "slow" {
			<-ctx.Done()
			cancelled <- ctx.Err()
			return SearchResult{}, ctx.Err()
		}
		return SearchResult{Items: []Product{{Name: q}}, Page: 1, TotalPages: 1}, nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := p.Search(context.Background(), "slow")
		done <- err
	}()
	waitSeq(t, p, 1)

	_, err := p.Search(context.Background(), "fast")
	require.NoError(t, err)
	require.ErrorIs(t, <-cancelled, context.Canceled)
	require.ErrorIs(t, <-done, ErrStale)
}

func TestPagesAppendAndStopAtTotal(t *testing.T) {
	var pages []int
	p := NewPager(func(_ context.Context, q string, page int) (SearchResult, error) {
		pages = append(pages, page)
		return SearchResult{Items: []Product{{ID: uint64(page)}}, Page: page, TotalPages: 2}, nil
	})
	ctx := context.Background()

	_, err := p.LoadMore(ctx)
	require.ErrorIs(t, err, ErrNoMorePages)

	st, err := p.Search(ctx, "x")
	require.NoError(t, err)
	require.Len(t, st.Items, 1)

	st, err = p.LoadMore(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, st.Page)
	require.Len(t, st.Items, 2)

	_, err = p.LoadMore(ctx)
	require.ErrorIs(t, err, ErrNoMorePages)

	st, err = p.Search(ctx, "y")
	require.NoError(t, err)
	require.Len(t, st.Items, 1)
	require.Equal(t, []int{1, 2, 1}, pages)
}

func TestPagerOverLiveAPI(t *testing.T) {
	c := New(newAPI(t).URL)
	p := NewPager(c.Search)
	ctx := context.Background()

	st, err := p.Search(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 2, st.TotalPages)
	require.Len(t, st.Items, 2)

	st, err = p.LoadMore(ctx)
	require.NoError(t, err)
	require.Len(t, st.Items, 4)

	_, err = p.LoadMore(ctx)
	require.ErrorIs(t, err, ErrNoMorePages)
}

package client

import (
	"context"
	"sync"
)

// FetchFunc loads one page of results. (*Client).Search satisfies it.
type FetchFunc func(ctx context.Context, query string, page int) (SearchResult, error)

// PagerState is what a result list renders.
type PagerState struct {
	Query      string
	Items      []Product
	Page       int
	TotalPages int
}

// Pager drives search-as-you-type and infinite scroll over a FetchFunc.
//
// Every request carries a sequence number. A response is applied only if
// it belongs to the current query and its number is higher than that of
// the last applied response, so a slow answer to an old query can never
// overwrite a newer one. Changing the query cancels requests in flight and
// starts again at page 1; page 1 replaces the items and later pages append.
type Pager struct {
	fetch FetchFunc

	mu         sync.Mutex
	query      string
	items      []Product
	page       int
	totalPages int
	seq        uint64
	applied    uint64
	inflight   map[uint64]context.CancelFunc
}

func NewPager(fetch FetchFunc) *Pager {
	return &Pager{fetch: fetch, inflight: make(map[uint64]context.CancelFunc)}
}

// Search starts a new query at page 1.
func (p *Pager) Search(ctx context.Context, query string) (PagerState, error) {
	p.mu.Lock()
	for _, cancel := range p.inflight {
		cancel()
	}
	p.query = query
	p.items = nil
	p.page = 0
	p.totalPages = 0
	p.mu.Unlock()
	return p.load(ctx, query, 1)
}

// LoadMore fetches the page after the last applied one. It returns
// ErrNoMorePages instead of asking for a page beyond the total.
func (p *Pager) LoadMore(ctx context.Context) (PagerState, error) {
	p.mu.Lock()
	if p.page == 0 || p.page >= p.totalPages {
		st := p.stateLocked()
		p.mu.Unlock()
		return st, ErrNoMorePages
	}
	query, next := p.query, p.page+1
	p.mu.Unlock()
	return p.load(ctx, query, next)
}

// State returns a copy of the current result set.
func (p *Pager) State() PagerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Pager) stateLocked() PagerState {
	items := make([]Product, len(p.items))
	copy(items, p.items)
	return PagerState{Query: p.query, Items: items, Page: p.page, TotalPages: p.totalPages}
}

func (p *Pager) load(ctx context.Context, query string, page int) (PagerState, error) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.inflight[seq] = cancel
	p.mu.Unlock()

	res, err := p.fetch(ctx, query, page)

	p.mu.Lock()
	defer p.mu.Unlock()
	cancel()
	delete(p.inflight, seq)

	if query != p.query || seq <= p.applied {
		return p.stateLocked(), ErrStale
	}
	if err != nil {
		return p.stateLocked(), err
	}
	// A page other than the next one means a concurrent LoadMore already
	// applied it.
	if page != 1 && page != p.page+1 {
		return p.stateLocked(), ErrStale
	}
	p.applied = seq
	if page == 1 {
		p.items = append([]Product(nil), res.Items...)
	} else {
		p.items = append(p.items, res.Items...)
	}
	p.page = page
	p.totalPages = res.TotalPages
	return p.stateLocked(), nil
}

// Package client is a Go SDK for the storefront API. It attaches the access
// token to every call, renews it silently with a single in-flight refresh,
// and clears the session when the server reports it revoked or compromised.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// HeaderIdempotencyKey carries the checkout key.
const HeaderIdempotencyKey = "Idempotency-Key"

// Client talks to one storefront API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
	flight  singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client (10s timeout).
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithTokenStore replaces the default MemoryTokenStore.
func WithTokenStore(s TokenStore) Option { return func(c *Client) { c.tokens = s } }

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		tokens:  NewMemoryTokenStore(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Tokens exposes the token store.
func (c *Client) Tokens() TokenStore { return c.tokens }

// NewIdempotencyKey returns a fresh checkout key. Callers keep the key for
// the lifetime of one checkout attempt and resend it on every retry.
func NewIdempotencyKey() string { return uuid.NewString() }

type envelope struct {
	Success   bool            `json:"success"`
	Error     bool            `json:"error"`
	Message   string          `json:"message"`
	Code      string          `json:"code"`
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data"`
	Page      *int            `json:"page"`
	TotalPage *int            `json:"totalPage"`
}

type request struct {
	method string
	path   string
	body   any
	header http.Header
	auth   bool
}

// call performs r. With auth set, a rejected access token triggers one
// refresh and one replay of the request.
func (c *Client) call(ctx context.Context, r request) (envelope, error) {
	if !r.auth {
		return c.send(ctx, r, "")
	}
	tok, ok := c.tokens.Get()
	if !ok {
		return envelope{}, ErrNotAuthenticated
	}
	env, err := c.send(ctx, r, tok.AccessToken)
	if !accessRejected(err) {
		return env, err
	}
	fresh, err := c.renew(ctx, tok.AccessToken)
	if err != nil {
		return envelope{}, err
	}
	return c.send(ctx, r, fresh.AccessToken)
}

// renew refreshes the pair once for all callers whose access token stale
// was rejected. A caller whose token was already replaced reuses the new one.
func (c *Client) renew(ctx context.Context, stale string) (Tokens, error) {
	if cur, ok := c.tokens.Get(); ok && cur.AccessToken != stale {
		return cur, nil
	}
	v, err, _ := c.flight.Do("refresh", func() (any, error) {
		cur, ok := c.tokens.Get()
		if !ok {
			return Tokens{}, ErrSessionEnded
		}
		if cur.AccessToken != stale {
			return cur, nil
		}
		env, err := c.send(context.WithoutCancel(ctx), request{
			method: http.MethodPost,
			path:   "/v1/auth/refresh",
			body:   map[string]string{"refreshToken": cur.RefreshToken},
		}, "")
		if err != nil {
			if sessionRejected(err) {
				c.tokens.Clear()
				return Tokens{}, fmt.Errorf("%w: %w", ErrSessionEnded, err)
			}
			return Tokens{}, err
		}
		var next Tokens
		if err := json.Unmarshal(env.Data, &next); err != nil {
			return Tokens{}, fmt.Errorf("decode refresh: %w", err)
		}
		c.tokens.Set(next)
		return next, nil
	})
	if err != nil {
		return Tokens{}, err
	}
	return v.(Tokens), nil
}

// send performs one request. GETs are retried once on a transport error;
// nothing is retried on an HTTP error response.
func (c *Client) send(ctx context.Context, r request, access string) (envelope, error) {
	var payload []byte
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return envelope{}, err
		}
		payload = b
	}

	attempts := 1
	if r.method == http.MethodGet {
		attempts = 2
	}
	var resp *http.Response
	for i := 0; i < attempts; i++ {
		req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, bytes.NewReader(payload))
		if err != nil {
			return envelope{}, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, vs := range r.header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if access != "" {
			req.Header.Set("Authorization", "Bearer "+access)
		}
		resp, err = c.http.Do(req)
		if err == nil {
			break
		}
		if ctx.Err() != nil || i == attempts-1 {
			return envelope{}, err
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, fmt.Errorf("decode response (%d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || env.Error {
		return env, apiError(resp.StatusCode, env)
	}
	return env, nil
}

func apiError(status int, env envelope) *APIError {
	ae := &APIError{Status: status, Code: env.Code, Message: env.Message, Action: env.Action}
	if len(env.Data) > 0 {
		var data struct {
			Shortages []Shortage `json:"shortages"`
			Order     *Order     `json:"order"`
		}
		if json.Unmarshal(env.Data, &data) == nil {
			ae.Shortages = data.Shortages
			ae.Order = data.Order
		}
	}
	return ae
}

func decode[T any](env envelope, err error) (T, error) {
	var out T
	if err != nil {
		return out, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("decode data: %w", err)
	}
	return out, nil
}

type authData struct {
	User   User         `json:"user"`
	Tokens Tokens       `json:"tokens"`
	Merge  *MergeResult `json:"merge"`
}

// Register creates an account and stores its first token pair.
func (c *Client) Register(ctx context.Context, email, password string) (User, error) {
	d, err := decode[authData](c.call(ctx, request{
		method: http.MethodPost,
		path:   "/v1/auth/register",
		body:   map[string]string{"email": email, "password": password},
	}))
	if err != nil {
		return User{}, err
	}
	c.tokens.Set(d.Tokens)
	return d.User, nil
}

// Login signs in and folds guest into the account cart. The merge result
// is nil when guest is empty or the merge failed server-side.
func (c *Client) Login(ctx context.Context, email, password string, guest []GuestLine) (User, *MergeResult, error) {
	d, err := decode[authData](c.call(ctx, request{
		method: http.MethodPost,
		path:   "/v1/auth/login",
		body:   map[string]any{"email": email, "password": password, "guestCart": guest},
	}))
	if err != nil {
		return User{}, nil, err
	}
	c.tokens.Set(d.Tokens)
	return d.User, d.Merge, nil
}

// Logout ends this session server-side and clears the store. The store is
// cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.tokens.Clear()
	_, err := c.call(ctx, request{method: http.MethodPost, path: "/v1/auth/logout", auth: true})
	return err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	return decode[User](c.call(ctx, request{method: http.MethodGet, path: "/v1/auth/me", auth: true}))
}

// ChangePassword ends every session and stores the pair of the new one.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	t, err := decode[Tokens](c.call(ctx, request{
		method: http.MethodPost,
		path:   "/v1/auth/password",
		body:   map[string]string{"currentPassword": current, "newPassword": next},
		auth:   true,
	}))
	if err != nil {
		return err
	}
	c.tokens.Set(t)
	return nil
}

func (c *Client) Cart(ctx context.Context) (Cart, error) {
	return decode[Cart](c.call(ctx, request{method: http.MethodGet, path: "/v1/cart", auth: true}))
}

// SetCartItem sets the quantity of one product. The returned cart is
// authoritative; quantities may have been clamped to stock.
func (c *Client) SetCartItem(ctx context.Context, productID uint64, qty int) (CartUpdate, error) {
	return decode[CartUpdate](c.call(ctx, request{
		method: http.MethodPost,
		path:   "/v1/cart/items",
		body:   map[string]any{"productId": productID, "quantity": qty},
		auth:   true,
	}))
}

func (c *Client) RemoveCartItem(ctx context.Context, productID uint64) (Cart, error) {
	return decode[Cart](c.call(ctx, request{
		method: http.MethodDelete,
		path:   "/v1/cart/items/" + strconv.FormatUint(productID, 10),
		auth:   true,
	}))
}

func (c *Client) MergeCart(ctx context.Context, guest []GuestLine) (MergeResult, error) {
	return decode[MergeResult](c.call(ctx, request{
		method: http.MethodPost,
		path:   "/v1/cart/merge",
		body:   map[string]any{"lines": guest},
		auth:   true,
	}))
}

// Checkout places an order for the server cart. Resending the same key
// returns the stored outcome; a stock rejection comes back as an *APIError
// with code insufficient_stock and the shortages.
func (c *Client) Checkout(ctx context.Context, addressID uint64, key string) (Order, error) {
	h := http.Header{}
	h.Set(HeaderIdempotencyKey, key)
	return decode[Order](c.call(ctx, request{
		method: http.MethodPost,
		path:   "/v1/orders",
		body:   map[string]any{"addressId": addressID, "idempotencyKey": key},
		header: h,
		auth:   true,
	}))
}

func (c *Client) Orders(ctx context.Context) ([]Order, error) {
	return decode[[]Order](c.call(ctx, request{method: http.MethodGet, path: "/v1/orders", auth: true}))
}

func (c *Client) Order(ctx context.Context, id string) (Order, error) {
	return decode[Order](c.call(ctx, request{method: http.MethodGet, path: "/v1/orders/" + url.PathEscape(id), auth: true}))
}

func (c *Client) Addresses(ctx context.Context) ([]Address, error) {
	return decode[[]Address](c.call(ctx, request{method: http.MethodGet, path: "/v1/addresses", auth: true}))
}

func (c *Client) CreateAddress(ctx context.Context, a Address) (Address, error) {
	return decode[Address](c.call(ctx, request{method: http.MethodPost, path: "/v1/addresses", body: a, auth: true}))
}

// Search fetches one page of products. It needs no session.
func (c *Client) Search(ctx context.Context, query string, page int) (SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("page", strconv.Itoa(page))
	env, err := c.call(ctx, request{method: http.MethodGet, path: "/v1/search?" + q.Encode()})
	items, err := decode[[]Product](env, err)
	if err != nil {
		return SearchResult{}, err
	}
	res := SearchResult{Items: items}
	if env.Page != nil {
		res.Page = *env.Page
	}
	if env.TotalPage != nil {
		res.TotalPages = *env.TotalPage
	}
	return res, nil
}

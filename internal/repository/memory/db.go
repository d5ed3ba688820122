// Package memory is an in-process implementation of the storefront stores.
// It honours the same atomicity contracts as the MySQL repositories (token
// rotation is compare-and-set, checkout is all-or-nothing) and backs the
// `memory` store driver and the service tests.
package memory

import (
	"sync"
	"time"

	"github.com/iliyamo/storefront/internal/model"
)

type orderKey struct {
	userID uint64
	key    string
}

// cartLine carries a revision bumped on every write, so a checkout can tell
// whether a line it read was edited before it committed.
type cartLine struct {
	qty int
	rev uint64
}

// DB holds every table. One mutex guards all maps; checkouts additionally
// serialize on checkoutMu, which stands in for the row locks a checkout
// transaction holds in MySQL.
type DB struct {
	mu         sync.Mutex
	checkoutMu sync.Mutex
	now        func() time.Time

	seq     uint64
	cartRev uint64

	users       map[uint64]model.User
	tokens      map[uint64]model.RefreshToken
	tokenByHash map[string]uint64
	products    map[uint64]model.Product
	carts       map[uint64]map[uint64]cartLine
	addresses   map[uint64]model.Address
	orders      map[string]model.Order
	orderKeys   map[orderKey]string
}

// New returns an empty database.
func New() *DB {
	return &DB{
		now:         func() time.Time { return time.Now().UTC() },
		users:       map[uint64]model.User{},
		tokens:      map[uint64]model.RefreshToken{},
		tokenByHash: map[string]uint64{},
		products:    map[uint64]model.Product{},
		carts:       map[uint64]map[uint64]cartLine{},
		addresses:   map[uint64]model.Address{},
		orders:      map[string]model.Order{},
		orderKeys:   map[orderKey]string{},
	}
}

// SetClock overrides the timestamp source; tests use it to pin time.
func (db *DB) SetClock(now func() time.Time) {
	db.mu.Lock()
	db.now = now
	db.mu.Unlock()
}

// nextID must be called with mu held.
func (db *DB) nextID() uint64 {
	db.seq++
	return db.seq
}

func (db *DB) Users() *Users         { return &Users{db: db} }
func (db *DB) Tokens() *Tokens       { return &Tokens{db: db} }
func (db *DB) Products() *Products   { return &Products{db: db} }
func (db *DB) Carts() *Carts         { return &Carts{db: db} }
func (db *DB) Addresses() *Addresses { return &Addresses{db: db} }
func (db *DB) Orders() *Orders       { return &Orders{db: db} }

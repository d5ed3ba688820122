// Package app wires configuration, storage and services into the HTTP
// server and the operator CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront/internal/cache"
	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/database"
	"github.com/iliyamo/storefront/internal/handler"
	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/middleware"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/repository"
	"github.com/iliyamo/storefront/internal/repository/memory"
	"github.com/iliyamo/storefront/internal/router"
	"github.com/iliyamo/storefront/internal/service"
)

// Catalog adds products. Only the operator CLI and demo seeding write the
// catalog; the order pipeline is the only writer of stock.
type Catalog interface {
	Create(ctx context.Context, p *model.Product) error
}

// Stores is the storage backend selected by STORE_DRIVER. DB is nil for the
// memory driver.
type Stores struct {
	DB        *sql.DB
	Users     service.UserStore
	Tokens    service.TokenStore
	Products  service.ProductStore
	Catalog   Catalog
	Carts     service.CartStore
	Addresses service.AddressStore
	Orders    service.OrderStore
}

// Close releases the database pool, if any.
func (s Stores) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// OpenStores connects to MySQL and applies pending migrations, or builds an
// in-memory store seeded with a small demo catalog.
func OpenStores(ctx context.Context, cfg config.Config, log *zap.Logger) (Stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		db := memory.New()
		if err := seedCatalog(ctx, db.Products()); err != nil {
			return Stores{}, err
		}
		log.Warn("using in-memory store; data is lost on restart")
		return Stores{
			Users:     db.Users(),
			Tokens:    db.Tokens(),
			Products:  db.Products(),
			Catalog:   db.Products(),
			Carts:     db.Carts(),
			Addresses: db.Addresses(),
			Orders:    db.Orders(),
		}, nil
	}

	db, err := database.Open(ctx, cfg.MySQLDSN())
	if err != nil {
		return Stores{}, fmt.Errorf("open database: %w", err)
	}
	if err := database.Up(cfg.MigrateURL()); err != nil {
		_ = db.Close()
		return Stores{}, err
	}
	products := repository.NewProductRepo(db)
	return Stores{
		DB:        db,
		Users:     repository.NewUserRepo(db),
		Tokens:    repository.NewTokenRepo(db),
		Products:  products,
		Catalog:   products,
		Carts:     repository.NewCartRepo(db),
		Addresses: repository.NewAddressRepo(db),
		Orders:    repository.NewOrderRepo(db),
	}, nil
}

func seedCatalog(ctx context.Context, products Catalog) error {
	for _, p := range []model.Product{
		{Name: "Ceramic mug", Description: "350ml stoneware mug", PriceCents: 1200, Stock: 25},
		{Name: "Green tea", Description: "Loose leaf sencha, 100g", PriceCents: 900, Stock: 40},
		{Name: "Tea pot", Description: "Cast iron tea pot", PriceCents: 4500, Stock: 5},
		{Name: "Pour-over kettle", Description: "Gooseneck kettle", PriceCents: 3900, Stock: 1},
	} {
		p.IsActive = true
		if err := products.Create(ctx, &p); err != nil {
			return err
		}
	}
	return nil
}

// Services holds the domain services built over a Stores.
type Services struct {
	Tokens    *service.TokenService
	Cart      *service.CartService
	Orders    *service.OrderService
	Search    *service.SearchService
	Addresses *service.AddressService
}

// NewServices builds the domain services. rdb may be nil, in which case the
// checkout shortcut cache is kept in process.
func NewServices(cfg config.Config, st Stores, rdb *redis.Client, pub queue.Publisher, m *metrics.Collector) Services {
	tokenCfg := service.TokenConfig{
		Secret:     cfg.JWTSecret,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		BcryptCost: cfg.BcryptCost,
	}
	orderCfg := service.OrderConfig{CheckoutTimeout: cfg.CheckoutTTL}
	shortcut := cache.New(rdb, "idem", 24*time.Hour)
	return Services{
		Tokens:    service.NewTokenService(st.Users, st.Tokens, tokenCfg, pub, m),
		Cart:      service.NewCartService(st.Carts, st.Products, service.StockPolicy(cfg.CartPolicy), m),
		Orders:    service.NewOrderService(st.Orders, st.Addresses, shortcut, pub, m, orderCfg),
		Search:    service.NewSearchService(st.Products, cfg.PageSize),
		Addresses: service.NewAddressService(st.Addresses),
	}
}

// ServerDeps are the optional collaborators of NewServer.
type ServerDeps struct {
	Redis     *redis.Client
	Metrics   *metrics.Collector
	Gatherer  prometheus.Gatherer
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
}

// NewServer builds the echo instance with every route registered. ctx
// bounds background work such as rate-limiter cleanup.
func NewServer(ctx context.Context, st Stores, svc Services, deps ServerDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLog(deps.Metrics))
	e.Use(middleware.NewTokenBucket(ctx, deps.RateLimit, deps.Redis, svc.Tokens))

	var pinger handler.Pinger
	if st.DB != nil {
		pinger = st.DB
	}
	router.RegisterRoutes(e, pinger)
	if deps.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler(deps.Gatherer)))
	}

	searchCache := middleware.ResponseCache(deps.Cache, cache.New(deps.Redis, "", deps.Cache.TTL))
	router.RegisterAuth(e, handler.NewAuthHandler(svc.Tokens, svc.Cart), svc.Tokens)
	router.RegisterPublic(e, handler.NewSearchHandler(svc.Search), searchCache)
	router.RegisterCustomer(e,
		handler.NewCartHandler(svc.Cart),
		handler.NewOrderHandler(svc.Orders),
		handler.NewAddressHandler(svc.Addresses),
		svc.Tokens,
	)
	router.RegisterAdmin(e, handler.NewAdminHandler(svc.Tokens), svc.Tokens)
	return e
}

package main

import (
	"context"
	"database/sql"
	"os"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"FoodCart/internal/api"
	"FoodCart/internal/cart"
	"FoodCart/internal/checkout"
	"FoodCart/internal/kv"
	"FoodCart/internal/notify"
	"FoodCart/internal/session"
	"FoodCart/internal/shop"
	"FoodCart/pkg/kit"
)

func main() {
	service := "cart"
	log := kit.NewLogger(service, os.Getenv("LOG_LEVEL"))
	defer func() { _ = log.Sync() }()

	port := getenv("PORT", "8090")
	apiURL := getenv("API_BASE_URL", "http://localhost:8080")

	store, closeStore := openStore(log, os.Getenv("KV_DSN"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sess := session.New(store, log)
	client := api.NewClient(apiURL, sess)

	c := cart.New(store, cart.WithLogger(log.Named("cart")))
	c.Initialize()
	cart.NewMetrics(reg).Attach(c)
	c.Subscribe(notify.CartListener(notify.LogNotifier{Log: log.Named("notify")}, sess.NotificationsEnabled))

	log.Info("cart hydrated",
		zap.Int("lines", c.Len()),
		zap.Int("units", c.TotalQuantity()),
		zap.String("total", c.TotalPrice().String()),
	)

	s := &shop.Server{
		Cart:     c,
		Session:  sess,
		Checkout: &checkout.Service{Cart: c, Orders: client, Log: log.Named("checkout")},
		Catalog:  client,
		KV:       store,
		Log:      log,
	}

	h := shop.NewHandler(s, shop.HTTPDeps{
		Log:                 log,
		Service:             service,
		Registry:            reg,
		MetricsEnabled:      true,
		MetricsToken:        os.Getenv("METRICS_TOKEN"),
		CheckoutLimitPerMin: getenvInt("CHECKOUT_LIMIT_PER_MIN", 5),
	})

	if err := kit.RunHTTPServer(":"+port, h, log, func(context.Context) { closeStore() }); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}

// openStore uses Postgres when dsn is set and an in-process store otherwise.
func openStore(log *zap.Logger, dsn string) (kv.Store, func()) {
	if dsn == "" {
		log.Info("using in-memory kv store")
		return kv.NewMemStore(), func() {}
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal("open kv database failed", zap.Error(err))
	}

	pg := kv.NewPostgresStore(db)
	if err := pg.EnsureSchema(context.Background()); err != nil {
		log.Fatal("kv schema init failed", zap.Error(err))
	}

	log.Info("using postgres kv store")
	return pg, func() { _ = db.Close() }
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

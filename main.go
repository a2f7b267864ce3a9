package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	appOrder "github.com/tradeyard/tradeyard/internal/application/order"
	appPayment "github.com/tradeyard/tradeyard/internal/application/payment"
	appSettlement "github.com/tradeyard/tradeyard/internal/application/settlement"
	domainNotification "github.com/tradeyard/tradeyard/internal/domain/notification"
	domainOrder "github.com/tradeyard/tradeyard/internal/domain/order"
	domainProduct "github.com/tradeyard/tradeyard/internal/domain/product"
	domainSettlement "github.com/tradeyard/tradeyard/internal/domain/settlement"
	"github.com/tradeyard/tradeyard/internal/infrastructure/gateway"
	"github.com/tradeyard/tradeyard/internal/infrastructure/id"
	"github.com/tradeyard/tradeyard/internal/infrastructure/localstore"
	"github.com/tradeyard/tradeyard/internal/infrastructure/memory"
	"github.com/tradeyard/tradeyard/internal/infrastructure/notify"
	notifykafka "github.com/tradeyard/tradeyard/internal/infrastructure/notify/kafka"
	obsinfra "github.com/tradeyard/tradeyard/internal/infrastructure/observability"
	"github.com/tradeyard/tradeyard/internal/infrastructure/observability/oteltrace"
	"github.com/tradeyard/tradeyard/internal/infrastructure/observability/prometrics"
	"github.com/tradeyard/tradeyard/internal/infrastructure/observability/zaplogger"
	"github.com/tradeyard/tradeyard/internal/infrastructure/outbox"
	"github.com/tradeyard/tradeyard/internal/infrastructure/postgres"
	"github.com/tradeyard/tradeyard/internal/infrastructure/redisstore"
	"github.com/tradeyard/tradeyard/internal/observability"
	httppresentation "github.com/tradeyard/tradeyard/internal/presentation/http"
)

func main() {
	serviceName := getenvDefault("SERVICE_NAME", "tradeyard")
	env := getenvDefault("ENV", "dev")
	addr := getenvDefault("HTTP_ADDR", ":8080")
	uploadDir := getenvDefault("UPLOAD_DIR", "./uploads")
	publicBaseURL := getenvDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	baseLogger := zaplogger.New(
		observability.F("service", serviceName),
		observability.F("env", env),
	)
	if s, ok := baseLogger.(interface{ Sync() error }); ok {
		defer func() { _ = s.Sync() }()
	}

	registry := prometrics.New(serviceName, "")
	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: registry.Counter(
			string(observability.MUsecaseRequests), "Total use case invocations.", "use_case", "outcome"),
		observability.MHTTPRequests: registry.Counter(
			string(observability.MHTTPRequests), "Total HTTP requests served.", "method", "route", "status"),
		observability.MExternalRequests: registry.Counter(
			string(observability.MExternalRequests), "Total outbound requests to external peers.", "peer", "endpoint", "outcome"),
		observability.MEventPublishFailures: registry.Counter(
			string(observability.MEventPublishFailures), "Order event publish failures.", "event"),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration: registry.Histogram(
			string(observability.MUsecaseDuration), "Use case duration in seconds.", nil, "use_case"),
		observability.MHTTPRequestDuration: registry.Histogram(
			string(observability.MHTTPRequestDuration), "HTTP request duration in seconds.", nil, "method", "route", "status"),
		observability.MExternalRequestDuration: registry.Histogram(
			string(observability.MExternalRequestDuration), "Outbound request duration in seconds.", nil, "peer", "endpoint"),
	}
	tel := obsinfra.New(oteltrace.New(serviceName), baseLogger, counters, histograms)
	log := tel.Logger()

	var (
		orderRepo       domainOrder.Repository
		productRepo     domainProduct.Repository
		transactionRepo domainSettlement.Repository
	)
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err := postgres.Open(dsn)
		if err != nil {
			log.Error("postgres_open_failed", observability.F("error", err))
			os.Exit(1)
		}
		defer db.Close()
		orderRepo = postgres.NewOrderRepository(db)
		productRepo = postgres.NewProductRepository(db)
		transactionRepo = postgres.NewTransactionRepository(db)
		log.Info("storage_postgres")
	} else {
		products := memory.NewProductRepository()
		orderRepo = memory.NewOrderRepository()
		productRepo = products
		transactionRepo = memory.NewTransactionRepository()
		if env == "dev" {
			seedProducts(products, log)
		}
		log.Info("storage_memory")
	}

	var dedupe appPayment.EventDedupe
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer client.Close()
		dedupe = redisstore.NewDedupe(client)
		log.Info("webhook_dedupe_redis", observability.F("addr", redisAddr))
	} else {
		dedupe = memory.NewDedupe()
	}

	var (
		sink   domainNotification.Sink
		mailer domainNotification.Mailer
	)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		ks := notifykafka.NewSink(strings.Split(brokers, ","))
		km := notifykafka.NewMailer(strings.Split(brokers, ","))
		defer ks.Close()
		defer km.Close()
		sink, mailer = ks, km
		log.Info("notifications_kafka", observability.F("brokers", brokers))
	} else {
		sink = notify.NewLogSink(log)
		mailer = notify.NewLogMailer(log)
	}

	store, err := localstore.New(uploadDir, publicBaseURL)
	if err != nil {
		log.Error("localstore_init_failed", observability.F("error", err))
		os.Exit(1)
	}

	gw := gateway.NewClient(
		getenvDefault("GATEWAY_BASE_URL", "https://gateway.invalid"),
		os.Getenv("GATEWAY_API_KEY"),
		os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		tel,
	)

	bus := outbox.NewBus(log)
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	notify.NewWorker(sink, mailer, log).Register(bus)

	idGen := id.NewGenerator()
	settlementService := appSettlement.NewService(transactionRepo, idGen, tel)
	orderService := appOrder.NewService(orderRepo, productRepo, idGen, bus, tel)
	paymentService := appPayment.NewService(orderRepo, gw, store, dedupe, settlementService, bus, tel)

	handler := httppresentation.NewHandler(orderService, paymentService, settlementService, tel)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadDir))))
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("http_server_start", observability.F("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http_server_error", observability.F("error", err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http_server_shutdown_error", observability.F("error", err))
	} else {
		log.Info("http_server_stopped")
	}
}

// seedProducts loads a small demo catalog so memory mode is usable
// immediately.
func seedProducts(repo *memory.ProductRepository, log observability.Logger) {
	now := time.Now().UTC()
	demo := []*domainProduct.Product{
		{
			ID: "prod-walnut-desk", VendorID: "vendor-oakline", Name: "Walnut Standing Desk",
			Price: 549.00, Stock: 12, TrackInventory: true, Status: domainProduct.StatusActive,
			ShippingCost: 35.00, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "prod-desk-mat", VendorID: "vendor-oakline", Name: "Leather Desk Mat",
			Price: 39.50, Stock: 80, TrackInventory: true, Status: domainProduct.StatusActive,
			ShippingCost: 5.00, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "prod-ceramic-mug", VendorID: "vendor-kilnworks", Name: "Stoneware Mug",
			Price: 18.00, Stock: 200, TrackInventory: true, Status: domainProduct.StatusActive,
			FreeShipping: true, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "prod-print-license", VendorID: "vendor-kilnworks", Name: "Digital Print License",
			Price: 12.00, TrackInventory: false, Status: domainProduct.StatusActive,
			FreeShipping: true, CreatedAt: now, UpdatedAt: now,
		},
	}
	for _, p := range demo {
		if err := repo.Upsert(context.Background(), p); err != nil {
			log.Warn("seed_product_failed", observability.F("product_id", p.ID), observability.F("error", err))
		}
	}
	log.Info("seeded_demo_products", observability.F("count", len(demo)))
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

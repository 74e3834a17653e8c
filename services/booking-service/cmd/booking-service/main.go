package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/libs/civiltime"
	"github.com/md-rashed-zaman/counselbook/libs/config"
	"github.com/md-rashed-zaman/counselbook/libs/db"
	"github.com/md-rashed-zaman/counselbook/libs/grpcx"
	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"github.com/md-rashed-zaman/counselbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/counselbook/libs/otel"
	"github.com/md-rashed-zaman/counselbook/libs/runtime"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotenv()
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	zone, err := civiltime.Load(config.String("FIRM_TIMEZONE", civiltime.DefaultZoneName))
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	outboxRepo := outbox.NewRepository()
	repo := storage.NewBookingRepository(pool, outboxRepo)
	engine := booking.NewEngine(availability.Default(zone), repo, logger,
		booking.WithMetrics(metrics.NewBooking(reg)),
		booking.WithHorizonMonths(config.Int("BOOKING_HORIZON_MONTHS", 3)),
	)

	brokers := config.String("KAFKA_BROKERS", "")
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, reg, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	startGRPCHealth(ctx, logger, grpcPort, pool)

	bookingHandler := handlers.NewBookingHandler(engine, auth.Verifier{Secret: jwtSecret}, logger)
	limit := publicRateLimit(logger)

	mux := runtime.NewBaseMux(reg,
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.Handle("/api/v1/public/slots", limit(http.HandlerFunc(bookingHandler.Slots)))
	mux.Handle("/api/v1/public/book", limit(http.HandlerFunc(bookingHandler.Create)))
	mux.HandleFunc("/api/v1/appointments", bookingHandler.List)
	mux.HandleFunc("/api/v1/appointments/cancel", bookingHandler.Cancel)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", nil),
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", httpx.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           10 * time.Minute,
		}),
		httpx.WithBodyLimit(64<<10),
		httpx.WithTimeout(config.Duration("HTTP_HANDLER_TIMEOUT", 10*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	_ = runtime.ServeHTTP(ctx, logger, srv, 10*time.Second, "timezone", zone.Name())
}

// publicRateLimit guards the unauthenticated endpoints. Redis is used when
// configured so limits hold across replicas.
func publicRateLimit(logger *slog.Logger) httpx.Middleware {
	limit := config.Int("PUBLIC_RATE_LIMIT", 30)
	window := config.Duration("PUBLIC_RATE_WINDOW", time.Minute)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		return httpx.NewRedisRateLimiter(rdb, limit, window, "counselbook:rl:public").
			Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	}
	return httpx.NewRateLimiter(limit, window).Middleware()
}

func startGRPCHealth(ctx context.Context, logger *slog.Logger, port string, pool *db.Pool) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		return
	}
	srv := grpcx.NewServer(logger)
	hs := grpcx.RegisterHealth(srv)
	grpcx.Serve(ctx, logger, srv, lis)
	go grpcx.WatchHealth(ctx, logger, hs, "counselbook.booking", 10*time.Second, db.ReadyCheck(pool))
}

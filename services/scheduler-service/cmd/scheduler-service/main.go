package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/libs/civiltime"
	"github.com/md-rashed-zaman/counselbook/libs/config"
	"github.com/md-rashed-zaman/counselbook/libs/db"
	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"github.com/md-rashed-zaman/counselbook/libs/notify"
	"github.com/md-rashed-zaman/counselbook/libs/notify/email"
	"github.com/md-rashed-zaman/counselbook/libs/notify/sms"
	otelx "github.com/md-rashed-zaman/counselbook/libs/otel"
	"github.com/md-rashed-zaman/counselbook/libs/runtime"
	"github.com/md-rashed-zaman/counselbook/services/scheduler-service/internal/handlers"
	"github.com/md-rashed-zaman/counselbook/services/scheduler-service/internal/storage"
	"github.com/md-rashed-zaman/counselbook/services/scheduler-service/internal/sweeper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotenv()
	service := config.String("SERVICE_NAME", "scheduler-service")
	port, err := config.Port("PORT", "8087")
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

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	emailSender, err := email.FromEnv(logger)
	if err != nil {
		panic(err)
	}
	smsSender, err := sms.FromEnv(logger)
	if err != nil {
		panic(err)
	}
	logger.Info("reminder providers configured", "email", emailSender.ProviderID(), "sms", smsSender.ProviderID())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	templates := notify.Templates{Zone: zone, FirmName: config.String("FIRM_NAME", "")}
	sw := sweeper.New(
		storage.NewReminderRepository(pool),
		sweeper.NewDirectNotifier(emailSender, smsSender, templates, logger),
		logger,
		sweeper.Config{
			Zone:        zone,
			Concurrency: config.Int("SWEEP_CONCURRENCY", 16),
			Metrics:     sweeper.NewMetrics(reg),
		},
	)
	go sw.RunSchedules(ctx,
		sweeper.Schedule{Kind: sweeper.Kind24h, Every: config.Duration("SWEEP_24H_EVERY", time.Hour)},
		sweeper.Schedule{Kind: sweeper.Kind1h, Every: config.Duration("SWEEP_1H_EVERY", 15*time.Minute)},
	)

	sweepHandler := handlers.NewSweepHandler(sw, auth.Verifier{Secret: jwtSecret}, logger)

	mux := runtime.NewBaseMux(reg,
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
	)
	mux.HandleFunc("/api/v1/internal/sweeps", sweepHandler.Trigger)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(4<<10),
		httpx.WithTimeout(config.Duration("HTTP_HANDLER_TIMEOUT", 2*time.Minute)),
	)
	handler = otelhttp.NewHandler(handler, "scheduler")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	_ = runtime.ServeHTTP(ctx, logger, srv, 10*time.Second, "timezone", zone.Name())
}

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/civiltime"
	"github.com/md-rashed-zaman/counselbook/libs/config"
	"github.com/md-rashed-zaman/counselbook/libs/db"
	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"github.com/md-rashed-zaman/counselbook/libs/kafkax"
	"github.com/md-rashed-zaman/counselbook/libs/notify"
	"github.com/md-rashed-zaman/counselbook/libs/notify/email"
	"github.com/md-rashed-zaman/counselbook/libs/notify/sms"
	otelx "github.com/md-rashed-zaman/counselbook/libs/otel"
	"github.com/md-rashed-zaman/counselbook/libs/runtime"
	"github.com/md-rashed-zaman/counselbook/services/notification-service/internal/confirm"
	"github.com/md-rashed-zaman/counselbook/services/notification-service/internal/consumer"
	"github.com/md-rashed-zaman/counselbook/services/notification-service/internal/inbox"
	"github.com/md-rashed-zaman/counselbook/services/notification-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotenv()
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	confirmations := confirm.NewService(emailSender, smsSender, storage.NewRepository(pool), logger, confirm.Config{
		Templates:     notify.Templates{Zone: zone, FirmName: config.String("FIRM_NAME", "")},
		IntakeAddress: config.String("FIRM_INTAKE_EMAIL", ""),
		Registerer:    reg,
	})

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "notification-service")
	eventConsumer := consumer.New(logger, inbox.NewRepository(pool, groupID), consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topics: config.List("KAFKA_CONSUME_TOPICS", []string{
			confirm.EventAppointmentBooked,
			confirm.EventAppointmentCancelled,
		}),
	}, func(ctx context.Context, eventType string, msg kafka.Message) error {
		return confirmations.HandleEvent(ctx, eventType, msg.Value)
	})
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMux(reg,
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	_ = runtime.ServeHTTP(ctx, logger, srv, 10*time.Second, "email", emailSender.ProviderID(), "sms", smsSender.ProviderID())
}

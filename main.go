package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-boxoffice/internal/cancellation"
	"ms-boxoffice/internal/cancellation/cancel_api"
	"ms-boxoffice/internal/catalog"
	"ms-boxoffice/internal/config"
	"ms-boxoffice/internal/database"
	"ms-boxoffice/internal/inventory"
	inventorydb "ms-boxoffice/internal/inventory/db"
	"ms-boxoffice/internal/inventory/inventory_api"
	redisguard "ms-boxoffice/internal/inventory/redis"
	"ms-boxoffice/internal/kafka"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/order"
	orderdb "ms-boxoffice/internal/order/db"
	"ms-boxoffice/internal/order/order_api"
	"ms-boxoffice/internal/payment"
	paymentdb "ms-boxoffice/internal/payment/db"
	"ms-boxoffice/internal/tickets"
	ticketdb "ms-boxoffice/internal/tickets/db"
	"ms-boxoffice/internal/tickets/qr"
	"ms-boxoffice/internal/tickets/ticket_api"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Connecting to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			err = sqldb.Ping()
			if err == nil {
				break
			}
		}
		log.Error("DATABASE", fmt.Sprintf("PostgreSQL not reachable: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	if !cfg.Enabled {
		log.Warn("REDIS", "Redis guard disabled, seat holds rely on the store alone")
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Addr))
	return client
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting box office service")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	if err := database.CreateSchema(ctx, bunDB); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Schema setup failed: %v", err))
	}

	redisClient := connectRedis(ctx, cfg.Redis, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()

		topics := []string{
			cfg.Kafka.Topics.OrderCreated,
			cfg.Kafka.Topics.OrderPaid,
			cfg.Kafka.Topics.OrderCancelled,
			cfg.Kafka.Topics.TicketIssued,
			cfg.Kafka.Topics.TicketValidated,
			cfg.Kafka.Topics.SeatStatus,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, lifecycle events will not be published")
	}

	// kafka.Publisher consumers take an interface; a nil *Producer must not
	// end up in a non-nil interface value.
	var publisher inventory.Publisher
	if producer != nil {
		publisher = producer
	}

	var guard inventory.Guard
	if redisClient != nil {
		guard = redisguard.NewGuard(redisClient)
	}

	inventoryService := inventory.NewService(
		&inventorydb.DB{Bun: bunDB}, guard, publisher, log, cfg.Kafka.Topics.SeatStatus)

	catalogClient := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout)

	orderService := order.NewService(
		&orderdb.DB{Bun: bunDB}, inventoryService, catalogClient, publisher, log,
		cfg.Booking.OrderTTL,
		order.Topics{Created: cfg.Kafka.Topics.OrderCreated, Cancelled: cfg.Kafka.Topics.OrderCancelled})

	signer := qr.NewSigner(cfg.QRSecret)
	ticketService := tickets.NewService(
		&ticketdb.DB{Bun: bunDB}, signer, publisher, log,
		cfg.Booking.RefundCutoff,
		tickets.Topics{Issued: cfg.Kafka.Topics.TicketIssued, Validated: cfg.Kafka.Topics.TicketValidated})

	gateway := payment.NewSimulatedGateway(cfg.Gateway.SuccessRate, cfg.Gateway.MinLatency, cfg.Gateway.MaxLatency)
	processor := payment.NewProcessor(ctx,
		&orderdb.DB{Bun: bunDB}, &paymentdb.DB{Bun: bunDB}, inventoryService, ticketService,
		gateway, publisher, log,
		cfg.Gateway.Timeout, cfg.Booking.IssueRetries,
		payment.Topics{OrderPaid: cfg.Kafka.Topics.OrderPaid, OrderCancelled: cfg.Kafka.Topics.OrderCancelled})

	cancellationService := cancellation.NewService(
		&ticketdb.DB{Bun: bunDB}, &orderdb.DB{Bun: bunDB}, &paymentdb.DB{Bun: bunDB},
		inventoryService, gateway, publisher, log, cfg.Kafka.Topics.OrderCancelled)

	orderHandler := order_api.NewHandler(orderService, processor, ticketService, log)
	ticketHandler := ticket_api.NewHandler(ticketService, log)
	cancelHandler := cancel_api.NewHandler(cancellationService, log)
	inventoryHandler := inventory_api.NewHandler(inventoryService, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.CreateOrder)
			r.Get("/", orderHandler.ListOrders)
			r.Get("/{orderId}", orderHandler.GetOrder)
			r.Post("/{orderId}/confirm", orderHandler.ConfirmOrder)
			r.Post("/{orderId}/payment", orderHandler.ProcessPayment)
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Get("/", ticketHandler.ListTickets)
			r.Post("/validate", ticketHandler.ValidateTicket)
			r.Get("/{ticketId}", ticketHandler.GetTicket)
			r.Get("/{ticketId}/qr", ticketHandler.GetTicketQR)
			r.Post("/{ticketId}/cancel", cancelHandler.CancelTicket)
			r.Post("/{ticketId}/refund", cancelHandler.RefundTicket)
		})

		r.Route("/shows", func(r chi.Router) {
			r.Get("/{showId}/availability", inventoryHandler.GetAvailability)
			r.Post("/{showId}/cancel", cancelHandler.CancelShow)
		})
	})
	log.Info("ROUTER", "Routes registered under /api")

	// Expiry sweep reclaims seats from unpaid orders.
	go orderService.RunExpirer(ctx, cfg.Booking.ExpirySweep)

	// Show removals from the catalog trigger the bulk cancellation cascade.
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, "catalog.show.removed", "boxoffice")
		defer consumer.Close()
		go consumer.Start(ctx, func(ctx context.Context, event kafka.ShowRemovedEvent) {
			if _, err := cancellationService.CancelShow(ctx, event.ShowInstanceID, event.Reason); err != nil {
				log.Error("KAFKA", fmt.Sprintf("show removal handling failed for %s: %v", event.ShowInstanceID, err))
			}
		})
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Box office service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	<-ctx.Done()
	log.Info("APP", "Shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
		os.Exit(1)
	}
	log.Info("HTTP", "Box office service shutdown complete")
}

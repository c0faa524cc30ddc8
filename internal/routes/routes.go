package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"

	"github.com/congo-pay/feeledger/internal/auth"
	"github.com/congo-pay/feeledger/internal/config"
	"github.com/congo-pay/feeledger/internal/events"
	"github.com/congo-pay/feeledger/internal/funding"
	"github.com/congo-pay/feeledger/internal/identity"
	"github.com/congo-pay/feeledger/internal/jobs"
	"github.com/congo-pay/feeledger/internal/ledger"
	"github.com/congo-pay/feeledger/internal/middleware"
	"github.com/congo-pay/feeledger/internal/notification"
	"github.com/congo-pay/feeledger/internal/settlement"
	"github.com/congo-pay/feeledger/internal/store"
	"github.com/congo-pay/feeledger/internal/transactions"
	"github.com/congo-pay/feeledger/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes. When async
// events are enabled it returns the River client delivering status changes;
// the caller owns its lifecycle.
func Setup(app *fiber.App, d Deps) (*river.Client[pgx.Tx], error) {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	mode, err := settlement.ParseMode(d.Cfg.SettlementMode)
	if err != nil {
		return nil, err
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	// Services and handlers
	var st store.Store
	var identityRepo identity.Repository
	if d.DB != nil {
		st = store.NewPostgres(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		st = store.NewMemory()
		identityRepo = identity.NewMemoryRepository()
	}

	recorder := ledger.NewRecorder()
	notifier := notification.NewLoggerNotifier(d.Logger)
	engine := settlement.NewEngine(st, recorder,
		settlement.WithFee(d.Cfg.TransactionFee),
		settlement.WithCurrency(d.Cfg.Currency),
		settlement.WithMode(mode),
		settlement.WithLogger(d.Logger),
		settlement.WithPlatformCreditEntry(d.Cfg.PlatformCreditEntries),
	)
	walletSvc := wallet.NewService(st, d.Cfg.Currency)
	adapter := events.NewAdapter(engine, walletSvc, st, notifier, d.Logger)
	identitySvc := identity.NewService(identityRepo, adapter, d.Logger)
	authSvc := auth.NewService(d.Cfg, identityRepo)
	processor := funding.NewProcessor(st, recorder, notifier, d.Logger, d.Cfg.Currency)

	var jobsClient *river.Client[pgx.Tx]
	var queue events.Queue
	var listener transactions.ChangeListener = transactions.ListenerFunc(
		func(ctx context.Context, change events.TransactionChange) error {
			_, err := adapter.OnTransactionStatusChange(ctx, change)
			return err
		})
	if d.Cfg.AsyncEvents && d.DB != nil {
		jobsClient, err = jobs.NewClient(d.DB, adapter, 0, d.Logger)
		if err != nil {
			return nil, err
		}
		enqueuer := jobs.NewEnqueuer(jobs.ClientInsert(jobsClient))
		queue = enqueuer
		listener = enqueuer
	}
	transactionSvc := transactions.NewService(st, listener, d.Logger)

	// API routes
	api := app.Group("/api/v1", middleware.OptionalJWT(authSvc))
	if d.Cache != nil {
		api.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	jwtmw := middleware.JWTAuth(authSvc)
	RegisterIdentityRoutes(api, identity.NewHandler(identitySvc))
	RegisterAuthRoutes(api, auth.NewHandler(identitySvc, authSvc), jwtmw)
	// The deposit callable answers anonymous calls with its own error shape.
	RegisterFundingRoutes(api, funding.NewHandler(processor))
	RegisterEventRoutes(api, events.NewHandler(adapter, queue), middleware.SharedSecret(d.Cfg.EventsSecret))

	// Protected routes
	protected := api.Group("", jwtmw)
	RegisterProfileRoute(protected, identityRepo, walletSvc)
	RegisterWalletRoutes(protected, wallet.NewHandler(walletSvc))
	RegisterTransactionRoutes(protected, transactions.NewHandler(transactionSvc))

	return jobsClient, nil
}

package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/agendmed/internal/availability"
	"github.com/wolfman30/agendmed/internal/booking"
	"github.com/wolfman30/agendmed/internal/bookings"
	"github.com/wolfman30/agendmed/internal/catalog"
	"github.com/wolfman30/agendmed/internal/compliance"
	appconfig "github.com/wolfman30/agendmed/internal/config"
	"github.com/wolfman30/agendmed/internal/conversation"
	"github.com/wolfman30/agendmed/internal/events"
	"github.com/wolfman30/agendmed/internal/messaging"
	"github.com/wolfman30/agendmed/internal/observability/metrics"
	"github.com/wolfman30/agendmed/internal/session"
	"github.com/wolfman30/agendmed/internal/upstream"
	"github.com/wolfman30/agendmed/pkg/logging"
)

const (
	// dedupeRetention bounds the in-process provider event dedupe window.
	dedupeRetention = 24 * time.Hour
	// lockLeaseMargin keeps the per-caller lease longer than one handled message.
	lockLeaseMargin = 15 * time.Second
)

// Core holds the booking stack shared by the API and the worker binaries.
type Core struct {
	Config  *appconfig.Config
	Logger  *logging.Logger
	Metrics *metrics.BookingMetrics

	Redis *redis.Client
	Pool  *pgxpool.Pool
	DB    *sql.DB

	Upstream    *upstream.Client
	Catalog     *catalog.Catalog
	Slots       *availability.Resolver
	Sessions    session.Store
	Outbox      events.Outbox
	Publisher   events.Publisher
	Bookings    *bookings.Service
	Machine     *booking.Machine
	Tenants     messaging.TenantDirectory
	Transcripts conversation.TranscriptStore
	Deduper     events.Deduper
	Audit       compliance.AuditLog

	Outbound OutboundChannel
	// Channel is Outbound.Channel recording every reply in the transcript.
	Channel messaging.Channel
	Router   *conversation.Router

	closers []func() error
}

// BuildCore wires the stores, the booking machine and the conversation router
// from cfg. Redis and Postgres are optional; without them in-process stores
// are used.
func BuildCore(ctx context.Context, cfg *appconfig.Config, reg prometheus.Registerer, logger *logging.Logger) (*Core, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c := &Core{Config: cfg, Logger: logger}
	if reg != nil {
		c.Metrics = metrics.NewBookingMetrics(reg)
	}

	c.Redis = BuildRedisClient(ctx, cfg, logger, true)
	if c.Redis != nil {
		c.closers = append(c.closers, c.Redis.Close)
	}

	pool, db, err := BuildPostgres(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		c.Pool, c.DB = pool, db
		c.closers = append(c.closers, db.Close, func() error { pool.Close(); return nil })
	}

	c.Upstream = upstream.NewClient(cfg.FrontendURL, logger,
		upstream.WithTimeout(cfg.UpstreamTimeout),
		upstream.WithRateLimit(cfg.UpstreamRateLimit, cfg.UpstreamRateBurst),
		upstream.WithMetrics(c.Metrics),
	)
	c.Catalog = catalog.New(catalog.NewUpstreamFetcher(c.Upstream), logger, catalog.WithTTL(cfg.CatalogTTL))
	c.Slots = availability.NewResolver(c.Upstream, logger)

	if err := c.buildBookings(logger); err != nil {
		c.Close()
		return nil, err
	}
	c.buildMachine(logger)
	c.buildMessaging(logger)

	outbound, err := BuildOutboundChannel(cfg, c.Metrics, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Outbound = outbound
	c.Channel = messaging.WrapWithRecorder(outbound.Channel, c.Transcripts, logger)

	// The attendant gets the unrecorded channel so handoff summaries do not
	// land in the attendant's own transcript.
	handoff := conversation.NewAttendantHandoff(outbound.Channel, cfg.AttendantPhone, logger)
	c.Router = conversation.NewRouter(
		c.Machine,
		c.Channel,
		messaging.NewFallbackResolver(c.Tenants, cfg.DefaultTenantID),
		logger,
		conversation.WithServiceLister(c.Catalog),
		conversation.WithHoursSource(c.Slots),
		conversation.WithAttendantNotifier(handoff),
		conversation.WithTranscript(c.Transcripts),
	)
	return c, nil
}

func (c *Core) buildBookings(logger *logging.Logger) error {
	var repo bookings.Repository
	if c.DB != nil {
		repo = bookings.NewPostgresRepository(c.DB)
		c.Outbox = events.NewOutboxStore(c.Pool)
	} else {
		logger.Warn("DATABASE_URL not set; bookings and outbox kept in memory")
		repo = bookings.NewMemoryRepository()
		c.Outbox = events.NewMemoryOutbox()
	}

	if len(c.Config.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(c.Config.KafkaBrokers, c.Config.KafkaBookingsTopic, logger)
		if err != nil {
			return err
		}
		c.Publisher = kp
		c.closers = append(c.closers, kp.Close)
	} else {
		c.Publisher = events.NewLogPublisher(logger)
	}

	c.Bookings = bookings.NewService(repo, bookings.NewHTTPConnector(c.Upstream), c.Outbox, logger,
		bookings.WithMetrics(c.Metrics),
		bookings.WithPublisher(c.Publisher),
	)
	return nil
}

func (c *Core) buildMachine(logger *logging.Logger) {
	policy := session.RetentionPolicy{
		IdleTTL:            c.Config.SessionIdleTTL,
		CompletedRetention: c.Config.SessionCompletedRetention,
	}
	opts := []booking.Option{
		booking.WithLocation(c.Config.Location()),
		booking.WithMetrics(c.Metrics),
	}
	if c.Redis != nil {
		c.Sessions = session.NewRedisStore(c.Redis, policy)
		opts = append(opts, booking.WithLocker(session.NewRedisLocker(c.Redis,
			session.WithLease(lockLease(c.Config.HandleTimeout)),
			session.WithLostLeaseHook(func(key string) {
				logger.Warn("session lock lease expired before release", "key", key)
			}),
		)))
	} else {
		c.Sessions = session.NewMemoryStore(policy)
		opts = append(opts, booking.WithLocker(session.NewLocalLocker()))
	}
	c.Machine = booking.NewMachine(c.Sessions, c.Catalog, c.Slots, c.Bookings, logger, opts...)
}

func (c *Core) buildMessaging(logger *logging.Logger) {
	if c.Redis != nil {
		c.Tenants = messaging.NewRedisTenantDirectory(c.Redis)
		c.Transcripts = conversation.NewRedisTranscriptStore(c.Redis)
	} else {
		logger.Warn("REDIS_ADDR not set; tenant registrations and transcripts kept in memory")
		c.Tenants = messaging.NewMemoryTenantDirectory(nil)
		c.Transcripts = conversation.NewMemoryTranscriptStore()
	}
	if c.Pool != nil {
		c.Deduper = events.NewProcessedStore(c.Pool)
		c.Audit = compliance.NewAuditService(c.DB)
	} else {
		c.Deduper = events.NewMemoryDeduper(dedupeRetention)
		c.Audit = compliance.NewMemoryAuditLog(logger)
	}
}

// lockLease outlasts a handled message; RedisLocker also renews it while held.
func lockLease(handleTimeout time.Duration) time.Duration {
	return handleTimeout + lockLeaseMargin
}

// Deliverer retries deferred booking saves from the outbox.
func (c *Core) Deliverer() *events.Deliverer {
	mux := events.NewHandlerMux()
	mux.Register(events.BookingSaveRequestedV1{}.EventType(), c.Bookings.RetryHandler())
	return events.NewDeliverer(c.Outbox, mux, c.Logger).WithInterval(c.Config.OutboxInterval)
}

// NewWorker builds a queue consumer that routes messages through the router.
func (c *Core) NewWorker(queue conversation.Queue) *conversation.Worker {
	return conversation.NewWorker(c.Router, queue, c.Logger,
		conversation.WithWorkerCount(c.Config.WorkerCount),
		conversation.WithHandleTimeout(c.Config.HandleTimeout),
		conversation.WithProcessedEventsStore(c.Deduper),
	)
}

// Close releases connections in reverse order of creation.
func (c *Core) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn("close failed", "error", err)
		}
	}
	c.closers = nil
}

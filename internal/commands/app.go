package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/hay-kot/pickup/internal/core/basket"
	"github.com/hay-kot/pickup/internal/core/clock"
	"github.com/hay-kot/pickup/internal/core/config"
	"github.com/hay-kot/pickup/internal/core/eventbus"
	"github.com/hay-kot/pickup/internal/core/order"
	"github.com/hay-kot/pickup/internal/core/profile"
	"github.com/hay-kot/pickup/internal/core/styles"
	"github.com/hay-kot/pickup/internal/data/blobdraft"
	"github.com/hay-kot/pickup/internal/data/db"
	"github.com/hay-kot/pickup/internal/data/memstore"
	"github.com/hay-kot/pickup/internal/data/pgstore"
	"github.com/hay-kot/pickup/internal/data/stores"
	"github.com/hay-kot/pickup/internal/metrics"
	"github.com/hay-kot/pickup/internal/pickup"
)

const busSize = 256

// App is the wired application the commands run against. main populates a
// pre-allocated App in its Before hook.
type App struct {
	Config  *config.Config
	Orders  *pickup.OrderService
	Bus     *eventbus.EventBus
	Metrics *metrics.Recorder

	stopBus context.CancelFunc
	router  *eventbus.NoticeRouter
	closers []func() error
}

// NewApp opens the configured stores and starts the event bus. Notices
// derived from bus events are written to notices.
func NewApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, notices io.Writer) (*App, error) {
	calc, err := cfg.Calculator()
	if err != nil {
		return nil, err
	}
	clk := clock.Real{}

	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = app.Close()
		}
	}()

	opts := order.Options{
		Tenant: cfg.Tenant,
		Zone:   calc.Zone(),
		Guard:  pickup.DeadlineGuard(calc, clk),
		Clock:  clk,
	}

	var database *db.DB
	if cfg.UsesSQLite() {
		database, err = openDatabase(cfg, logger)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, database.Close)
	}

	orders, err := app.orderStore(ctx, cfg, opts, database)
	if err != nil {
		return nil, err
	}
	drafts, err := draftStore(ctx, cfg, database)
	if err != nil {
		return nil, err
	}

	var profiles profile.Store = memstore.NewProfiles()
	if cfg.Storage.Orders != config.BackendMemory {
		profiles = stores.NewProfileStore(database)
	}

	app.Bus = eventbus.New(busSize)
	eventbus.RegisterDebugLogger(app.Bus, logger.With().Str("cmp", "bus").Logger())

	app.router = eventbus.NewNoticeRouter(app.Bus)
	app.router.Register()
	if notices != nil {
		app.Bus.SubscribeNoticePublished(func(p eventbus.NoticePublishedPayload) {
			style := styles.MutedStyle
			if p.Level == eventbus.NoticeWarning {
				style = styles.WarningStyle
			}
			_, _ = fmt.Fprintln(notices, style.Render(p.Message))
		})
	}

	app.Metrics = metrics.New()
	app.Metrics.Register(app.Bus)

	busCtx, cancel := context.WithCancel(context.Background())
	app.stopBus = cancel
	go app.Bus.Start(busCtx)

	app.Orders, err = pickup.NewOrderService(pickup.Deps{
		Orders:     orders,
		Drafts:     drafts,
		Profiles:   profiles,
		Calculator: calc,
		Clock:      clk,
		Bus:        app.Bus,
		Metrics:    app.Metrics,
		Logger:     logger,
		Timeout:    cfg.Remote.Timeout,
		Lookahead:  cfg.Schedule.Lookahead,
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return app, nil
}

func openDatabase(cfg *config.Config, logger zerolog.Logger) (*db.DB, error) {
	dbOpts := db.OpenOptions{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		BusyTimeout:  cfg.Database.BusyTimeout,
	}

	database, err := db.Open(cfg.DataDir, dbOpts)
	if err != nil && stores.IsCorruptionError(err) {
		logger.Warn().Err(err).Str("data_dir", cfg.DataDir).Msg("database corrupted, moving it aside")
		if rerr := stores.RecoverFromCorruption(cfg.DataDir); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		database, err = db.Open(cfg.DataDir, dbOpts)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return database, nil
}

func (a *App) orderStore(ctx context.Context, cfg *config.Config, opts order.Options, database *db.DB) (order.Store, error) {
	switch cfg.Storage.Orders {
	case config.BackendPostgres:
		pg, err := pgstore.Open(ctx, cfg.Storage.PostgresDSN, opts)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		return pg, nil
	case config.BackendMemory:
		return memstore.NewOrders(opts), nil
	default:
		return stores.NewOrderStore(database, opts), nil
	}
}

func draftStore(ctx context.Context, cfg *config.Config, database *db.DB) (basket.DraftStore, error) {
	switch cfg.Storage.Drafts {
	case config.BackendS3:
		s3cfg := cfg.Storage.S3
		return blobdraft.New(ctx, blobdraft.Config{
			Bucket:    s3cfg.Bucket,
			Region:    s3cfg.Region,
			Endpoint:  s3cfg.Endpoint,
			Prefix:    s3cfg.Prefix,
			PathStyle: s3cfg.PathStyle,
		})
	case config.BackendMemory:
		return memstore.NewDrafts(), nil
	default:
		return stores.NewDraftStore(database), nil
	}
}

// Session opens a session for buyerID, falling back to the configured buyer.
func (a *App) Session(ctx context.Context, buyerID string) (*pickup.Session, error) {
	if a.Orders == nil {
		return nil, errors.New("application not initialized")
	}
	if buyerID == "" {
		buyerID = a.Config.Buyer
	}
	if buyerID == "" {
		return nil, errors.New("no buyer: pass --buyer or set buyer in the config file")
	}
	return a.Orders.Open(ctx, buyerID)
}

// Close drains the bus, flushes metrics and closes the stores.
func (a *App) Close() error {
	var errs []error

	if a.stopBus != nil {
		a.stopBus()
		<-a.Bus.Done()
		a.stopBus = nil
	}
	if a.router != nil {
		a.router.Close()
	}
	if a.Metrics != nil {
		a.Metrics.Close()
		if path := a.Config.Metrics.Textfile; path != "" {
			if err := a.Metrics.WriteTextfile(path); err != nil {
				errs = append(errs, fmt.Errorf("write metrics: %w", err))
			}
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

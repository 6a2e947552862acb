package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	appchain "longtrade/internal/application/service/chain"
	appfactors "longtrade/internal/application/service/factors"
	appindicator "longtrade/internal/application/service/indicator"
	apporders "longtrade/internal/application/service/orders"
	"longtrade/internal/config"
	"longtrade/internal/domain/entity/market"
	"longtrade/internal/infrastructure/broker"
	"longtrade/internal/infrastructure/calendar"
	"longtrade/internal/infrastructure/longport"
	infrahttp "longtrade/internal/interfaces/http"
)

const snapshotPublishInterval = time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	cal, err := calendar.NewUS()
	if err != nil {
		logger.Fatalf("failed to init trading calendar: %v", err)
	}

	stream := longport.NewStream(cfg.Gateway.WSURL, cfg.Gateway.Token, logger)
	gateway := longport.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Token, stream, logger)

	engine := appindicator.NewEngine(cfg.Market.Universe, cfg.Market.WindowSize)
	if err := seedReferenceCloses(ctx, gateway, cal, engine); err != nil {
		logger.Fatalf("failed to seed reference closes: %v", err)
	}

	chains := appchain.NewService(gateway, cal, cfg.Market.QuotedPerLeg, cfg.Market.StrikeBias)
	tracker := apporders.NewTracker(gateway, gateway, chains, cfg.Market.Universe, int(cfg.Market.LotMultiplier))
	if err := tracker.Restore(ctx); err != nil {
		logger.Warnf("restore open positions: %v", err)
	}
	factors := appfactors.NewService(gateway, chains, cal, engine, cfg.Market.Universe, cal.Location())

	gateway.OnTick(engine.HandleTick)
	gateway.OnTick(chains.HandleTick)
	gateway.OnDepth(chains.HandleDepth)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var publisher *broker.Publisher
	if cfg.Rabbit.URL != "" {
		publisher, err = broker.NewPublisher(cfg.Rabbit, logger)
		if err != nil {
			logger.Fatalf("failed to init rabbitmq publisher: %v", err)
		}
		defer publisher.Close()
	}

	handler := infrahttp.NewHandler(
		engine, chains, tracker, factors, gateway,
		publisher, redisClient, cfg.Cache.TTL, cfg.Market.RiskFreeRate, logger,
	)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: handler,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := stream.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if publisher != nil {
		g.Go(func() error {
			return publishSnapshots(gctx, publisher, engine, logger)
		})
	}
	g.Go(func() error {
		logger.Infof("HTTP server listening on %s", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infof("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("server error: %v", err)
	}
	logger.Info("server stopped")
}

// seedReferenceCloses primes the indicator deltas: during the session the
// previous close is the reference, outside it the last traded price is.
func seedReferenceCloses(ctx context.Context, gateway *longport.Client, cal *calendar.Calendar, engine *appindicator.Engine) error {
	tickers := engine.Tickers()
	symbols := make([]string, 0, len(tickers))
	for _, tk := range tickers {
		symbols = append(symbols, market.QualifySymbol(tk))
	}
	quotes, err := gateway.Quote(ctx, symbols)
	if err != nil {
		return err
	}
	inSession := cal.TradingNow()
	for _, q := range quotes {
		ref := q.LastDone
		if inSession {
			ref = q.PrevClose
		}
		if err := engine.SetReferenceClose(market.TickerOf(q.Symbol), ref); err != nil {
			return err
		}
	}
	return nil
}

// publishSnapshots fans the indicator state out to RabbitMQ once a second.
func publishSnapshots(ctx context.Context, publisher *broker.Publisher, engine *appindicator.Engine, logger *logrus.Logger) error {
	ticker := time.NewTicker(snapshotPublishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := publisher.PublishSnapshots(ctx, engine.SnapshotAll()); err != nil {
				logger.WithError(err).Warn("publish indicator snapshots")
			}
		}
	}
}

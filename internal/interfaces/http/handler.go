package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	appchain "longtrade/internal/application/service/chain"
	appfactors "longtrade/internal/application/service/factors"
	appindicator "longtrade/internal/application/service/indicator"
	apporders "longtrade/internal/application/service/orders"
	"longtrade/internal/application/service/pricing"
	"longtrade/internal/domain/entity/market"
	"longtrade/internal/domain/entity/options"
	domainorders "longtrade/internal/domain/entity/orders"
	"longtrade/internal/domain/interfaces"
	"longtrade/internal/infrastructure/broker"
)

const (
	quotePushInterval  = 250 * time.Millisecond
	optionPollInterval = 200 * time.Millisecond
	wsWriteTimeout     = 5 * time.Second
)

var (
	errMissingTicker = errors.New("tk query param required")
	errMissingSymbol = errors.New("symbol query param required")
	errBadOptionType = errors.New("option type must be put or call")
	errBadOrderSide  = errors.New("side must be buy or sell")
)

// Handler is the HTTP and websocket surface of the service.
type Handler struct {
	router    *gin.Engine
	engine    *appindicator.Engine
	chains    *appchain.Service
	tracker   *apporders.Tracker
	factors   *appfactors.Service
	feed      interfaces.QuoteFeed
	publisher *broker.Publisher
	cache     *redis.Client
	cacheTTL  time.Duration
	riskFree  float64
	logger    *logrus.Logger
	upgrader  websocket.Upgrader

	// chainSubs holds the live push subscription per (ticker, type) window so
	// gateway events keep the cached chain current between requests.
	chainMu   sync.Mutex
	chainSubs map[string]*appchain.Subscription
}

func NewHandler(
	engine *appindicator.Engine,
	chains *appchain.Service,
	tracker *apporders.Tracker,
	factorsSvc *appfactors.Service,
	feed interfaces.QuoteFeed,
	publisher *broker.Publisher,
	cache *redis.Client,
	cacheTTL time.Duration,
	riskFree float64,
	logger *logrus.Logger,
) *Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	h := &Handler{
		router:    router,
		engine:    engine,
		chains:    chains,
		tracker:   tracker,
		factors:   factorsSvc,
		feed:      feed,
		publisher: publisher,
		cache:     cache,
		cacheTTL:  cacheTTL,
		riskFree:  riskFree,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		chainSubs: make(map[string]*appchain.Subscription),
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/quote", h.quoteStream)
	h.router.GET("/quote-option", h.optionQuoteStream)

	factors := h.router.Group("/")
	if h.cache != nil {
		factors.Use(h.cacheMiddleware())
	}
	{
		factors.GET("/stat", h.dayStat)
		factors.GET("/capflow", h.capitalFlow)
		factors.GET("/iv", h.ivPanel)
		factors.GET("/corr", h.correlation)
		factors.GET("/factors", h.factorPanel)
	}

	h.router.GET("/chain", h.chainWindow)
	h.router.GET("/preview", h.preview)
	h.router.GET("/pricing", h.theoretical)
	h.router.GET("/position", h.position)
	h.router.POST("/order", h.placeOrder)
}

// Factor endpoints.

func (h *Handler) dayStat(c *gin.Context) {
	tk, ok := tickerParam(c)
	if !ok {
		return
	}
	stat, err := h.factors.DayStat(c.Request.Context(), tk)
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, stat)
}

func (h *Handler) capitalFlow(c *gin.Context) {
	tk, ok := tickerParam(c)
	if !ok {
		return
	}
	factor, err := h.factors.CapitalFlow(c.Request.Context(), tk)
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, factor)
}

func (h *Handler) ivPanel(c *gin.Context) {
	tk, ok := tickerParam(c)
	if !ok {
		return
	}
	factor, err := h.factors.IVPanel(c.Request.Context(), tk)
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, factor)
}

func (h *Handler) correlation(c *gin.Context) {
	tk, ok := tickerParam(c)
	if !ok {
		return
	}
	factor, err := h.factors.Correlation(c.Request.Context(), tk)
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, factor)
}

func (h *Handler) factorPanel(c *gin.Context) {
	tk, ok := tickerParam(c)
	if !ok {
		return
	}
	panel, err := h.factors.Factors(c.Request.Context(), tk)
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, panel)
}

// Option chain endpoints.

func (h *Handler) preview(c *gin.Context) {
	tk, ok := tickerParam(c)
	if !ok {
		return
	}
	typ, err := parseOptionType(c.DefaultQuery("typ", string(options.TypePut)))
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	ctx := c.Request.Context()

	view, err := h.chains.Preview(ctx, tk, typ)
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}

	switch c.DefaultQuery("ret", "price") {
	case "symbol":
		c.JSON(http.StatusOK, view.Symbols())
	case "price":
		quotes, err := h.feed.OptionQuote(ctx, view.Symbols())
		if err != nil {
			writeError(c, http.StatusBadGateway, err)
			return
		}
		prices := make([]string, 0, len(quotes))
		for _, q := range quotes {
			prices = append(prices, q.LastDone.String())
		}
		c.JSON(http.StatusOK, prices)
	default:
		c.JSON(http.StatusOK, view)
	}
}

// chainWindow serves the cached chain side for the next listed weekly expiry,
// refreshing the near-the-money quote window during trading hours.
func (h *Handler) chainWindow(c *gin.Context) {
	tk, ok := tickerParam(c)
	if !ok {
		return
	}
	typ, err := parseOptionType(c.DefaultQuery("typ", string(options.TypePut)))
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	ctx := c.Request.Context()

	expiry, err := h.chains.ResolveExpiry(ctx, tk)
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	contracts, sub, err := h.chains.Chain(ctx, tk, typ, expiry, true)
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	if sub != nil {
		h.retainChainSub(tk+"/"+string(typ), sub)
	}
	c.JSON(http.StatusOK, gin.H{
		"tk":        tk,
		"type":      typ,
		"expiry":    expiry,
		"contracts": contracts,
	})
}

// retainChainSub swaps in the window's new push subscription and releases the
// one it replaces. Subscriptions live until the next refresh of the same
// (ticker, type) window, so pushes between requests land in the cache.
func (h *Handler) retainChainSub(key string, sub *appchain.Subscription) {
	h.chainMu.Lock()
	prev := h.chainSubs[key]
	h.chainSubs[key] = sub
	h.chainMu.Unlock()

	if prev != nil {
		if err := prev.Close(context.Background()); err != nil {
			h.logger.WithError(err).Warn("release chain subscription")
		}
	}
}

func (h *Handler) theoretical(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		writeError(c, http.StatusBadRequest, errMissingSymbol)
		return
	}
	ref, err := options.ParseSymbol(symbol)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	ctx := c.Request.Context()

	underlying, err := h.feed.Quote(ctx, []string{market.QualifySymbol(ref.Ticker)})
	if err != nil || len(underlying) == 0 {
		writeError(c, http.StatusBadGateway, fmt.Errorf("fetch underlying quote: %w", err))
		return
	}
	contracts, err := h.feed.OptionQuote(ctx, []string{symbol})
	if err != nil || len(contracts) == 0 {
		writeError(c, http.StatusBadGateway, fmt.Errorf("fetch option quote: %w", err))
		return
	}

	result, err := pricing.Evaluate(pricing.Input{
		Spot:      underlying[0].LastDone.InexactFloat64(),
		Strike:    ref.Strike.InexactFloat64(),
		TimeYears: pricing.YearsUntil(ref.Expiry, time.Now()),
		Rate:      h.riskFree,
		Vol:       contracts[0].ImpliedVolatility,
		Type:      ref.Type,
	})
	if err != nil {
		writeError(c, http.StatusUnprocessableEntity, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"name":   ref.DisplayName(),
		"market": contracts[0].LastDone,
		"theo":   result,
	})
}

// Order endpoints.

type orderRequest struct {
	Ticker    string          `json:"tk"`
	Option    string          `json:"option"`
	Side      string          `json:"side"`
	OrderType string          `json:"order_type"`
	Qty       json.RawMessage `json:"qty"`
	Money     string          `json:"money"`
}

func (h *Handler) placeOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if req.Ticker == "" {
		writeError(c, http.StatusBadRequest, errMissingTicker)
		return
	}
	typ, err := parseOptionType(req.Option)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	side := domainorders.Side(req.Side)
	if side != domainorders.SideBuy && side != domainorders.SideSell {
		writeError(c, http.StatusBadRequest, errBadOrderSide)
		return
	}

	spec := apporders.SubmitSpec{
		OrderType: domainorders.OrderTypeMarket,
		Sizing:    domainorders.SizingPolicy{Kind: domainorders.SizingMinimal},
		Moneyness: domainorders.MoneynessITM,
	}
	if req.OrderType == string(domainorders.OrderTypeLimit) {
		spec.OrderType = domainorders.OrderTypeLimit
	}
	if len(req.Qty) > 0 {
		var raw any
		if err := json.Unmarshal(req.Qty, &raw); err != nil {
			writeError(c, http.StatusBadRequest, fmt.Errorf("decode qty: %w", err))
			return
		}
		if spec.Sizing, err = domainorders.ParseSizingPolicy(raw); err != nil {
			writeError(c, http.StatusBadRequest, err)
			return
		}
	}
	if req.Money != "" {
		if spec.Moneyness, err = domainorders.ParseMoneyness(req.Money); err != nil {
			writeError(c, http.StatusBadRequest, err)
			return
		}
	}

	ctx := c.Request.Context()
	record, err := h.tracker.Submit(ctx, req.Ticker, typ, side, spec)
	switch {
	case errors.Is(err, apporders.ErrNoViableContract),
		errors.Is(err, apporders.ErrNoOpenPosition):
		writeError(c, http.StatusUnprocessableEntity, err)
		return
	case err != nil:
		writeError(c, http.StatusBadGateway, err)
		return
	}

	if pubErr := h.publisher.PublishOrder(ctx, &record); pubErr != nil {
		h.logger.WithError(pubErr).Warn("publish order record")
	}
	c.JSON(http.StatusOK, record)
}

func (h *Handler) position(c *gin.Context) {
	tk, ok := tickerParam(c)
	if !ok {
		return
	}
	view, err := h.tracker.Positions(c.Request.Context(), tk)
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Websocket endpoints.

// quoteStream pushes indicator snapshots for the whole universe every 250ms.
// The gateway subscription is opened per client and released on disconnect;
// the feed reference-counts overlapping clients.
func (h *Handler) quoteStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	symbols := make([]string, 0, len(h.engine.Tickers()))
	for _, tk := range h.engine.Tickers() {
		symbols = append(symbols, market.QualifySymbol(tk))
	}
	kinds := []interfaces.SubKind{interfaces.SubQuote}

	ctx := c.Request.Context()
	if err := h.feed.Subscribe(ctx, symbols, kinds); err != nil {
		h.logger.WithError(err).Error("subscribe universe")
		return
	}
	defer func() {
		if err := h.feed.Unsubscribe(context.Background(), symbols, kinds); err != nil {
			h.logger.WithError(err).Warn("unsubscribe universe")
		}
	}()

	// The client opens the dialogue with one text message.
	if _, _, err := conn.ReadMessage(); err != nil {
		return
	}
	closed := watchClose(conn)

	ticker := time.NewTicker(quotePushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(gin.H{"data": h.engine.SnapshotAll()}); err != nil {
				return
			}
		}
	}
}

// optionQuoteStream polls one contract quote every 200ms. The client sends
// the contract symbol as its first message.
func (h *Handler) optionQuoteStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return
	}
	symbol := string(bytes.TrimSpace(raw))
	ref, err := options.ParseSymbol(symbol)
	if err != nil {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		_ = conn.WriteJSON(gin.H{"error": err.Error()})
		return
	}
	closed := watchClose(conn)

	ctx := c.Request.Context()
	ticker := time.NewTicker(optionPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			quotes, err := h.feed.OptionQuote(ctx, []string{symbol})
			if err != nil || len(quotes) == 0 {
				continue
			}
			q := quotes[0]
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(gin.H{
				"price":  q.LastDone,
				"type":   ref.Type,
				"strike": q.Strike,
				"exp":    ref.Expiry.Format("01/02"),
				"open":   q.OpenInterest,
			}); err != nil {
				return
			}
		}
	}
}

// watchClose drains client frames so close handshakes are noticed while the
// server only pushes.
func watchClose(conn *websocket.Conn) <-chan struct{} {
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return closed
}

// Helpers.

func tickerParam(c *gin.Context) (string, bool) {
	tk := c.Query("tk")
	if tk == "" {
		writeError(c, http.StatusBadRequest, errMissingTicker)
		return "", false
	}
	return tk, true
}

func parseOptionType(raw string) (options.Type, error) {
	switch options.Type(raw) {
	case options.TypePut:
		return options.TypePut, nil
	case options.TypeCall:
		return options.TypeCall, nil
	default:
		return "", errBadOptionType
	}
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// cacheMiddleware caches GET responses in Redis.
func (h *Handler) cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.cache == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := h.cacheKey(c)
		ctx := c.Request.Context()

		if cached, err := h.cache.Get(ctx, key).Result(); err == nil {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			c.Abort()
			return
		}

		recorder := &responseRecorder{
			ResponseWriter: c.Writer,
			status:         http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = recorder

		c.Next()

		if recorder.status >= 200 && recorder.status < 300 && recorder.body.Len() > 0 {
			_ = h.cache.Set(ctx, key, recorder.body.Bytes(), h.cacheTTL).Err()
		}
	}
}

func (h *Handler) cacheKey(c *gin.Context) string {
	return fmt.Sprintf("cache:%s:%s?%s", c.Request.Method, c.FullPath(), c.Request.URL.RawQuery)
}

type responseRecorder struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if len(data) > 0 {
		r.body.Write(data)
	}
	return r.ResponseWriter.Write(data)
}

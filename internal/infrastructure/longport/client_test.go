package longport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"longtrade/internal/domain/entity/orders"
	"longtrade/internal/domain/interfaces"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewClient(server.URL, "test-token", nil, logger), server
}

func TestQuoteDecodesDecimals(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("authorization header = %q", got)
		}
		if r.URL.Path != "/v1/quote" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbols"); got != "TSLA.US,NVDA.US" {
			t.Errorf("symbols = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"quotes":[
			{"symbol":"TSLA.US","last_done":"412.05","prev_close":"408.10","volume":123},
			{"symbol":"NVDA.US","last_done":"181.4","prev_close":"180.0","volume":456}
		]}`))
	}))

	quotes, err := client.Quote(context.Background(), []string{"TSLA.US", "NVDA.US"})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("got %d quotes, want 2", len(quotes))
	}
	if !quotes[0].LastDone.Equal(decimal.RequireFromString("412.05")) {
		t.Fatalf("last done = %s, want 412.05", quotes[0].LastDone)
	}
	if quotes[1].Volume != 456 {
		t.Fatalf("volume = %d, want 456", quotes[1].Volume)
	}
}

func TestNotTradableMapsToSentinel(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"instrument_not_tradable","message":"no market maker"}`))
	}))

	_, err := client.EstimateMaxPurchaseQuantity(context.Background(), "TSLA260904P90000.US", orders.SideBuy)
	if !errors.Is(err, interfaces.ErrNotTradable) {
		t.Fatalf("got %v, want ErrNotTradable", err)
	}
}

func TestGatewayErrorEnvelopeSurfaces(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"internal","message":"boom"}`))
	}))

	_, err := client.Depth(context.Background(), "TSLA.US")
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !IsAPIError(err) {
		t.Fatalf("error %v must carry the gateway envelope", err)
	}
	if errors.Is(err, interfaces.ErrNotTradable) {
		t.Fatalf("unrelated codes must not map to the sentinel")
	}
}

func TestSubmitOrderPostsBody(t *testing.T) {
	var body submitOrderBody
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/order" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"order_id":"ord-42"}`))
	}))

	price := decimal.RequireFromString("2.45")
	orderID, err := client.SubmitOrder(context.Background(), interfaces.SubmitOrderRequest{
		ClientOrderID: "cli-1",
		Symbol:        "TSLA260904P90000.US",
		Side:          orders.SideBuy,
		Type:          orders.OrderTypeLimit,
		Quantity:      decimal.NewFromInt(3),
		Price:         &price,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if orderID != "ord-42" {
		t.Fatalf("order id = %q", orderID)
	}
	if body.ClientOrderID != "cli-1" || body.Side != orders.SideBuy || body.Type != orders.OrderTypeLimit {
		t.Fatalf("body = %+v", body)
	}
	if body.Price == nil || !body.Price.Equal(price) {
		t.Fatalf("price = %v, want 2.45", body.Price)
	}
}

func TestParseOrderStatus(t *testing.T) {
	cases := map[string]orders.Status{
		"filled":    orders.StatusFilled,
		"FILLED":    orders.StatusFilled,
		"cancelled": orders.StatusCanceled,
		"canceled":  orders.StatusCanceled,
		"rejected":  orders.StatusRejected,
		"expired":   orders.StatusRejected,
		"pending":   orders.StatusSubmitted,
		"":          orders.StatusSubmitted,
	}
	for raw, want := range cases {
		if got := parseOrderStatus(raw); got != want {
			t.Fatalf("parseOrderStatus(%q) = %s, want %s", raw, got, want)
		}
	}
}

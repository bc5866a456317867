package breeze

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"levelbot/internal/broker"
	brcfg "levelbot/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(brcfg.BrokerConfig{
		Mode:         "breeze",
		APIURL:       srv.URL,
		APIKey:       "key",
		SessionToken: "token",
		StockCode:    "NIFTY",
		ExchangeCode: "NFO",
	})
	require.NoError(t, err)
	c.SetHTTPClient(srv.Client())
	return c, srv
}

func TestPlaceSendsOrderAndParsesID(t *testing.T) {
	var got map[string]string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/order", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-API-Key"))
		assert.Equal(t, "token", r.Header.Get("X-Session-Token"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"Success":{"order_id":"20260828N100"}}`))
	})

	res, err := c.Place(context.Background(), broker.OrderRequest{Right: broker.Call, Strike: 25700, Quantity: 75})
	require.NoError(t, err)
	assert.Equal(t, "20260828N100", res.OrderID)
	assert.Equal(t, broker.StatusPending, res.Status)
	assert.Equal(t, "NIFTY", got["stock_code"])
	assert.Equal(t, "buy", got["action"])
	assert.Equal(t, "call", got["right"])
	assert.Equal(t, "25700", got["strike_price"])
	assert.Equal(t, "75", got["quantity"])
}

func TestPlaceRejection(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Error":"insufficient funds","Success":null}`))
	})
	_, err := c.Place(context.Background(), broker.OrderRequest{Right: broker.Call, Strike: 25700, Quantity: 75})
	require.ErrorIs(t, err, broker.ErrRejected)
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestServerErrorIsTransient(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.Place(context.Background(), broker.OrderRequest{Right: broker.Call, Strike: 25700, Quantity: 75})
	require.Error(t, err)
	assert.NotErrorIs(t, err, broker.ErrRejected)
}

func TestLastTradedPrice(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quotes", r.URL.Path)
		w.Write([]byte(`{"Success":[{"ltp":112.35}]}`))
	})
	ltp, err := c.LastTradedPrice(context.Background(), 25700, broker.Put)
	require.NoError(t, err)
	assert.Equal(t, 112.35, ltp)
}

func TestOrderDetailStatusMapping(t *testing.T) {
	tests := []struct {
		wire string
		want broker.OrderStatus
	}{
		{"Executed", broker.StatusExecuted},
		{"Rejected", broker.StatusRejected},
		{"Cancelled", broker.StatusCancelled},
		{"Ordered", broker.StatusPending},
		{"Weird", broker.StatusUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.wire, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"Success":[{"status":"` + tc.wire + `"}]}`))
			})
			st, err := c.OrderDetail(context.Background(), "OID-1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, st)
		})
	}
}

func TestNextExpiryIsUpcomingThursday(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	// Friday 2026-08-28 -> Thursday 2026-09-03.
	c.nowFn = func() time.Time { return time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC) }
	assert.Equal(t, "2026-09-03T06:00:00.000Z", c.nextExpiry())
	// On a Thursday the contract rolls to the following week.
	c.nowFn = func() time.Time { return time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC) }
	assert.Equal(t, "2026-09-10T06:00:00.000Z", c.nextExpiry())
}

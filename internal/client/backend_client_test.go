package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stockwatch/alert-composer/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *BackendClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewBackendClient(srv.URL+"/", time.Second, zap.NewNop())
}

func TestListIndicatorsSendsToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/indicators/", r.URL.Path)
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[{"name":"RSI","display_name":"Relative Strength Index",
			"parameters":[{"name":"length","display_name":"Length","param_type":"int","required":true,"default_value":"14"}],
			"lines":[{"name":"rsi","display_name":"RSI"}]}]`)
	})

	indicators, err := c.ListIndicators(context.Background(), "secret")
	require.NoError(t, err)
	require.Len(t, indicators, 1)
	assert.Equal(t, "RSI", indicators[0].Name)
	assert.Equal(t, model.ParamTypeInt, indicators[0].Parameters[0].Type)
	assert.Equal(t, "14", indicators[0].Parameters[0].Default())
}

func TestCreateAlertUsesTypeEndpoint(t *testing.T) {
	cases := map[model.AlertType]string{
		model.AlertTypePrice:          "/api/price-target-alerts/",
		model.AlertTypePercentChange:  "/api/percentage-change-alerts/",
		model.AlertTypeIndicatorChain: "/api/indicator-chain-alerts/",
	}
	for alertType, path := range cases {
		t.Run(string(alertType), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, path, r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, string(alertType), body["alert_type"])

				w.WriteHeader(http.StatusCreated)
				_, _ = io.WriteString(w, `{"id": 17}`)
			})

			id, err := c.CreateAlert(context.Background(), "t", model.AlertPayload{
				Stock:     "AAPL",
				AlertType: alertType,
			})
			require.NoError(t, err)
			assert.Equal(t, 17, id)
		})
	}
}

func TestCreateAlertUnknownType(t *testing.T) {
	c := NewBackendClient("http://127.0.0.1:1", 0, zap.NewNop())
	_, err := c.CreateAlert(context.Background(), "t", model.AlertPayload{AlertType: "VOLUME"})
	assert.Error(t, err)
}

func TestValidationError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"target_price":["A valid number is required."]}`)
	})

	err := c.UpdateAlert(context.Background(), "t", 3, model.AlertPayload{AlertType: model.AlertTypePrice})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.JSONEq(t, `{"target_price":["A valid number is required."]}`, string(verr.Body))
}

func TestStatusErrors(t *testing.T) {
	status := http.StatusNotFound
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})

	_, err := c.GetAlert(context.Background(), "t", 9)
	assert.ErrorIs(t, err, ErrNotFound)

	status = http.StatusServiceUnavailable
	err = c.DeleteAlert(context.Background(), "t", 9)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestGetAlertDecodesDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/alerts/5/", r.URL.Path)
		_, _ = io.WriteString(w, `{
			"id": 5, "stock": "MSFT", "alert_type": "PERCENT_CHANGE", "is_active": false,
			"stock_details": {"symbol": "MSFT", "name": "Microsoft"},
			"percentage_change_alert": {"id": 2, "percentage_change": "12.50", "direction": "DOWN",
				"lookback_period": "CUSTOM", "custom_lookback_days": 3, "check_interval": 15}
		}`)
	})

	alert, err := c.GetAlert(context.Background(), "t", 5)
	require.NoError(t, err)
	assert.Equal(t, model.AlertTypePercentChange, alert.AlertType)
	assert.Equal(t, "Microsoft", alert.StockDetails.Name)
	require.NotNil(t, alert.PercentageChangeAlert)
	assert.Equal(t, "12.5", alert.PercentageChangeAlert.PercentageChange.String())
	assert.Equal(t, 3, *alert.PercentageChangeAlert.CustomLookbackDays)
	assert.Equal(t, 15, alert.CheckInterval())
}

func TestListStocksSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/stocks/", r.URL.Path)
		assert.Equal(t, "app le", r.URL.Query().Get("search"))
		_, _ = io.WriteString(w, `[{"symbol":"AAPL","name":"Apple Inc."}]`)
	})

	stocks, err := c.ListStocks(context.Background(), "", "app le")
	require.NoError(t, err)
	assert.Equal(t, []model.Stock{{Symbol: "AAPL", Name: "Apple Inc."}}, stocks)
}

func TestDeleteAcceptsEmptyBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	assert.NoError(t, c.DeleteAlert(context.Background(), "t", 1))
}

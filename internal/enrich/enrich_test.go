package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_FetchMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ipfs/QmTest", r.URL.Path)
		w.Write([]byte(`{
			"name": "Test Coin",
			"symbol": "TEST",
			"description": "a test",
			"image": "https://img.example/x.png",
			"twitter": "https://x.com/test",
			"website": "https://test.example"
		}`))
	}))
	defer server.Close()

	client := NewClient(Config{TimeoutMs: 1000})
	meta, err := client.FetchMetadata(context.Background(), server.URL+"/ipfs/QmTest")
	require.NoError(t, err)
	assert.Equal(t, "Test Coin", meta.Name)
	assert.Equal(t, "TEST", meta.Symbol)
	assert.Equal(t, "https://img.example/x.png", meta.Image)
	assert.Equal(t, "https://x.com/test", meta.Twitter)
	assert.Equal(t, int64(1), client.Stats().MetadataFetches)
}

func TestClient_FetchMetadata_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(Config{TimeoutMs: 1000})
	_, err := client.FetchMetadata(context.Background(), server.URL+"/missing")
	assert.Error(t, err)
	assert.Equal(t, int64(1), client.Stats().Failures)
}

func TestClient_FetchCreatorHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/user-created-coins/dev-wallet", r.URL.Path)
		w.Write([]byte(`[
			{"usd_market_cap": 10000, "complete": true},
			{"usd_market_cap": 20000, "complete": false},
			{"usd_market_cap": 30000, "complete": true},
			{"usd_market_cap": 40000, "complete": false}
		]`))
	}))
	defer server.Close()

	client := NewClient(Config{HistoryEndpoint: server.URL, TimeoutMs: 1000})
	history, err := client.FetchCreatorHistory(context.Background(), "dev-wallet")
	require.NoError(t, err)
	assert.Equal(t, 4, history.TokenCount)
	assert.InDelta(t, 25000.0, history.AverageMarketCap, 0.001)
	assert.InDelta(t, 50.0, history.MigrationPercentage, 0.001)
}

func TestClient_FetchSOLPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sol-price", r.URL.Path)
		w.Write([]byte(`{"solPrice": 151.25}`))
	}))
	defer server.Close()

	client := NewClient(Config{HistoryEndpoint: server.URL, TimeoutMs: 1000})
	price, err := client.FetchSOLPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 151.25, price)
}

func TestClient_FetchSOLPrice_Invalid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"solPrice": 0}`))
	}))
	defer server.Close()

	client := NewClient(Config{HistoryEndpoint: server.URL, TimeoutMs: 1000})
	_, err := client.FetchSOLPrice(context.Background())
	assert.Error(t, err)
}

func TestClient_FetchCreatorHistory_NoPriorLaunches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(Config{HistoryEndpoint: server.URL, TimeoutMs: 1000})
	history, err := client.FetchCreatorHistory(context.Background(), "fresh-wallet")
	require.NoError(t, err)
	assert.Equal(t, 0, history.TokenCount)
	assert.Zero(t, history.AverageMarketCap)
	assert.Zero(t, history.MigrationPercentage)
}

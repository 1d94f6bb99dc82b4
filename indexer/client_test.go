package indexer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0x1111111111111111111111111111111111111111"

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)

	_, err = NewClient(&Config{})
	assert.Error(t, err)

	c, err := NewClient(&Config{BaseURL: "https://api.blockvision.org/v2/monad"})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestClient_AccountTransactions(t *testing.T) {
	var gotPath, gotKey string
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":{"data":[{"hash":"0xabc"}],"nextPageCursor":"c2"}}`))
	}))
	defer server.Close()

	c, err := NewClient(&Config{BaseURL: server.URL, APIKey: "secret"})
	require.NoError(t, err)

	body, err := c.AccountTransactions(context.Background(), Query{
		Address: testAddress,
		Cursor:  "c1",
		Limit:   25,
	})
	require.NoError(t, err)

	assert.Equal(t, "/account/transactions", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, []string{testAddress}, gotQuery["address"])
	assert.Equal(t, []string{"c1"}, gotQuery["cursor"])
	assert.Equal(t, []string{"25"}, gotQuery["limit"])
	assert.JSONEq(t, `{"result":{"data":[{"hash":"0xabc"}],"nextPageCursor":"c2"}}`, string(body))
}

func TestClient_OmitsEmptyParams(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, err := NewClient(&Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = c.AccountTokens(context.Background(), Query{Address: testAddress})
	require.NoError(t, err)

	assert.NotContains(t, gotQuery, "cursor")
	assert.NotContains(t, gotQuery, "limit")
}

func TestClient_RequiresAddress(t *testing.T) {
	c, err := NewClient(&Config{BaseURL: "http://localhost:1"})
	require.NoError(t, err)

	_, err = c.AccountActivities(context.Background(), Query{})
	assert.Error(t, err)
}

func TestClient_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"invalid api key"}`))
	}))
	defer server.Close()

	c, err := NewClient(&Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = c.AccountTransactions(context.Background(), Query{Address: testAddress})
	require.Error(t, err)

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusForbidden, upstream.StatusCode)
	assert.Contains(t, upstream.Body, "invalid api key")
}

func TestClient_PathPerEndpoint(t *testing.T) {
	paths := make([]string, 0, 3)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, err := NewClient(&Config{BaseURL: server.URL})
	require.NoError(t, err)

	ctx := context.Background()
	q := Query{Address: testAddress}
	_, _ = c.AccountTransactions(ctx, q)
	_, _ = c.AccountTokens(ctx, q)
	_, _ = c.AccountActivities(ctx, q)

	assert.Equal(t, []string{
		"/account/transactions",
		"/account/tokens",
		"/account/activities",
	}, paths)
}

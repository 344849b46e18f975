package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL+"/", "secret", "circulars")
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("", "", "")
	assert.Error(t, err)

	c, err := NewClient("http://localhost:6333", "", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultCollection, c.Collection())
}

func TestClient_Search(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/collections/circulars/points/search", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("api-key"))

		var body struct {
			Vector      []float32 `json:"vector"`
			Limit       int       `json:"limit"`
			WithPayload bool      `json:"with_payload"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []float32{0.1, 0.2}, body.Vector)
		assert.Equal(t, 3, body.Limit)
		assert.True(t, body.WithPayload)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"result": [
				{"id": "6f1c0f8e-0000-5000-8000-000000000001", "score": 0.91, "payload": {"title": "KYC", "circular_number": "RBI/2024/1"}},
				{"id": 42, "score": 0.5, "payload": null}
			],
			"status": "ok",
			"time": 0.001
		}`))
	})

	hits, err := c.Search(context.Background(), []float32{0.1, 0.2}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "6f1c0f8e-0000-5000-8000-000000000001", hits[0].ID)
	assert.InDelta(t, 0.91, hits[0].Score, 1e-9)
	assert.Equal(t, "KYC", hits[0].String("title"))
	assert.Equal(t, "", hits[0].String("missing"))
	assert.Equal(t, "42", hits[1].ID)
	assert.NotNil(t, hits[1].Payload)
}

func TestClient_SearchEmptyVector(t *testing.T) {
	c, err := NewClient("http://localhost:6333", "", "")
	require.NoError(t, err)
	_, err = c.Search(context.Background(), nil, 5)
	assert.Error(t, err)
}

func TestClient_SearchAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":{"error":"Wrong input: Vector dimension error"}}`))
	})

	_, err := c.Search(context.Background(), []float32{1}, 1)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "Vector dimension error")
}

func TestClient_EnsureCollectionCreatesWhenMissing(t *testing.T) {
	var created bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/circulars", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Not found"}}`))
		case http.MethodPut:
			var body map[string]map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.EqualValues(t, 1536, body["vectors"]["size"])
			assert.Equal(t, DistanceCosine, body["vectors"]["distance"])
			created = true
			_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
		}
	})

	require.NoError(t, c.EnsureCollection(context.Background(), 1536))
	assert.True(t, created)
}

func TestClient_EnsureCollectionExisting(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"result":{"status":"green"},"status":"ok"}`))
	})
	require.NoError(t, c.EnsureCollection(context.Background(), 0))
}

func TestClient_Upsert(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/collections/circulars/points", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("wait"))

		var body struct {
			Points []Point `json:"points"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Points, 1) {
			assert.Equal(t, "p1", body.Points[0].ID)
			assert.Equal(t, "https://rbi.example/c/1", body.Points[0].Payload["link"])
		}
		_, _ = w.Write([]byte(`{"result":{"status":"completed"},"status":"ok"}`))
	})

	require.NoError(t, c.Upsert(context.Background(), nil))
	require.NoError(t, c.Upsert(context.Background(), []Point{{
		ID:      "p1",
		Vector:  []float32{0.5},
		Payload: map[string]any{"link": "https://rbi.example/c/1"},
	}}))
}

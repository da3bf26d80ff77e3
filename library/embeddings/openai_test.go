package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbedTextsSendsBatchedRequest(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody embeddingsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		resp := embeddingsResponse{}
		for range gotBody.Input {
			resp.Data = append(resp.Data, embeddingsDataItem{Embedding: []float64{0.1, 0.2, 0.3}})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder(server.URL, "text-embedding-3-small", "secret-key", server.Client())
	vectors, err := embedder.EmbedTexts(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)

	require.Equal(t, "Bearer secret-key", gotAuth)
	require.Equal(t, "text-embedding-3-small", gotBody.Model)
	require.Len(t, vectors, 2)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vectors[0].Slice())
}

func TestEmbedTextsRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	embedder := NewOpenAIEmbedder("http://localhost", "model", "key", nil)
	_, err := embedder.EmbedTexts(context.Background(), nil)
	require.Error(t, err)
}

func TestEmbedTextsSurfacesUpstreamError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder(server.URL, "model", "key", server.Client())
	_, err := embedder.EmbedTexts(context.Background(), []string{"alpha"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 502")
}

func TestEmbedTextsCountMismatchIsError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := embeddingsResponse{Data: []embeddingsDataItem{{Embedding: []float64{1}}}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder(server.URL, "model", "key", server.Client())
	_, err := embedder.EmbedTexts(context.Background(), []string{"alpha", "beta"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "mismatch")
}

func TestEmbedTextsMissingCredentials(t *testing.T) {
	t.Parallel()

	embedder := NewOpenAIEmbedder("http://localhost", "model", "", nil)
	_, err := embedder.EmbedTexts(context.Background(), []string{"alpha"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
}

package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Ahmed-Ali-Salman/CoachAI/internal/config"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/log"
)

func vector(dim int, fill float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestEmbedNoAPIKey(t *testing.T) {
	c := NewClient("", "embed-english-light-v3.0", 384, log.NewNop())

	_, err := c.Embed(context.Background(), []string{"hello"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Embed() without key = %v, want ErrProviderUnavailable", err)
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	c := NewClient("key", "embed-english-light-v3.0", 384, log.NewNop())

	vectors, err := c.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed(nil) failed: %v", err)
	}
	if vectors != nil {
		t.Errorf("Embed(nil) = %v, want nil without any API call", vectors)
	}
}

func TestEmbedV2(t *testing.T) {
	var gotPath string
	var gotReq embedV2Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		resp := embedV2Response{}
		resp.Embeddings.Float = [][]float32{vector(4, 0.1), vector(4, 0.2)}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient("key", "embed-english-light-v3.0", 4, log.NewNop(), WithBaseURL(srv.URL))

	vectors, err := c.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed() failed: %v", err)
	}

	if gotPath != "/v2/embed" {
		t.Errorf("request path = %q, want /v2/embed", gotPath)
	}
	if gotReq.Model != "embed-english-light-v3.0" {
		t.Errorf("request model = %q", gotReq.Model)
	}
	if len(gotReq.Texts) != 2 || gotReq.Texts[0] != "first" || gotReq.Texts[1] != "second" {
		t.Errorf("request texts = %v, want input order preserved", gotReq.Texts)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	// Order must follow the request, not arrival.
	if vectors[0][0] != 0.1 || vectors[1][0] != 0.2 {
		t.Errorf("vectors out of order: %v", vectors)
	}
}

func TestEmbedFallsBackToV1(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/v2/embed" {
			http.Error(w, `{"message":"unknown endpoint"}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(embedV1Response{
			Embeddings: [][]float32{vector(4, 0.5)},
		})
	}))
	defer srv.Close()

	c := NewClient("key", "embed-english-light-v3.0", 4, log.NewNop(), WithBaseURL(srv.URL))

	vectors, err := c.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("Embed() failed: %v", err)
	}
	if len(paths) != 2 || paths[0] != "/v2/embed" || paths[1] != "/v1/embed" {
		t.Errorf("paths = %v, want v2 then v1", paths)
	}
	if len(vectors) != 1 || vectors[0][0] != 0.5 {
		t.Errorf("vectors = %v", vectors)
	}
}

func TestEmbedDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := embedV2Response{}
		resp.Embeddings.Float = [][]float32{vector(1024, 0.1)}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient("key", "embed-english-v3.0", 384, log.NewNop(), WithBaseURL(srv.URL))

	_, err := c.Embed(context.Background(), []string{"hello"})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("Embed() = %v, want ErrDimensionMismatch", err)
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := embedV2Response{}
		resp.Embeddings.Float = [][]float32{vector(4, 0.1)}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient("key", "embed-english-light-v3.0", 4, log.NewNop(), WithBaseURL(srv.URL))

	_, err := c.Embed(context.Background(), []string{"one", "two"})
	if err == nil {
		t.Error("expected count mismatch error, got nil")
	}
}

func TestEmbedBothEndpointsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid api token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("bad-key", "embed-english-light-v3.0", 4, log.NewNop(), WithBaseURL(srv.URL))

	_, err := c.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatal("expected error when both endpoints fail")
	}
	if errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("transient failure mapped to config sentinel: %v", err)
	}
}

func TestNewClientResolvesLegacyAlias(t *testing.T) {
	c := NewClient("key", "small", 384, log.NewNop())
	if c.Model() != config.DefaultEmbedModel {
		t.Errorf("Model() = %q, want %q", c.Model(), config.DefaultEmbedModel)
	}
}

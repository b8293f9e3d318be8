package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerateCoverArt_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generate" {
			t.Errorf("path = %s, want /v1/generate", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("Authorization = %q, want Bearer key", got)
		}

		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["format"] != "image" {
			t.Errorf("format = %q, want image", req["format"])
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"","imageUrl":"https://cdn.example.com/cover.png"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "key")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := client.GenerateCoverArt(ctx, "Dawn", "ambient", "sunrise over water")
	if err != nil {
		t.Fatalf("GenerateCoverArt error: %v", err)
	}
	if res.ImageURL != "https://cdn.example.com/cover.png" {
		t.Fatalf("ImageURL = %q", res.ImageURL)
	}
}

func TestGenerateCoverArt_MissingImageURL(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"no image"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "key")

	_, err := client.GenerateCoverArt(context.Background(), "Dawn", "ambient", "")
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestRecommendPrice_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"{\"price\": 40, \"reasoning\": \"niche genre, solid plays\"}"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "key")

	res, err := client.RecommendPrice(context.Background(), "Dawn", "ambient", 1200)
	if err != nil {
		t.Fatalf("RecommendPrice error: %v", err)
	}
	if res.Price != 40 {
		t.Fatalf("Price = %d, want 40", res.Price)
	}
	if res.Reasoning == "" {
		t.Fatalf("reasoning is empty")
	}
}

func TestRecommendPrice_InvalidSchema(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"forty VSD sounds right"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "key")

	_, err := client.RecommendPrice(context.Background(), "Dawn", "ambient", 1200)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestLegalAnswer_BadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "key")

	_, err := client.LegalAnswer(context.Background(), "Can I sample this track?")
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestPartnerReply_NotConfigured(t *testing.T) {
	client := NewClient("", "")

	_, err := client.PartnerReply(context.Background(), "hello")
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}

package knowledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleEndpoints() []Endpoint {
	return []Endpoint{
		{Name: "Portfolio", Method: "get", Path: "api/v1/portfolio", Keywords: []string{"portfolio", "balance"}},
		{Name: "Wallets", Method: "GET", Path: "api/v1/wallet", Keywords: []string{"wallet", "address"}},
		{Name: "Orders", Method: "GET", Path: "api/v1/orders", Keywords: []string{"order"},
			Parameters: []Parameter{{Name: "order_id", Type: "string", Required: true, Description: "order id"}}},
	}
}

func TestStaticProviderRanksByKeywordHits(t *testing.T) {
	provider := NewStaticProvider(sampleEndpoints(), 2)

	matched := provider.Match("What is my wallet address and balance?")
	if len(matched) != 2 {
		t.Fatalf("expected two matches, got %d", len(matched))
	}
	if matched[0].Name != "Wallets" || matched[1].Name != "Portfolio" {
		t.Fatalf("unexpected ranking: %v, %v", matched[0].Name, matched[1].Name)
	}
}

func TestStaticProviderFallsBackToFullCatalogue(t *testing.T) {
	provider := NewStaticProvider(sampleEndpoints(), 1)
	docs, err := provider.Lookup(context.Background(), "tell me a joke")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	for _, path := range []string{"api/v1/portfolio", "api/v1/wallet", "api/v1/orders"} {
		if !strings.Contains(docs, "url: "+path) {
			t.Fatalf("expected %s in fallback docs:\n%s", path, docs)
		}
	}
	if !strings.Contains(docs, "request: GET") || !strings.Contains(docs, "order_id (string, required)") {
		t.Fatalf("unexpected rendering:\n%s", docs)
	}
}

func TestLoadStaticProviderFormats(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "endpoints.yaml")
	if err := os.WriteFile(yamlPath, []byte("endpoints:\n  - name: Portfolio\n    method: GET\n    path: api/v1/portfolio\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadStaticProvider(yamlPath, 3); err != nil {
		t.Fatalf("yaml catalogue: %v", err)
	}

	jsonPath := filepath.Join(dir, "endpoints.json")
	if err := os.WriteFile(jsonPath, []byte(`{"endpoints":[]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadStaticProvider(jsonPath, 3); err == nil {
		t.Fatalf("expected error for empty catalogue")
	}
}

func TestRepositoryCatalogueLoads(t *testing.T) {
	provider, err := LoadStaticProvider(filepath.Join("..", "..", "configs", "endpoints.yaml"), 5)
	if err != nil {
		t.Fatalf("LoadStaticProvider: %v", err)
	}
	matched := provider.Match("show me my portfolio")
	if len(matched) == 0 || matched[0].Path != "api/v1/portfolio" {
		t.Fatalf("unexpected match: %+v", matched)
	}
}

func TestPredictorProvider(t *testing.T) {
	cases := []struct {
		name     string
		response string
		want     string
	}{
		{name: "string body", response: `"GET api/v1/portfolio"`, want: "GET api/v1/portfolio"},
		{name: "object body", response: `{"output":"GET api/v1/wallet"}`, want: "GET api/v1/wallet"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got map[string]string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&got)
				_, _ = w.Write([]byte(tc.response))
			}))
			defer srv.Close()

			provider, err := NewPredictorProvider(srv.URL, time.Second)
			if err != nil {
				t.Fatalf("NewPredictorProvider: %v", err)
			}
			docs, err := provider.Lookup(context.Background(), "show my portfolio")
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if docs != tc.want {
				t.Fatalf("unexpected docs %q", docs)
			}
			if got["input"] != "show my portfolio" {
				t.Fatalf("unexpected request body: %v", got)
			}
		})
	}
}

func TestPredictorProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	provider, _ := NewPredictorProvider(srv.URL, time.Second)
	if _, err := provider.Lookup(context.Background(), "x"); err == nil {
		t.Fatalf("expected error on 502")
	}
	if _, err := NewPredictorProvider(" ", 0); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}

func TestPassthrough(t *testing.T) {
	docs, err := Passthrough.Lookup(context.Background(), "hello")
	if err != nil || docs != "hello" {
		t.Fatalf("unexpected passthrough result %q %v", docs, err)
	}
}

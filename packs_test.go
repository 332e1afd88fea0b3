package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
)

func TestPackStoreRoundTrip(t *testing.T) {
	store := newPackStore(time.Hour)

	id := store.put(testPack(3))
	if id == "" {
		t.Fatal("put should return a pack id")
	}

	pack, ok := store.get(id)
	if !ok {
		t.Fatal("stored pack should resolve")
	}
	if len(pack.Prompts) != 3 {
		t.Errorf("expected 3 prompts, got %d", len(pack.Prompts))
	}

	// get returns a copy; mutating it must not touch the store.
	pack.Prompts[0].Text = "mutated"
	again, _ := store.get(id)
	if again.Prompts[0].Text == "mutated" {
		t.Error("get must return an isolated copy")
	}

	if _, ok := store.get("no-such-id"); ok {
		t.Error("unknown id should not resolve")
	}
}

func TestPackStoreTTLEviction(t *testing.T) {
	store := newPackStore(50 * time.Millisecond)

	stale := store.put(testPack(3))
	time.Sleep(80 * time.Millisecond)

	// Eviction runs on the next write.
	fresh := store.put(testPack(3))

	if _, ok := store.get(stale); ok {
		t.Error("expired pack should have been evicted")
	}
	if _, ok := store.get(fresh); !ok {
		t.Error("fresh pack should survive")
	}
}

func TestPackStoreHardCap(t *testing.T) {
	store := newPackStore(time.Hour)

	first := store.put(testPack(3))
	for i := 0; i < maxPacks; i++ {
		store.put(testPack(3))
	}

	if _, ok := store.get(first); ok {
		t.Error("oldest pack should be dropped once the cap is hit")
	}
	store.mu.Lock()
	n := len(store.packs)
	store.mu.Unlock()
	if n > maxPacks {
		t.Errorf("store holds %d packs, cap is %d", n, maxPacks)
	}
}

func TestSanitizePromptText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Who is most likely to nap?", "Who is most likely to nap?"},
		{"  padded  ", "padded"},
		{"no <script>alert(1)</script> here", "no alert(1) here"},
		{"dangling <unclosed tag", "dangling"},
		{strings.Repeat("x", maxPromptLength+50), strings.Repeat("x", maxPromptLength)},
	}
	for _, tc := range cases {
		if got := sanitizePromptText(tc.in); got != tc.want {
			t.Errorf("sanitizePromptText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidatePack(t *testing.T) {
	good := testPack(3)
	if err := validatePack(&good); err != nil {
		t.Errorf("valid pack rejected: %v", err)
	}

	short := testPack(2)
	if err := validatePack(&short); err == nil {
		t.Error("pack below the prompt minimum should be rejected")
	}

	long := testPack(maxPrompts + 1)
	if err := validatePack(&long); err == nil {
		t.Error("pack above the prompt maximum should be rejected")
	}

	dupes := PromptPack{Title: "Dupes", Prompts: []Prompt{
		{ID: 1, Text: "a"}, {ID: 1, Text: "b"}, {ID: 2, Text: "c"},
	}}
	if err := validatePack(&dupes); err == nil {
		t.Error("duplicate prompt ids should be rejected")
	}

	untitled := testPack(3)
	untitled.Title = "  "
	if err := validatePack(&untitled); err != nil {
		t.Fatalf("blank title should be defaulted, got %v", err)
	}
	if untitled.Title != "Untitled" {
		t.Errorf("blank title should become Untitled, got %q", untitled.Title)
	}
}

func TestStaticGeneratorVibes(t *testing.T) {
	gen := staticGenerator{}
	for _, vibe := range validVibes {
		pack, err := gen.Generate(context.Background(), vibe, "", 5)
		if err != nil {
			t.Fatalf("vibe %q: %v", vibe, err)
		}
		if len(pack.Prompts) != 5 {
			t.Errorf("vibe %q: expected 5 prompts, got %d", vibe, len(pack.Prompts))
		}
	}

	if _, err := gen.Generate(context.Background(), "nonsense", "", 5); err == nil {
		t.Error("unknown vibe should error")
	}

	pack, err := gen.Generate(context.Background(), "custom", "Road Trip", 3)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(pack.Title, "Road Trip") {
		t.Errorf("custom theme should title the pack, got %q", pack.Title)
	}
}

func packTestRouter(cfg *Config, store *packStore) *httprouter.Router {
	generators := []PromptGenerator{staticGenerator{}}
	mux := httprouter.New()
	mux.GET("/providers", serveProviders(generators))
	mux.POST("/prompts/generate", serveGeneratePack(cfg, store, generators))
	mux.GET("/prompts/:packid", serveGetPack(store))
	mux.PUT("/prompts/:packid", serveUpdatePack(cfg, store))
	mux.DELETE("/prompts/:packid/prompt/:promptid", serveDeletePrompt(store))
	return mux
}

func TestGeneratePackHandler(t *testing.T) {
	cfg := testConfig()
	store := newPackStore(time.Hour)
	mux := packTestRouter(cfg, store)

	body := strings.NewReader(`{"vibe": "party", "num_prompts": 5}`)
	req := httptest.NewRequest(http.MethodPost, "/prompts/generate", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		PackID string     `json:"pack_id"`
		Pack   PromptPack `json:"pack"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PackID == "" || len(resp.Pack.Prompts) != 5 {
		t.Errorf("bad response: id %q, %d prompts", resp.PackID, len(resp.Pack.Prompts))
	}

	if _, ok := store.get(resp.PackID); !ok {
		t.Error("generated pack should be retrievable from the store")
	}
}

func TestGeneratePackHandlerValidation(t *testing.T) {
	cfg := testConfig()
	store := newPackStore(time.Hour)
	mux := packTestRouter(cfg, store)

	cases := []string{
		`{"vibe": "bogus"}`,
		fmt.Sprintf(`{"vibe": "party", "num_prompts": %d}`, maxPrompts+1),
		`{"vibe": "party", "num_prompts": 2}`,
		`{"vibe": "party", "provider": "no-such-provider"}`,
		`not json`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/prompts/generate", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestUpdatePackHandler(t *testing.T) {
	cfg := testConfig()
	store := newPackStore(time.Hour)
	mux := packTestRouter(cfg, store)

	id := store.put(testPack(3))

	update := `{"title": "Edited", "prompts": [
		{"id": 1, "text": "one"}, {"id": 2, "text": "two"},
		{"id": 3, "text": "three"}, {"id": 4, "text": "four"}
	]}`
	req := httptest.NewRequest(http.MethodPut, "/prompts/"+id, strings.NewReader(update))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	pack, _ := store.get(id)
	if pack.Title != "Edited" || len(pack.Prompts) != 4 {
		t.Errorf("update not applied: %q with %d prompts", pack.Title, len(pack.Prompts))
	}

	// An unknown pack id is a 404.
	req = httptest.NewRequest(http.MethodPut, "/prompts/missing", strings.NewReader(update))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown pack, got %d", rec.Code)
	}
}

func TestDeletePromptHandler(t *testing.T) {
	cfg := testConfig()
	store := newPackStore(time.Hour)
	mux := packTestRouter(cfg, store)

	id := store.put(testPack(4))

	req := httptest.NewRequest(http.MethodDelete, "/prompts/"+id+"/prompt/2", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	pack, _ := store.get(id)
	if len(pack.Prompts) != 3 {
		t.Fatalf("expected 3 prompts after delete, got %d", len(pack.Prompts))
	}
	for _, p := range pack.Prompts {
		if p.ID == 2 {
			t.Error("prompt 2 should be gone")
		}
	}

	// Deleting below the minimum is rejected.
	req = httptest.NewRequest(http.MethodDelete, "/prompts/"+id+"/prompt/1", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 when dropping below the minimum, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/prompts/"+id+"/prompt/99", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown prompt, got %d", rec.Code)
	}
}

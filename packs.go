package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

const (
	minPrompts      = 3
	maxPrompts      = 20
	maxPromptLength = 500
	maxPacks        = 100
)

// Prompt is one question in a pack.
type Prompt struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// PromptPack is an ordered prompt list. Packs are mutable only until a
// room starts playing from them; rooms take their own copy at creation.
type PromptPack struct {
	Title   string   `json:"title"`
	Prompts []Prompt `json:"prompts"`
}

func (p PromptPack) clone() PromptPack {
	out := PromptPack{Title: p.Title, Prompts: make([]Prompt, len(p.Prompts))}
	copy(out.Prompts, p.Prompts)
	return out
}

// PromptGenerator is the external collaborator that authors prompt lists.
// AI-backed providers implement this interface out of process; the
// built-in static provider keeps the server usable without one.
type PromptGenerator interface {
	Name() string
	Generate(ctx context.Context, vibe, customTheme string, numPrompts int) (PromptPack, error)
}

var validVibes = []string{"party", "spicy", "wholesome", "work", "custom"}

type staticGenerator struct{}

func (staticGenerator) Name() string { return "static" }

func (staticGenerator) Generate(_ context.Context, vibe, customTheme string, numPrompts int) (PromptPack, error) {
	seeds, ok := staticPrompts[vibe]
	if !ok {
		return PromptPack{}, fmt.Errorf("unknown vibe: %q", vibe)
	}

	title := "Who's Most Likely To: " + strings.ToUpper(vibe[:1]) + vibe[1:]
	if vibe == "custom" && customTheme != "" {
		title = "Who's Most Likely To: " + customTheme
	}

	pack := PromptPack{Title: title}
	for i := 0; i < numPrompts; i++ {
		pack.Prompts = append(pack.Prompts, Prompt{
			ID:   i + 1,
			Text: seeds[i%len(seeds)],
		})
	}
	return pack, nil
}

var staticPrompts = map[string][]string{
	"party": {
		"Who is most likely to fall asleep at the party?",
		"Who is most likely to start a dance-off?",
		"Who is most likely to lose their phone tonight?",
		"Who is most likely to befriend a total stranger?",
		"Who is most likely to suggest one more round?",
		"Who is most likely to forget how they got home?",
		"Who is most likely to karaoke without being asked?",
		"Who is most likely to order food for the whole table?",
		"Who is most likely to leave without saying goodbye?",
		"Who is most likely to take over the playlist?",
	},
	"spicy": {
		"Who is most likely to have a secret admirer?",
		"Who is most likely to double-text first?",
		"Who is most likely to stalk an ex online?",
		"Who is most likely to kiss and tell?",
		"Who is most likely to flirt with the bartender?",
		"Who is most likely to ghost someone?",
		"Who is most likely to slide into DMs?",
		"Who is most likely to date two people at once?",
	},
	"wholesome": {
		"Who is most likely to remember everyone's birthday?",
		"Who is most likely to adopt a stray animal?",
		"Who is most likely to cry at a movie?",
		"Who is most likely to bring snacks for everyone?",
		"Who is most likely to call their mom every day?",
		"Who is most likely to volunteer their weekend away?",
		"Who is most likely to write a thank-you note?",
		"Who is most likely to give the best hugs?",
	},
	"work": {
		"Who is most likely to reply-all by accident?",
		"Who is most likely to schedule a meeting that could be an email?",
		"Who is most likely to be on mute while talking?",
		"Who is most likely to work through lunch?",
		"Who is most likely to have 200 unread emails?",
		"Who is most likely to bring donuts on Friday?",
		"Who is most likely to become the boss?",
		"Who is most likely to nap during a call?",
	},
	"custom": {
		"Who is most likely to win this whole game?",
		"Who is most likely to vote for themselves?",
		"Who is most likely to overthink their vote?",
		"Who is most likely to argue with the results?",
		"Who is most likely to demand a rematch?",
		"Who is most likely to forget the question?",
	},
}

type storedPack struct {
	pack    PromptPack
	created time.Time
}

// packStore keeps finalized prompt packs in memory until a room consumes
// them. Nothing here survives a restart; that is deliberate.
type packStore struct {
	mu      sync.Mutex
	packs   map[string]storedPack
	timeout time.Duration
}

func newPackStore(timeout time.Duration) *packStore {
	return &packStore{
		packs:   make(map[string]storedPack),
		timeout: timeout,
	}
}

func (s *packStore) put(pack PromptPack) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictOldLocked()

	id := uuid.NewString()
	s.packs[id] = storedPack{pack: pack, created: time.Now()}
	return id
}

func (s *packStore) get(id string) (PromptPack, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.packs[id]
	if !ok {
		return PromptPack{}, false
	}
	return stored.pack.clone(), true
}

func (s *packStore) replace(id string, pack PromptPack) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.packs[id]
	if !ok {
		return false
	}
	stored.pack = pack
	s.packs[id] = stored
	return true
}

func (s *packStore) evictOldLocked() {
	cutoff := time.Now().Add(-s.timeout)
	for id, stored := range s.packs {
		if stored.created.Before(cutoff) {
			delete(s.packs, id)
		}
	}

	// Hard cap: drop oldest packs first.
	for len(s.packs) >= maxPacks {
		oldestID := ""
		var oldest time.Time
		for id, stored := range s.packs {
			if oldestID == "" || stored.created.Before(oldest) {
				oldestID = id
				oldest = stored.created
			}
		}
		delete(s.packs, oldestID)
	}
}

func sanitizePromptText(text string) string {
	// Strip anything tag-shaped; prompts are displayed verbatim.
	for {
		open := strings.Index(text, "<")
		if open < 0 {
			break
		}
		closing := strings.Index(text[open:], ">")
		if closing < 0 {
			text = text[:open]
			break
		}
		text = text[:open] + text[open+closing+1:]
	}
	text = strings.TrimSpace(text)
	if len(text) > maxPromptLength {
		text = text[:maxPromptLength]
	}
	return text
}

func validatePack(pack *PromptPack) error {
	pack.Title = sanitizePromptText(pack.Title)
	if pack.Title == "" {
		pack.Title = "Untitled"
	}
	if len(pack.Prompts) < minPrompts {
		return fmt.Errorf("a pack needs at least %d prompts", minPrompts)
	}
	if len(pack.Prompts) > maxPrompts {
		return fmt.Errorf("a pack may have at most %d prompts", maxPrompts)
	}
	seen := make(map[int]bool, len(pack.Prompts))
	for i := range pack.Prompts {
		pack.Prompts[i].Text = sanitizePromptText(pack.Prompts[i].Text)
		if pack.Prompts[i].Text == "" {
			return fmt.Errorf("prompt %d has no text", pack.Prompts[i].ID)
		}
		if seen[pack.Prompts[i].ID] {
			return fmt.Errorf("duplicate prompt id %d", pack.Prompts[i].ID)
		}
		seen[pack.Prompts[i].ID] = true
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}

func serveProviders(generators []PromptGenerator) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		names := make([]string, 0, len(generators))
		for _, g := range generators {
			names = append(names, g.Name())
		}
		writeJSON(w, http.StatusOK, map[string][]string{"providers": names})
	}
}

type generateRequest struct {
	Vibe        string `json:"vibe"`
	NumPrompts  int    `json:"num_prompts"`
	Provider    string `json:"provider"`
	CustomTheme string `json:"custom_theme"`
}

func serveGeneratePack(cfg *Config, store *packStore, generators []PromptGenerator) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req generateRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		req.Vibe = strings.ToLower(strings.TrimSpace(req.Vibe))
		if req.Vibe == "" {
			req.Vibe = "party"
		}
		valid := false
		for _, v := range validVibes {
			if req.Vibe == v {
				valid = true
				break
			}
		}
		if !valid {
			writeJSONError(w, http.StatusBadRequest, "vibe must be one of: "+strings.Join(validVibes, ", "))
			return
		}

		if req.NumPrompts == 0 {
			req.NumPrompts = 10
		}
		if req.NumPrompts < minPrompts || req.NumPrompts > maxPrompts {
			writeJSONError(w, http.StatusBadRequest,
				fmt.Sprintf("number of prompts must be %d-%d", minPrompts, maxPrompts))
			return
		}

		req.CustomTheme = sanitizePromptText(req.CustomTheme)

		var gen PromptGenerator
		for _, g := range generators {
			if req.Provider == "" || g.Name() == req.Provider {
				gen = g
				break
			}
		}
		if gen == nil {
			writeJSONError(w, http.StatusBadRequest, "unknown provider: "+req.Provider)
			return
		}

		pack, err := gen.Generate(r.Context(), req.Vibe, req.CustomTheme, req.NumPrompts)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to generate prompts")
			return
		}
		if err := validatePack(&pack); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}

		id := store.put(pack)
		logf(cfg, "PACKS: Created pack %s (%q, %d prompts)", id, pack.Title, len(pack.Prompts))
		writeJSON(w, http.StatusOK, map[string]any{"pack_id": id, "pack": pack})
	}
}

func serveGetPack(store *packStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		pack, ok := store.get(p.ByName("packid"))
		if !ok {
			writeJSONError(w, http.StatusNotFound, "prompt pack not found")
			return
		}
		writeJSON(w, http.StatusOK, pack)
	}
}

func serveUpdatePack(cfg *Config, store *packStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		id := p.ByName("packid")

		var pack PromptPack
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<18)).Decode(&pack); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validatePack(&pack); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !store.replace(id, pack) {
			writeJSONError(w, http.StatusNotFound, "prompt pack not found")
			return
		}

		logf(cfg, "PACKS: Updated pack %s (%q, %d prompts)", id, pack.Title, len(pack.Prompts))
		writeJSON(w, http.StatusOK, map[string]any{"pack_id": id, "pack": pack})
	}
}

func serveDeletePrompt(store *packStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		id := p.ByName("packid")
		promptID, err := strconv.Atoi(p.ByName("promptid"))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid prompt id")
			return
		}

		pack, ok := store.get(id)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "prompt pack not found")
			return
		}

		kept := pack.Prompts[:0]
		for _, prompt := range pack.Prompts {
			if prompt.ID != promptID {
				kept = append(kept, prompt)
			}
		}
		if len(kept) == len(pack.Prompts) {
			writeJSONError(w, http.StatusNotFound, "prompt not found")
			return
		}
		if len(kept) < minPrompts {
			writeJSONError(w, http.StatusBadRequest,
				fmt.Sprintf("must keep at least %d prompts", minPrompts))
			return
		}

		pack.Prompts = kept
		store.replace(id, pack)
		writeJSON(w, http.StatusOK, map[string]any{"pack_id": id, "pack": pack})
	}
}

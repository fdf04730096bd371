package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/readwell/readalong/internal/attempt"
	"github.com/readwell/readalong/internal/level"
	"github.com/readwell/readalong/internal/score"
	"github.com/readwell/readalong/internal/server"
	"github.com/readwell/readalong/internal/session"
	"github.com/readwell/readalong/internal/store"
	"github.com/readwell/readalong/internal/store/memory"
	"github.com/readwell/readalong/pkg/provider/stt"
	"github.com/readwell/readalong/pkg/provider/stt/mock"
)

type testEnv struct {
	srv      *httptest.Server
	store    *memory.Store
	provider *mock.Provider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := memory.New()
	provider := &mock.Provider{}
	engine := attempt.NewEngine(st, score.Completion{}, level.NewEvaluator())

	s, err := server.New(server.Config{
		Store:    st,
		Engine:   engine,
		Provider: provider,
		Stream: stt.StreamConfig{
			SampleRate:     24000,
			Channels:       1,
			Language:       "en",
			Prompt:         "A child reading aloud.",
			NoiseReduction: "near_field",
		},
		// A permissive governor and long tickers keep wall-clock timing out
		// of the tests.
		Governor: func() *session.Governor {
			return session.NewGovernor(1_000_000, 100)
		},
		CommitInterval:    time.Hour,
		KeepAliveInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: st, provider: provider}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(e.srv.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (e *testEnv) seedStoryAndAttempt(t *testing.T, text string) (store.Story, store.Attempt) {
	t.Helper()
	ctx := context.Background()
	story, err := e.store.SaveStory(ctx, store.Story{Title: "test", Text: text, Level: 1})
	if err != nil {
		t.Fatalf("SaveStory: %v", err)
	}
	a, err := e.store.CreateAttempt(ctx, "reader-1", story.ID)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	return story, a
}

func TestStoryEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/stories", map[string]any{
		"title": "The Cat",
		"text":  "the cat sat on the mat",
		"level": 1,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var story store.Story
	decodeBody(t, resp, &story)
	if story.ID == "" || story.WordCount != 6 {
		t.Errorf("story = %+v, want generated id and 6 words", story)
	}

	resp = env.get(t, "/api/stories/"+story.ID)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.get(t, "/api/stories/missing")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing story status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.postJSON(t, "/api/stories", map[string]any{"title": "empty"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty text status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.postJSON(t, "/api/stories", map[string]any{"text": "hi", "level": 9})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad level status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAttemptLifecycleEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	story, _ := env.seedStoryAndAttempt(t, "one two three")

	resp := env.postJSON(t, "/api/attempts/start", map[string]string{
		"reader_id": "reader-2",
		"story_id":  story.ID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d, want 201", resp.StatusCode)
	}
	var a store.Attempt
	decodeBody(t, resp, &a)
	if a.ID == "" || a.ReaderID != "reader-2" {
		t.Errorf("attempt = %+v, want id and reader-2", a)
	}

	resp = env.postJSON(t, fmt.Sprintf("/api/attempts/%s/finish", a.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("finish status = %d, want 200", resp.StatusCode)
	}
	var finish struct {
		Score struct {
			Total    float64 `json:"total"`
			Strategy string  `json:"strategy"`
		} `json:"score"`
		Level struct {
			CurrentLevel int `json:"current_level"`
		} `json:"level"`
	}
	decodeBody(t, resp, &finish)
	if finish.Score.Strategy != "completion" {
		t.Errorf("strategy = %q, want completion", finish.Score.Strategy)
	}
	if finish.Level.CurrentLevel != 1 {
		t.Errorf("level = %d, want 1", finish.Level.CurrentLevel)
	}

	resp = env.postJSON(t, "/api/attempts/start", map[string]string{
		"reader_id": "reader-2",
		"story_id":  "missing",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing story start status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.postJSON(t, "/api/attempts/start", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty start status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPronounceRecordsLookup(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, a := env.seedStoryAndAttempt(t, "the brave knight rode")

	resp := env.postJSON(t, fmt.Sprintf("/api/attempts/%s/pronounce", a.ID), map[string]string{
		"word": "knight",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pronounce status = %d, want 200", resp.StatusCode)
	}
	var help struct {
		Word   string `json:"word"`
		Tricky bool   `json:"tricky"`
		Hint   string `json:"hint"`
	}
	decodeBody(t, resp, &help)
	if !help.Tricky || !strings.Contains(help.Hint, "silent") {
		t.Errorf("help = %+v, want tricky with a silent-letter hint", help)
	}

	pw, err := env.store.ProblemWord(context.Background(), "reader-1", "knight")
	if err != nil {
		t.Fatalf("ProblemWord: %v", err)
	}
	if pw.TotalLookups != 1 {
		t.Errorf("lookups = %d, want 1", pw.TotalLookups)
	}

	got, err := env.store.Attempt(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if got.Interventions != 0 {
		t.Errorf("interventions = %d, want 0 for a lookup", got.Interventions)
	}
}

func TestHintCountsIntervention(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, a := env.seedStoryAndAttempt(t, "the brave knight rode")

	resp := env.postJSON(t, fmt.Sprintf("/api/attempts/%s/hint", a.ID), map[string]string{
		"word": "knight",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("hint status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	got, err := env.store.Attempt(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if got.Interventions != 1 {
		t.Errorf("interventions = %d, want 1 after a hint", got.Interventions)
	}
}

func TestReaderProgressEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.get(t, "/api/readers/fresh/problem-words")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("problem words status = %d, want 200", resp.StatusCode)
	}
	var words struct {
		Words []store.ProblemWord `json:"words"`
	}
	decodeBody(t, resp, &words)
	if words.Words == nil || len(words.Words) != 0 {
		t.Errorf("words = %v, want empty list", words.Words)
	}

	resp = env.get(t, "/api/readers/fresh/level")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("level status = %d, want 200", resp.StatusCode)
	}
	var lvl struct {
		CurrentLevel int `json:"current_level"`
		MinWords     int `json:"min_words"`
		MaxWords     int `json:"max_words"`
	}
	decodeBody(t, resp, &lvl)
	if lvl.CurrentLevel != 1 || lvl.MinWords != 100 || lvl.MaxWords != 200 {
		t.Errorf("level = %+v, want level 1 with range 100-200", lvl)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp := env.get(t, path)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestSessionRejectsUnknownAttempt(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/attempts/missing"
	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err == nil {
		conn.CloseNow()
		t.Fatal("dial succeeded for an unknown attempt")
	}
	if resp != nil && resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestLiveSessionOverWebSocket(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, a := env.seedStoryAndAttempt(t, "the cat sat")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/attempts/" + a.ID
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	if err := conn.Write(ctx, websocket.MessageBinary, []byte("audio-chunk")); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	stream := waitForStream(t, env.provider)

	// The recognition hints configured on the server must reach the
	// provider when the stream opens.
	if stream.Config.Prompt != "A child reading aloud." || stream.Config.NoiseReduction != "near_field" {
		t.Errorf("stream config = %+v, want the configured prompt and noise profile", stream.Config)
	}

	stream.EmitTranscript("the cat sat")

	var alignment struct {
		Type         string `json:"type"`
		CurrentIndex int    `json:"current_index"`
		TotalWords   int    `json:"total_words"`
	}
	if err := wsjson.Read(ctx, conn, &alignment); err != nil {
		t.Fatalf("read alignment: %v", err)
	}
	if alignment.Type != "alignment" || alignment.CurrentIndex != 3 || alignment.TotalWords != 3 {
		t.Errorf("alignment = %+v, want full advance to 3/3", alignment)
	}

	var complete struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := wsjson.Read(ctx, conn, &complete); err != nil {
		t.Fatalf("read complete: %v", err)
	}
	if complete.Type != "complete" {
		t.Errorf("message type = %q, want complete", complete.Type)
	}

	// The session flushed its events to the store on teardown.
	deadline := time.Now().Add(5 * time.Second)
	for {
		events, err := env.store.Events(context.Background(), a.ID)
		if err == nil && len(events) == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("events never flushed; have %d", len(events))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitForStream(t *testing.T, p *mock.Provider) *mock.Stream {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if streams := p.Streams(); len(streams) > 0 {
			return streams[0]
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("provider stream never opened")
	return nil
}

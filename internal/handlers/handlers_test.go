package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kindcoach/kindcoach/internal/analysis"
	"github.com/kindcoach/kindcoach/internal/auth"
	"github.com/kindcoach/kindcoach/internal/queue"
	"github.com/kindcoach/kindcoach/internal/storage"
	"github.com/kindcoach/kindcoach/internal/types"
)

// asUser injects the username the auth middleware would set.
func asUser(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("username", name)
		return c.Next()
	}
}

func makeRecord(t *testing.T, id, username string) *types.ConversationRecord {
	t.Helper()

	utterances := []analysis.Utterance{
		{SpeakerLabel: "A", Text: "Shall we try the puzzle again?", StartMs: 0, EndMs: 2600, WordCount: 6},
		{SpeakerLabel: "B", Text: "Yes!", StartMs: 2600, EndMs: 3000, WordCount: 1},
	}
	report, err := analysis.Classify(utterances)
	if err != nil {
		t.Fatal(err)
	}
	tr := &types.TranscriptionResult{
		Transcript:      "Shall we try the puzzle again? Yes!",
		AudioDurationMs: 3000,
		WordCount:       7,
		Utterances:      utterances,
		ProcessedAt:     time.Now(),
	}
	meta := types.Metadata{ChildName: "Mina", ChildAge: "4", SituationType: "free play"}
	return types.NewConversationRecord(id, username, meta, tr, report)
}

func storedRecord(t *testing.T, s *storage.Store, id, username string) *types.ConversationRecord {
	t.Helper()
	rec := makeRecord(t, id, username)
	if err := s.Create(rec); err != nil {
		t.Fatal(err)
	}
	return rec
}

func multipartUpload(t *testing.T, fields map[string]string, filename string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte("fake audio bytes"))
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestUploadHandler_Validation(t *testing.T) {
	t.Parallel()

	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	wp := queue.NewWorkerPool(1, t.TempDir(), nil, store, nil, nil)
	h := NewUploadHandler(wp, t.TempDir(), 100)

	app := fiber.New()
	app.Post("/api/upload", asUser("admin"), h.Handle)

	meta := map[string]string{
		"child_name":     "Mina",
		"child_age":      "4",
		"situation_type": "free play",
	}

	tests := []struct {
		name     string
		fields   map[string]string
		filename string
		wantCode string
	}{
		{"missing file", meta, "", "ERR_NO_FILE"},
		{"missing metadata", map[string]string{"child_name": "Mina"}, "rec.wav", "ERR_MISSING_METADATA"},
		{"bad format", meta, "rec.pdf", "ERR_INVALID_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, contentType := multipartUpload(t, tt.fields, tt.filename)
			req := httptest.NewRequest("POST", "/api/upload", buf)
			req.Header.Set("Content-Type", contentType)

			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != 400 {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if body := decodeBody(t, resp); body["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", body["code"], tt.wantCode)
			}
		})
	}
}

func TestUploadHandler_Enqueues(t *testing.T) {
	t.Parallel()

	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	// Pool never started: the job stays queued where we can inspect it.
	wp := queue.NewWorkerPool(1, t.TempDir(), nil, store, nil, nil)
	h := NewUploadHandler(wp, t.TempDir(), 100)

	app := fiber.New()
	app.Post("/api/upload", asUser("admin"), h.Handle)

	buf, contentType := multipartUpload(t, map[string]string{
		"child_name":       "Mina",
		"child_age":        "4",
		"situation_type":   "snack time",
		"analysis_purpose": "language, social",
	}, "rec.m4a")
	req := httptest.NewRequest("POST", "/api/upload", buf)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	jobID, _ := body["job_id"].(string)
	if jobID == "" {
		t.Fatal("response carries no job_id")
	}

	job, ok := wp.Job(jobID)
	if !ok {
		t.Fatal("job not registered in pool")
	}
	if job.Username != "admin" || job.Metadata.ChildName != "Mina" {
		t.Errorf("job = %+v", job)
	}
	if len(job.Metadata.AnalysisPurpose) != 2 {
		t.Errorf("analysis purpose = %v, want 2 entries", job.Metadata.AnalysisPurpose)
	}
}

func TestConversationHandler_CRUD(t *testing.T) {
	t.Parallel()

	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	storedRecord(t, store, "conv_1", "admin")
	h := NewConversationHandler(store, nil)

	app := fiber.New()
	api := app.Group("/api", asUser("admin"))
	api.Get("/conversations", h.List)
	api.Get("/conversations/:id", h.Get)
	api.Delete("/conversations/:id", h.Delete)
	api.Get("/conversations/:id/export", h.Export)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/conversations", nil))
	if err != nil {
		t.Fatal(err)
	}
	if body := decodeBody(t, resp); body["total"] != float64(1) {
		t.Errorf("total = %v, want 1", body["total"])
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/api/conversations/conv_1", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = app.Test(httptest.NewRequest("GET", "/api/conversations/conv_1/export?format=text", nil))
	if err != nil {
		t.Fatal(err)
	}
	text, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(text), "Mina") {
		t.Errorf("text export missing child name:\n%s", text)
	}

	resp, err = app.Test(httptest.NewRequest("DELETE", "/api/conversations/conv_1", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = app.Test(httptest.NewRequest("GET", "/api/conversations/conv_1", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("get after delete = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestConversationHandler_ListServedFromIndex(t *testing.T) {
	t.Parallel()

	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	index, err := storage.NewIndex(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer index.Close()

	// Indexed but not on disk: only the index path can return it.
	if err := index.Save(makeRecord(t, "conv_ix", "admin")); err != nil {
		t.Fatal(err)
	}

	h := NewConversationHandler(store, index)
	app := fiber.New()
	app.Get("/api/conversations", asUser("admin"), h.List)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/conversations", nil))
	if err != nil {
		t.Fatal(err)
	}
	if body := decodeBody(t, resp); body["total"] != float64(1) {
		t.Errorf("plain listing total = %v, want 1 (from index)", body["total"])
	}

	// Keyword search scans the JSON records, which are empty here.
	resp, err = app.Test(httptest.NewRequest("GET", "/api/conversations?q=puzzle", nil))
	if err != nil {
		t.Fatal(err)
	}
	if body := decodeBody(t, resp); body["total"] != float64(0) {
		t.Errorf("search total = %v, want 0 (record scan)", body["total"])
	}
}

func TestPushUpdates_StopsOnTerminalStatus(t *testing.T) {
	t.Parallel()

	updates := make(chan queue.Job, 2)
	updates <- queue.Job{ID: "j1", Status: types.StatusProcessing}
	updates <- queue.Job{ID: "j1", Status: types.StatusCompleted}

	w := &recordingWriter{}
	finished := make(chan struct{})
	go func() {
		pushUpdates(w, updates, make(chan struct{}))
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("push loop did not stop at terminal status")
	}
	if got := len(w.wrote); got != 2 {
		t.Errorf("writes = %d, want 2", got)
	}
}

func TestPushUpdates_StopsOnDisconnect(t *testing.T) {
	t.Parallel()

	// No updates ever arrive; closing done (the read pump noticing the peer
	// went away) must still end the loop.
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		pushUpdates(&recordingWriter{}, make(chan queue.Job), done)
		close(finished)
	}()

	close(done)
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("push loop did not stop on client disconnect")
	}
}

func TestPushUpdates_StopsOnWriteError(t *testing.T) {
	t.Parallel()

	updates := make(chan queue.Job, 1)
	updates <- queue.Job{ID: "j1", Status: types.StatusProcessing}

	w := &recordingWriter{err: fmt.Errorf("broken pipe")}
	finished := make(chan struct{})
	go func() {
		pushUpdates(w, updates, make(chan struct{}))
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("push loop did not stop on write error")
	}
}

type recordingWriter struct {
	wrote []interface{}
	err   error
}

func (w *recordingWriter) WriteJSON(v interface{}) error {
	if w.err != nil {
		return w.err
	}
	w.wrote = append(w.wrote, v)
	return nil
}

type fakeAnalyzer struct {
	calls int
	err   error
}

func (f *fakeAnalyzer) Run(ctx context.Context, kind string, rec *types.ConversationRecord) (*types.AnalysisResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &types.AnalysisResult{
		Kind:        kind,
		Content:     "Warm, responsive questioning.",
		Model:       "gpt-4o-mini",
		ProcessedAt: time.Now(),
	}, nil
}

func (f *fakeAnalyzer) SummaryReport(ctx context.Context, rec *types.ConversationRecord) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "Overall a balanced, warm interaction.", nil
}

func TestAnalysisHandler_RunAndCache(t *testing.T) {
	t.Parallel()

	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	storedRecord(t, store, "conv_1", "admin")

	fake := &fakeAnalyzer{}
	h := NewAnalysisHandler(store, fake)

	app := fiber.New()
	api := app.Group("/api", asUser("admin"))
	api.Post("/conversations/:id/analyses/:kind", h.Run)
	api.Get("/conversations/:id/analyses/:kind", h.Get)
	api.Post("/conversations/:id/report", h.Report)

	url := "/api/conversations/conv_1/analyses/" + types.AnalysisQuickFeedback
	resp, err := app.Test(httptest.NewRequest("POST", url, nil))
	if err != nil {
		t.Fatal(err)
	}
	body := decodeBody(t, resp)
	if body["cached"] != false {
		t.Errorf("first run cached = %v, want false", body["cached"])
	}
	if fake.calls != 1 {
		t.Fatalf("analyzer calls = %d, want 1", fake.calls)
	}

	// Second run serves the stored slot without touching the analyzer.
	resp, err = app.Test(httptest.NewRequest("POST", url, nil))
	if err != nil {
		t.Fatal(err)
	}
	if body := decodeBody(t, resp); body["cached"] != true {
		t.Errorf("second run cached = %v, want true", body["cached"])
	}
	if fake.calls != 1 {
		t.Errorf("analyzer calls after cache hit = %d, want 1", fake.calls)
	}

	// refresh=true forces a re-run.
	resp, err = app.Test(httptest.NewRequest("POST", url+"?refresh=true", nil))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if fake.calls != 2 {
		t.Errorf("analyzer calls after refresh = %d, want 2", fake.calls)
	}

	resp, err = app.Test(httptest.NewRequest("GET", url, nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("cached get = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = app.Test(httptest.NewRequest("POST", "/api/conversations/conv_1/analyses/nonsense", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 400 {
		t.Errorf("unknown kind = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = app.Test(httptest.NewRequest("POST", "/api/conversations/conv_1/report", nil))
	if err != nil {
		t.Fatal(err)
	}
	if body := decodeBody(t, resp); body["report"] == "" {
		t.Errorf("report body = %v", body)
	}
}

func TestAuthHandler_LoginFlow(t *testing.T) {
	t.Parallel()

	mgr, err := auth.NewManager("teacher_kim", "hunter2", 30*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	h := NewAuthHandler(mgr)

	app := fiber.New()
	app.Post("/api/login", h.Login)
	app.Post("/api/logout", mgr.Middleware(), h.Logout)
	app.Get("/api/me", mgr.Middleware(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"username": c.Locals("username")})
	})

	login := func(password string) *http.Response {
		payload := fmt.Sprintf(`{"username":"teacher_kim","password":"%s"}`, password)
		req := httptest.NewRequest("POST", "/api/login", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}

	if resp := login("wrong"); resp.StatusCode != 401 {
		t.Fatalf("bad login = %d, want 401", resp.StatusCode)
	}

	resp := login("hunter2")
	if resp.StatusCode != 200 {
		t.Fatalf("login = %d, want 200", resp.StatusCode)
	}
	token, _ := decodeBody(t, resp)["token"].(string)
	if token == "" {
		t.Fatal("login response carries no token")
	}

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if body := decodeBody(t, resp); body["username"] != "teacher_kim" {
		t.Errorf("me = %v", body)
	}

	req = httptest.NewRequest("GET", "/api/me", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 401 {
		t.Errorf("unauthenticated me = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	req = httptest.NewRequest("POST", "/api/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("logout = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	req = httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 401 {
		t.Errorf("me after logout = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

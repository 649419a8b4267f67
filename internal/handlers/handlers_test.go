package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"medtrack/internal/apperr"
	"medtrack/internal/logger"
	"medtrack/internal/reminder"
	"medtrack/internal/storage"
	"medtrack/internal/timer"
	"medtrack/internal/tracker"
)

type quietAnnouncer struct{ said []string }

func (q *quietAnnouncer) Say(_ context.Context, text string) error {
	q.said = append(q.said, text)
	return nil
}

func (q *quietAnnouncer) Notify(context.Context, string, string) error { return nil }

type failingTimer struct{}

func (failingTimer) Register(context.Context, timer.Registration) error {
	return apperr.NewTimerServiceError(errors.New("unreachable"), "register")
}

func (failingTimer) Taken(context.Context, string, timer.TakenReport) error {
	return apperr.NewTimerServiceError(errors.New("unreachable"), "taken")
}

func setupRouter(t *testing.T, tm timer.Service) (*mux.Router, *tracker.Service) {
	t.Helper()
	store := reminder.NewStore(storage.NewMemoryStorage(), "", logger.Discard())
	svc := tracker.New(store, tm, &quietAnnouncer{}, logger.Discard())
	api := NewAPI(svc, logger.Discard())
	api.now = func() time.Time { return time.Date(2025, 3, 1, 8, 45, 0, 0, time.Local) }
	return api.Router(""), svc
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const createBody = `{"medicineName":"Aspirin","time":"09:00","timings":["After Breakfast"],"stock":10,"pillsPerDose":2,"guardianPhone":"15551234567"}`

func createReminder(t *testing.T, router http.Handler) map[string]any {
	t.Helper()
	w := do(router, "POST", "/reminders", createBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return got
}

func TestCreateReminderHandler(t *testing.T) {
	router, _ := setupRouter(t, timer.Disabled{})
	got := createReminder(t, router)

	if got["id"] == "" || got["medicineName"] != "Aspirin" {
		t.Errorf("unexpected reminder: %+v", got)
	}
	if got["guardianPhone"] != "+15551234567" {
		t.Errorf("guardian phone not normalised: %v", got["guardianPhone"])
	}
	if got["status"] != "upcoming" {
		t.Errorf("expected status upcoming at 08:45, got %v", got["status"])
	}
	if got["lowStock"] != true {
		t.Errorf("expected lowStock for 10 pills at 2 per dose")
	}
	if got["displayTime"] != "9:00 AM" {
		t.Errorf("unexpected displayTime %v", got["displayTime"])
	}
}

func TestCreateReminderValidation(t *testing.T) {
	router, _ := setupRouter(t, timer.Disabled{})
	bodies := []string{
		`not json`,
		`{"time":"09:00","timings":["After Breakfast"],"stock":10,"pillsPerDose":2}`,
		`{"medicineName":"A","time":"9am","timings":["After Breakfast"],"stock":10,"pillsPerDose":2}`,
		`{"medicineName":"A","time":"09:00","timings":[],"stock":10,"pillsPerDose":2}`,
		`{"medicineName":"A","time":"09:00","timings":["Midnight"],"stock":10,"pillsPerDose":2}`,
		`{"medicineName":"A","time":"09:00","timings":["After Lunch"],"stock":-1,"pillsPerDose":2}`,
		`{"medicineName":"A","time":"09:00","timings":["After Lunch"],"stock":1,"pillsPerDose":0}`,
		`{"medicineName":"A","time":"09:00","timings":["After Lunch"],"stock":1,"pillsPerDose":1,"alternativeMedicines":[{"stock":3}]}`,
	}
	for _, body := range bodies {
		w := do(router, "POST", "/reminders", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, w.Code)
			continue
		}
		var resp errorResponse
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.Error != "VALIDATION" {
			t.Errorf("body %s: expected VALIDATION, got %+v", body, resp)
		}
	}
}

func TestCreateReminderTimerFailure(t *testing.T) {
	router, svc := setupRouter(t, failingTimer{})
	w := do(router, "POST", "/reminders", createBody)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", w.Code)
	}
	if len(svc.List()) != 0 {
		t.Errorf("reminder stored despite timer failure")
	}
}

type failingBackend struct {
	*storage.MemoryStorage
}

func (failingBackend) Write(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestCreateReminderPersistenceFailure(t *testing.T) {
	store := reminder.NewStore(failingBackend{storage.NewMemoryStorage()}, "", logger.Discard())
	svc := tracker.New(store, timer.Disabled{}, &quietAnnouncer{}, logger.Discard())
	router := NewAPI(svc, logger.Discard()).Router("")

	w := do(router, "POST", "/reminders", createBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got["id"] == "" || got["warning"] == nil || got["warning"] == "" {
		t.Errorf("expected reminder with a persistence warning, got %+v", got)
	}
	if len(svc.List()) != 1 {
		t.Errorf("expected the reminder to stay in memory, got %d", len(svc.List()))
	}
}

func TestListAndGetReminder(t *testing.T) {
	router, _ := setupRouter(t, timer.Disabled{})
	created := createReminder(t, router)
	id := created["id"].(string)

	w := do(router, "GET", "/reminders", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var list []map[string]any
	json.NewDecoder(w.Body).Decode(&list)
	if len(list) != 1 || list[0]["id"] != id {
		t.Errorf("unexpected list: %+v", list)
	}

	w = do(router, "GET", "/reminders/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	w = do(router, "GET", "/reminders/nope", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
	var resp errorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error != "REMINDER_NOT_FOUND" {
		t.Errorf("unexpected error body: %+v", resp)
	}
}

func TestMarkTakenHandler(t *testing.T) {
	router, _ := setupRouter(t, timer.Disabled{})
	id := createReminder(t, router)["id"].(string)

	for _, want := range []float64{8, 6, 4, 2, 0} {
		w := do(router, "POST", "/reminders/"+id+"/taken", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp struct {
			Reminder map[string]any `json:"reminder"`
			Outcome  string         `json:"outcome"`
		}
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.Reminder["stock"] != want {
			t.Errorf("expected stock %v, got %v", want, resp.Reminder["stock"])
		}
		if want == 0 && resp.Outcome != "out_of_stock" {
			t.Errorf("expected out_of_stock at zero, got %s", resp.Outcome)
		}
	}

	w := do(router, "POST", "/reminders/"+id+"/taken", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409 on empty stock, got %d", w.Code)
	}
}

func TestMarkTakenTimerFailure(t *testing.T) {
	store := reminder.NewStore(storage.NewMemoryStorage(), "", logger.Discard())
	r := reminder.NewReminder("Aspirin", "09:00", []reminder.Timing{reminder.AfterLunch}, 10, 2, nil, "", "")
	if err := store.Append(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	router := NewAPI(tracker.New(store, failingTimer{}, &quietAnnouncer{}, logger.Discard()), logger.Discard()).Router("")

	w := do(router, "POST", "/reminders/"+r.ID+"/taken", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", w.Code)
	}
	got, _ := store.Get(r.ID)
	if got.Stock != 10 {
		t.Errorf("stock changed despite timer failure: %d", got.Stock)
	}
}

func TestStockAndAlternativesHandlers(t *testing.T) {
	router, svc := setupRouter(t, timer.Disabled{})
	id := createReminder(t, router)["id"].(string)

	if w := do(router, "PUT", "/reminders/"+id+"/stock", `{"stock":3}`); w.Code != http.StatusOK {
		t.Fatalf("update stock: expected 200, got %d", w.Code)
	}
	if w := do(router, "PUT", "/reminders/"+id+"/stock", `{"stock":-3}`); w.Code != http.StatusBadRequest {
		t.Fatalf("negative stock: expected 400, got %d", w.Code)
	}
	if w := do(router, "PUT", "/reminders/"+id+"/stock", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing stock: expected 400, got %d", w.Code)
	}

	if w := do(router, "POST", "/reminders/"+id+"/alternatives", `{"name":"Disprin","stock":0}`); w.Code != http.StatusCreated {
		t.Fatalf("add alternative: expected 201, got %d", w.Code)
	}
	if w := do(router, "POST", "/reminders/"+id+"/switch", `{"index":0}`); w.Code != http.StatusBadRequest {
		t.Fatalf("switch to empty alternative: expected 400, got %d", w.Code)
	}
	if w := do(router, "PATCH", "/reminders/"+id+"/alternatives/0", `{"name":"Disprin","stock":12,"pillsPerDose":1}`); w.Code != http.StatusOK {
		t.Fatalf("update alternative: expected 200, got %d", w.Code)
	}
	if w := do(router, "POST", "/reminders/"+id+"/switch", `{"index":0}`); w.Code != http.StatusOK {
		t.Fatalf("switch: expected 200, got %d", w.Code)
	}

	got, err := svc.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.MedicineName != "Disprin" || got.Stock != 12 || got.PillsPerDose != 1 {
		t.Errorf("unexpected primary after switch: %+v", got)
	}
	if len(got.AlternativeMedicines) != 1 || got.AlternativeMedicines[0].Name != "Aspirin" || got.AlternativeMedicines[0].Stock != 3 {
		t.Errorf("unexpected alternatives after switch: %+v", got.AlternativeMedicines)
	}

	if w := do(router, "DELETE", "/reminders/"+id+"/alternatives/x", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad index: expected 400, got %d", w.Code)
	}
	if w := do(router, "DELETE", "/reminders/"+id+"/alternatives/0", ""); w.Code != http.StatusOK {
		t.Fatalf("remove alternative: expected 200, got %d", w.Code)
	}
}

func TestDeleteAndTestVoiceHandlers(t *testing.T) {
	router, _ := setupRouter(t, timer.Disabled{})
	id := createReminder(t, router)["id"].(string)

	if w := do(router, "POST", "/reminders/"+id+"/test-voice", ""); w.Code != http.StatusNoContent {
		t.Fatalf("test voice: expected 204, got %d", w.Code)
	}
	if w := do(router, "DELETE", "/reminders/"+id, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}
	if w := do(router, "DELETE", "/reminders/"+id, ""); w.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", w.Code)
	}
}

func TestMetricsAndStatic(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0644); err != nil {
		t.Fatal(err)
	}
	store := reminder.NewStore(storage.NewMemoryStorage(), "", logger.Discard())
	router := NewAPI(tracker.New(store, timer.Disabled{}, &quietAnnouncer{}, logger.Discard()), logger.Discard()).Router(dir)

	w := do(router, "GET", "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "medtrack_") {
		t.Errorf("metrics endpoint: status %d", w.Code)
	}

	w = do(router, "GET", "/app.js", "")
	if w.Code != http.StatusOK {
		t.Fatalf("static: expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "javascript") {
		t.Errorf("unexpected content type %q", ct)
	}
}

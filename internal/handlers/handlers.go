package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medtrack/internal/apperr"
	"medtrack/internal/ledger"
	"medtrack/internal/reminder"
	"medtrack/internal/tracker"
)

// API serves the caregiver endpoints over a tracker.Service.
type API struct {
	tracker  *tracker.Service
	validate *validator.Validate
	now      func() time.Time
	logger   *slog.Logger
}

func NewAPI(t *tracker.Service, logger *slog.Logger) *API {
	return &API{
		tracker:  t,
		validate: validator.New(),
		now:      time.Now,
		logger:   logger.With("component", "http"),
	}
}

// Router registers every route. When staticDir is set the caregiver UI
// bundle is served from "/".
func (a *API) Router(staticDir string) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/reminders", a.CreateReminderHandler).Methods("POST")
	r.HandleFunc("/reminders", a.ListRemindersHandler).Methods("GET")
	r.HandleFunc("/reminders/{id}", a.GetReminderHandler).Methods("GET")
	r.HandleFunc("/reminders/{id}", a.DeleteReminderHandler).Methods("DELETE")
	r.HandleFunc("/reminders/{id}/taken", a.MarkTakenHandler).Methods("POST")
	r.HandleFunc("/reminders/{id}/stock", a.UpdateStockHandler).Methods("PUT")
	r.HandleFunc("/reminders/{id}/switch", a.SwitchAlternativeHandler).Methods("POST")
	r.HandleFunc("/reminders/{id}/alternatives", a.AddAlternativeHandler).Methods("POST")
	r.HandleFunc("/reminders/{id}/alternatives/{index}", a.UpdateAlternativeHandler).Methods("PATCH")
	r.HandleFunc("/reminders/{id}/alternatives/{index}", a.RemoveAlternativeHandler).Methods("DELETE")
	r.HandleFunc("/reminders/{id}/test-voice", a.TestVoiceHandler).Methods("POST")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	if staticDir != "" {
		staticFs := http.FileServer(http.Dir(staticDir))
		r.PathPrefix("/").Handler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if ext := filepath.Ext(req.URL.Path); ext != "" {
				if ctype := mime.TypeByExtension(ext); ctype != "" {
					w.Header().Set("Content-Type", ctype)
				}
			}
			staticFs.ServeHTTP(w, req)
		}))
	}
	return r
}

type alternativeRequest struct {
	Name         string `json:"name" validate:"required"`
	Stock        int    `json:"stock" validate:"gte=0"`
	PillsPerDose int    `json:"pillsPerDose" validate:"gte=0"`
}

func (a alternativeRequest) toAlternative() reminder.Alternative {
	return reminder.Alternative{Name: a.Name, Stock: a.Stock, PillsPerDose: a.PillsPerDose}
}

type createReminderRequest struct {
	MedicineName         string               `json:"medicineName" validate:"required"`
	Time                 string               `json:"time" validate:"required,datetime=15:04"`
	Timings              []reminder.Timing    `json:"timings" validate:"required,min=1,dive,oneof='Before Breakfast' 'After Breakfast' 'Before Lunch' 'After Lunch' 'Before Dinner' 'After Dinner'"`
	Stock                int                  `json:"stock" validate:"gte=0"`
	PillsPerDose         int                  `json:"pillsPerDose" validate:"required,gte=1"`
	AlternativeMedicines []alternativeRequest `json:"alternativeMedicines" validate:"dive"`
	GuardianPhone        string               `json:"guardianPhone" validate:"omitempty,max=20"`
	MedicineImage        string               `json:"medicineImage"`
}

type stockRequest struct {
	Stock *int `json:"stock" validate:"required,gte=0"`
}

type switchRequest struct {
	Index *int `json:"index" validate:"required,gte=0"`
}

// reminderView adds the dashboard fields to a stored reminder.
type reminderView struct {
	*reminder.Reminder
	Status      reminder.Status `json:"status"`
	LowStock    bool            `json:"lowStock"`
	DisplayTime string          `json:"displayTime,omitempty"`
	Warning     string          `json:"warning,omitempty"`
}

type takenResponse struct {
	Reminder reminderView   `json:"reminder"`
	Outcome  ledger.Outcome `json:"outcome"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *API) view(r *reminder.Reminder) reminderView {
	v := reminderView{
		Reminder: r,
		Status:   r.TimeStatus(a.now()),
		LowStock: r.LowStock(),
	}
	if c, err := reminder.ParseClock(r.Time); err == nil {
		v.DisplayTime = c.Format12h()
	}
	return v
}

func (a *API) CreateReminderHandler(w http.ResponseWriter, r *http.Request) {
	var req createReminderRequest
	if !a.decode(w, r, &req) {
		return
	}

	alts := make([]reminder.Alternative, len(req.AlternativeMedicines))
	for i, alt := range req.AlternativeMedicines {
		alts[i] = alt.toAlternative()
	}

	created, err := a.tracker.AddReminder(r.Context(), tracker.NewReminder{
		MedicineName:         req.MedicineName,
		Time:                 req.Time,
		Timings:              req.Timings,
		Stock:                req.Stock,
		PillsPerDose:         req.PillsPerDose,
		AlternativeMedicines: alts,
		GuardianPhone:        req.GuardianPhone,
		MedicineImage:        req.MedicineImage,
	})
	// A snapshot write failure still leaves a registered, live reminder.
	// Report it as created so clients do not retry into a duplicate.
	if err != nil && (created == nil || !errors.Is(err, apperr.ErrPersistence)) {
		a.writeError(w, r, err)
		return
	}
	v := a.view(created)
	if err != nil {
		a.logger.Warn("reminder created but not persisted", "reminder_id", created.ID, "error", err)
		v.Warning = "reminder is active but was not persisted; it will be saved with the next successful write"
	}
	a.writeJSON(w, r, http.StatusCreated, v)
}

func (a *API) ListRemindersHandler(w http.ResponseWriter, r *http.Request) {
	list := a.tracker.List()
	views := make([]reminderView, len(list))
	for i, rem := range list {
		views[i] = a.view(rem)
	}
	a.writeJSON(w, r, http.StatusOK, views)
}

func (a *API) GetReminderHandler(w http.ResponseWriter, r *http.Request) {
	rem, err := a.tracker.Get(mux.Vars(r)["id"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, r, http.StatusOK, a.view(rem))
}

func (a *API) DeleteReminderHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.tracker.DeleteReminder(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	a.logRequest(r, http.StatusNoContent)
}

func (a *API) MarkTakenHandler(w http.ResponseWriter, r *http.Request) {
	updated, outcome, err := a.tracker.MarkTaken(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, r, http.StatusOK, takenResponse{Reminder: a.view(updated), Outcome: outcome})
}

func (a *API) UpdateStockHandler(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if !a.decode(w, r, &req) {
		return
	}
	updated, err := a.tracker.UpdateStock(r.Context(), mux.Vars(r)["id"], *req.Stock)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, r, http.StatusOK, a.view(updated))
}

func (a *API) SwitchAlternativeHandler(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if !a.decode(w, r, &req) {
		return
	}
	updated, err := a.tracker.SwitchToAlternative(r.Context(), mux.Vars(r)["id"], *req.Index)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, r, http.StatusOK, a.view(updated))
}

func (a *API) AddAlternativeHandler(w http.ResponseWriter, r *http.Request) {
	var req alternativeRequest
	if !a.decode(w, r, &req) {
		return
	}
	updated, err := a.tracker.AddAlternative(r.Context(), mux.Vars(r)["id"], req.toAlternative())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, r, http.StatusCreated, a.view(updated))
}

func (a *API) UpdateAlternativeHandler(w http.ResponseWriter, r *http.Request) {
	index, ok := a.pathIndex(w, r)
	if !ok {
		return
	}
	var req alternativeRequest
	if !a.decode(w, r, &req) {
		return
	}
	updated, err := a.tracker.UpdateAlternative(r.Context(), mux.Vars(r)["id"], index, req.toAlternative())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, r, http.StatusOK, a.view(updated))
}

func (a *API) RemoveAlternativeHandler(w http.ResponseWriter, r *http.Request) {
	index, ok := a.pathIndex(w, r)
	if !ok {
		return
	}
	updated, err := a.tracker.RemoveAlternative(r.Context(), mux.Vars(r)["id"], index)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, r, http.StatusOK, a.view(updated))
}

func (a *API) TestVoiceHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.tracker.TestVoice(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	a.logRequest(r, http.StatusNoContent)
}

// decode reads a JSON body and runs the struct validator. It writes the
// error response itself and reports whether the handler should continue.
func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		a.writeError(w, r, apperr.NewValidationError("invalid JSON body: "+err.Error()))
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		a.writeError(w, r, apperr.NewValidationError(err.Error()))
		return false
	}
	return true
}

func (a *API) pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		a.writeError(w, r, apperr.NewValidationError("alternative index must be a number"))
		return 0, false
	}
	return index, true
}

func (a *API) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
	a.logRequest(r, status)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: "INTERNAL", Message: "internal error"}

	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		resp = errorResponse{Error: appErr.Code, Message: appErr.Message}
		if status >= http.StatusInternalServerError {
			a.logger.Error("request failed", appErr.LogFields()...)
		}
	} else {
		a.logger.Error("request failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
	a.logRequest(r, status)
}

func statusFor(err error) int {
	switch apperr.TypeOf(err) {
	case apperr.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperr.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperr.ErrorTypeInsufficientStock:
		return http.StatusConflict
	case apperr.ErrorTypeCollaborator:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) logRequest(r *http.Request, status int) {
	a.logger.Info("request",
		"method", r.Method,
		"path", r.URL.Path,
		"user_agent", r.UserAgent(),
		"status", status,
	)
}

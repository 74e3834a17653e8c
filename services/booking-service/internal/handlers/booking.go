package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/libs/civiltime"
	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
)

// Engine is the availability engine surface the HTTP layer drives.
type Engine interface {
	Calendar() availability.Calendar
	ListAvailableSlots(ctx context.Context, date civiltime.Date) []availability.Slot
	CreateBooking(ctx context.Context, req booking.Request) (model.Appointment, error)
	CancelBooking(ctx context.Context, id, reason string, by booking.Canceller) (model.Appointment, error)
	ListAppointments(ctx context.Context, clientID string, limit int) ([]model.Appointment, error)
}

type BookingHandler struct {
	engine   Engine
	verifier auth.Verifier
	logger   *slog.Logger
}

func NewBookingHandler(engine Engine, verifier auth.Verifier, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{engine: engine, verifier: verifier, logger: logger}
}

type slotsResponse struct {
	Date        string   `json:"date"`
	Timezone    string   `json:"timezone"`
	SlotMinutes int      `json:"slot_minutes"`
	Slots       []string `json:"slots"`
}

type createBookingRequest struct {
	// BookingType is "guest" or "public" for unauthenticated callers; ignored with a bearer token.
	BookingType string `json:"booking_type"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Type        string `json:"type"`
	Notes       string `json:"notes"`
}

type createBookingResponse struct {
	AppointmentID string `json:"appointment_id"`
	ScheduledAt   string `json:"scheduled_at"`
	LocalDate     string `json:"local_date"`
	LocalTime     string `json:"local_time"`
	Status        string `json:"status"`
}

type cancelBookingRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type cancelBookingResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at"`
}

type listAppointmentItem struct {
	AppointmentID   string `json:"appointment_id"`
	ClientName      string `json:"client_name"`
	ClientEmail     string `json:"client_email"`
	ScheduledAt     string `json:"scheduled_at"`
	LocalDate       string `json:"local_date"`
	LocalTime       string `json:"local_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Type            string `json:"type"`
	Source          string `json:"source"`
	Status          string `json:"status"`
	CancelledAt     string `json:"cancelled_at,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	date, err := civiltime.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), "date")
		return
	}

	cal := h.engine.Calendar()
	slots := h.engine.ListAvailableSlots(r.Context(), date)
	resp := slotsResponse{
		Date:        date.String(),
		Timezone:    cal.Zone().Name(),
		SlotMinutes: cal.SlotMinutes(),
		Slots:       make([]string, 0, len(slots)),
	}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, s.Clock)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body", "")
		return
	}

	breq := booking.Request{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Date:  req.Date,
		Time:  req.Time,
		Type:  req.Type,
		Notes: req.Notes,
	}
	if r.Header.Get("Authorization") != "" {
		claims, err := h.verifier.FromRequest(r)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid bearer token", "")
			return
		}
		breq.Identity = booking.Identity{Kind: model.SourceAuthenticated, ClientID: claims.Sub}
		if strings.TrimSpace(breq.Name) == "" {
			breq.Name = claims.Name
		}
		if strings.TrimSpace(breq.Email) == "" {
			breq.Email = claims.Email
		}
	} else {
		kind := strings.ToLower(strings.TrimSpace(req.BookingType))
		if kind == "" {
			kind = model.SourcePublic
		}
		if kind != model.SourceGuest && kind != model.SourcePublic {
			httpx.WriteError(w, http.StatusBadRequest, "booking_type must be guest or public", "booking_type")
			return
		}
		breq.Identity = booking.Identity{Kind: kind}
	}

	appt, err := h.engine.CreateBooking(r.Context(), breq)
	if err != nil {
		h.writeEngineError(w, err, "create booking failed")
		return
	}

	zone := h.engine.Calendar().Zone()
	httpx.WriteJSON(w, http.StatusCreated, createBookingResponse{
		AppointmentID: appt.ID,
		ScheduledAt:   appt.ScheduledAt.UTC().Format(time.RFC3339),
		LocalDate:     zone.DateOf(appt.ScheduledAt).String(),
		LocalTime:     zone.Clock(appt.ScheduledAt),
		Status:        appt.Status,
	})
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	claims, err := h.verifier.FromRequest(r)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "valid bearer token required", "")
		return
	}

	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body", "")
		return
	}

	by := booking.Canceller{ClientID: claims.Sub, Staff: auth.IsStaff(claims.Role)}
	appt, err := h.engine.CancelBooking(r.Context(), strings.TrimSpace(req.AppointmentID), strings.TrimSpace(req.Reason), by)
	if err != nil {
		h.writeEngineError(w, err, "cancel booking failed")
		return
	}
	resp := cancelBookingResponse{AppointmentID: appt.ID, Status: appt.Status}
	if appt.CancelledAt != nil {
		resp.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// List shows staff every recent appointment and clients only their own.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	claims, err := h.verifier.FromRequest(r)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "valid bearer token required", "")
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	clientID := claims.Sub
	if auth.IsStaff(claims.Role) {
		clientID = ""
	}

	appts, err := h.engine.ListAppointments(r.Context(), clientID, limit)
	if err != nil {
		h.logger.Error("list appointments failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list appointments", "")
		return
	}

	zone := h.engine.Calendar().Zone()
	items := make([]listAppointmentItem, 0, len(appts))
	for _, appt := range appts {
		item := listAppointmentItem{
			AppointmentID:   appt.ID,
			ClientName:      appt.ClientName,
			ClientEmail:     appt.ClientEmail,
			ScheduledAt:     appt.ScheduledAt.UTC().Format(time.RFC3339),
			LocalDate:       zone.DateOf(appt.ScheduledAt).String(),
			LocalTime:       zone.Clock(appt.ScheduledAt),
			DurationMinutes: appt.DurationMinutes,
			Type:            appt.Type,
			Source:          appt.Source,
			Status:          appt.Status,
			CreatedAt:       appt.CreatedAt.UTC().Format(time.RFC3339),
		}
		if appt.CancelledAt != nil {
			item.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) writeEngineError(w http.ResponseWriter, err error, logMsg string) {
	var ve *booking.ValidationError
	switch {
	case errors.As(err, &ve):
		httpx.WriteError(w, http.StatusBadRequest, ve.Message, ve.Field)
	case errors.Is(err, booking.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, "time slot already booked", "time")
	case errors.Is(err, booking.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "appointment not found", "appointment_id")
	default:
		h.logger.Error(logMsg, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error", "")
	}
}

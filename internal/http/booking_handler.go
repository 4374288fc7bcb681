package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/example/worker-booking/internal/application"
)

type bookingService interface {
	CreateBooking(ctx context.Context, params application.CreateBookingParams) (application.Booking, error)
	TransitionStatus(ctx context.Context, params application.TransitionStatusParams) (application.Booking, error)
	UpdateSchedule(ctx context.Context, params application.UpdateScheduleParams) (application.Booking, error)
	DeleteBooking(ctx context.Context, params application.DeleteBookingParams) error
	GetBooking(ctx context.Context, principal application.Principal, bookingID string) (application.Booking, error)
	History(ctx context.Context, principal application.Principal, bookingID string) ([]application.StatusChange, error)
	BookingsForWorker(ctx context.Context, principal application.Principal) ([]application.Booking, error)
	BookingsForCustomer(ctx context.Context, principal application.Principal) ([]application.Booking, error)
	AllBookings(ctx context.Context, principal application.Principal) ([]application.Booking, error)
	WorkerBusyDates(ctx context.Context, workerID string) ([]civil.Date, error)
}

// BookingHandler serves the booking and worker availability endpoints.
type BookingHandler struct {
	service   bookingService
	responder responder
	logger    *slog.Logger
}

// NewBookingHandler wires a handler around the booking service. observer may
// be nil.
func NewBookingHandler(service bookingService, logger *slog.Logger, observer ErrorObserver) *BookingHandler {
	return &BookingHandler{
		service:   service,
		responder: newResponder(logger).withObserver(observer),
		logger:    logger,
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	booking, err := h.service.CreateBooking(r.Context(), application.CreateBookingParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "BookingHandler", "Create").InfoContext(r.Context(), "booking created", "booking_id", booking.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toBookingDTO(booking))
}

func (h *BookingHandler) All(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	bookings, err := h.service.AllBookings(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listBookingsResponse{Bookings: toBookingDTOs(bookings)})
}

// Mine lists the caller's bookings. ?as=worker selects the bookings made
// against the caller's worker profile; the default is the customer view.
func (h *BookingHandler) Mine(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var (
		bookings []application.Booking
		err      error
	)
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("as"))) {
	case "", "customer":
		bookings, err = h.service.BookingsForCustomer(r.Context(), principal)
	case "worker":
		bookings, err = h.service.BookingsForWorker(r.Context(), principal)
	default:
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRole)
		return
	}
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listBookingsResponse{Bookings: toBookingDTOs(bookings)})
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	bookingID, ok := h.bookingID(w, r)
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	booking, err := h.service.GetBooking(r.Context(), principal, bookingID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBookingDTO(booking))
}

func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	bookingID, ok := h.bookingID(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	booking, err := h.service.TransitionStatus(r.Context(), application.TransitionStatusParams{
		Principal: principal,
		BookingID: bookingID,
		Status:    req.Status,
		Reason:    req.Reason,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBookingDTO(booking))
}

func (h *BookingHandler) History(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	bookingID, ok := h.bookingID(w, r)
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	changes, err := h.service.History(r.Context(), principal, bookingID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, historyResponse{History: toStatusChangeDTOs(changes)})
}

func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	bookingID, ok := h.bookingID(w, r)
	if !ok {
		return
	}

	var req updateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	booking, err := h.service.UpdateSchedule(r.Context(), application.UpdateScheduleParams{
		Principal:     principal,
		BookingID:     bookingID,
		Notes:         req.Notes,
		ScheduledDate: req.ScheduledDate,
		ScheduledTime: req.ScheduledTime,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBookingDTO(booking))
}

func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	bookingID, ok := h.bookingID(w, r)
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteBooking(r.Context(), application.DeleteBookingParams{
		Principal: principal,
		BookingID: bookingID,
	}); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// BusyDates lists the dates on which the worker already holds an active
// booking.
func (h *BookingHandler) BusyDates(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	workerID := strings.TrimSpace(r.PathValue("id"))
	if workerID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidWorkerID)
		return
	}

	dates, err := h.service.WorkerBusyDates(r.Context(), workerID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.String())
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, busyDatesResponse{WorkerID: workerID, Dates: out})
}

func (h *BookingHandler) bookingID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidBookingID)
		return "", false
	}
	return id, true
}

type createBookingRequest struct {
	JobID                  *string `json:"job_id"`
	WorkerID               string  `json:"worker_id"`
	ScheduledDate          string  `json:"scheduled_date"`
	ScheduledTime          string  `json:"scheduled_time"`
	EstimatedDurationHours *int    `json:"estimated_duration_hours"`
	Notes                  *string `json:"notes"`
}

func (r createBookingRequest) toInput() application.CreateBookingInput {
	return application.CreateBookingInput{
		JobID:                  r.JobID,
		WorkerID:               strings.TrimSpace(r.WorkerID),
		ScheduledDate:          strings.TrimSpace(r.ScheduledDate),
		ScheduledTime:          strings.TrimSpace(r.ScheduledTime),
		EstimatedDurationHours: r.EstimatedDurationHours,
		Notes:                  r.Notes,
	}
}

type statusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type updateBookingRequest struct {
	Notes         *string `json:"notes"`
	ScheduledDate string  `json:"scheduled_date"`
	ScheduledTime string  `json:"scheduled_time"`
}

type listBookingsResponse struct {
	Bookings []bookingDTO `json:"bookings"`
}

type historyResponse struct {
	History []statusChangeDTO `json:"history"`
}

type busyDatesResponse struct {
	WorkerID string   `json:"worker_id"`
	Dates    []string `json:"dates"`
}

type bookingDTO struct {
	ID                     string  `json:"id"`
	WorkerID               string  `json:"worker_id"`
	CustomerID             string  `json:"customer_id"`
	JobID                  *string `json:"job_id,omitempty"`
	ScheduledDate          string  `json:"scheduled_date"`
	ScheduledTime          string  `json:"scheduled_time"`
	EstimatedDurationHours *int    `json:"estimated_duration_hours,omitempty"`
	Status                 string  `json:"status"`
	FinalCostCents         *int64  `json:"final_cost_cents,omitempty"`
	PaymentStatus          string  `json:"payment_status"`
	Notes                  *string `json:"notes,omitempty"`
	CancellationReason     *string `json:"cancellation_reason,omitempty"`
	CancelledAt            *string `json:"cancelled_at,omitempty"`
	CompletedAt            *string `json:"completed_at,omitempty"`
	CreatedAt              string  `json:"created_at"`
	UpdatedAt              string  `json:"updated_at"`
}

type statusChangeDTO struct {
	ID        string  `json:"id"`
	Seq       int     `json:"seq"`
	OldStatus *string `json:"old_status"`
	NewStatus string  `json:"new_status"`
	ActorID   string  `json:"actor_id"`
	Reason    *string `json:"reason,omitempty"`
	ChangedAt string  `json:"changed_at"`
}

func toBookingDTO(b application.Booking) bookingDTO {
	return bookingDTO{
		ID:                     b.ID,
		WorkerID:               b.WorkerID,
		CustomerID:             b.CustomerID,
		JobID:                  b.JobID,
		ScheduledDate:          b.ScheduledDate.String(),
		ScheduledTime:          b.ScheduledTime.String(),
		EstimatedDurationHours: b.EstimatedDurationHours,
		Status:                 string(b.Status),
		FinalCostCents:         b.FinalCostCents,
		PaymentStatus:          b.PaymentStatus,
		Notes:                  b.Notes,
		CancellationReason:     b.CancellationReason,
		CancelledAt:            formatOptionalTime(b.CancelledAt),
		CompletedAt:            formatOptionalTime(b.CompletedAt),
		CreatedAt:              b.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:              b.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toBookingDTOs(bookings []application.Booking) []bookingDTO {
	out := make([]bookingDTO, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingDTO(b))
	}
	return out
}

func toStatusChangeDTOs(changes []application.StatusChange) []statusChangeDTO {
	out := make([]statusChangeDTO, 0, len(changes))
	for _, c := range changes {
		dto := statusChangeDTO{
			ID:        c.ID,
			Seq:       c.Seq,
			NewStatus: string(c.NewStatus),
			ActorID:   c.ActorID,
			Reason:    c.Reason,
			ChangedAt: c.ChangedAt.UTC().Format(time.RFC3339Nano),
		}
		if c.OldStatus != nil {
			old := string(*c.OldStatus)
			dto.OldStatus = &old
		}
		out = append(out, dto)
	}
	return out
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

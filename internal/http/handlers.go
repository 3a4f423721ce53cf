package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/auth"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"github.com/robertarktes/event-ticketing/internal/ticketing"
)

const (
	maxBodyBytes = 1 << 20
	statsKey     = "dashboard:stats"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Cache holds short-lived JSON snapshots. The redis adapter implements it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
}

type Deps struct {
	Inventory *ticketing.Inventory
	Engine    *ticketing.Engine
	Verifier  *ticketing.Verifier
	Dashboard *ticketing.Dashboard
	Auth      *auth.Authenticator
	Store     Pinger
	// Cache and StatsTTL are optional; without them stats are computed on
	// every request.
	Cache    Cache
	StatsTTL time.Duration
	Logger   observability.Logger
}

type Handlers struct {
	inventory *ticketing.Inventory
	engine    *ticketing.Engine
	verifier  *ticketing.Verifier
	dashboard *ticketing.Dashboard
	auth      *auth.Authenticator
	store     Pinger
	cache     Cache
	statsTTL  time.Duration
	logger    observability.Logger
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		inventory: d.Inventory,
		engine:    d.Engine,
		verifier:  d.Verifier,
		dashboard: d.Dashboard,
		auth:      d.Auth,
		store:     d.Store,
		cache:     d.Cache,
		statsTTL:  d.StatsTTL,
		logger:    d.Logger,
	}
}

type eventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Price       *float64  `json:"price"`
	TotalSeats  *int      `json:"total_seats"`
	ImageRef    string    `json:"image_ref"`
}

type eventPatchRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Date        *time.Time `json:"date"`
	Price       *float64   `json:"price"`
	TotalSeats  *int       `json:"total_seats"`
	ImageRef    *string    `json:"image_ref"`
}

type bookingRequest struct {
	EventID     uuid.UUID `json:"event_id"`
	GuestName   string    `json:"guest_name"`
	Quantity    int       `json:"quantity"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.Invalid("invalid request body: %v", err)
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, domain.Invalid("invalid id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

// adminLog tags the request logger with the admin subject from the token.
func (h *Handlers) adminLog(r *http.Request) observability.Logger {
	log := observability.LoggerFrom(r.Context(), h.logger)
	if claims, ok := ClaimsFrom(r.Context()); ok {
		log = log.WithField("admin", claims.Subject)
	}
	return log
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.inventory.ListEvents(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, events)
}

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ev, err := h.inventory.CreateEvent(r.Context(), domain.EventFields{
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		Price:       req.Price,
		TotalSeats:  req.TotalSeats,
		ImageRef:    req.ImageRef,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.adminLog(r).WithField("event_id", ev.ID).Info("event created")
	writeData(w, http.StatusCreated, ev)
}

func (h *Handlers) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req eventPatchRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ev, changes, err := h.inventory.UpdateEvent(r.Context(), id, domain.EventPatch{
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		Price:       req.Price,
		TotalSeats:  req.TotalSeats,
		ImageRef:    req.ImageRef,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.adminLog(r).WithField("event_id", id).WithField("changes", changes).Info("event updated")
	writeData(w, http.StatusOK, map[string]interface{}{"changes": changes, "event": ev})
}

func (h *Handlers) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	removed, err := h.inventory.DeleteEvent(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.adminLog(r).WithField("event_id", id).WithField("bookings_removed", removed).Info("event deleted")
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "deleted", "bookings_removed": removed})
}

func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	bookings, err := h.engine.ListBookings(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, bookings)
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	confirmation, err := h.engine.Book(r.Context(), domain.BookingRequest{
		EventID:     req.EventID,
		GuestName:   req.GuestName,
		Quantity:    req.Quantity,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, confirmation)
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	restored, err := h.engine.CancelBooking(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.adminLog(r).WithField("booking_id", id).WithField("restored_seats", restored).Info("booking cancelled")
	writeData(w, http.StatusOK, map[string]int{"restored_seats": restored})
}

func (h *Handlers) VerifyTicket(w http.ResponseWriter, r *http.Request) {
	result, err := h.verifier.Verify(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	log := observability.LoggerFrom(r.Context(), h.logger)
	if h.cache != nil {
		var cached domain.Stats
		hit, err := h.cache.GetJSON(r.Context(), statsKey, &cached)
		if err != nil {
			log.WithError(err).Warn("stats cache read failed")
		}
		if hit {
			writeData(w, http.StatusOK, cached)
			return
		}
	}

	stats, err := h.dashboard.Stats(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if h.cache != nil && h.statsTTL > 0 {
		if err := h.cache.SetJSON(r.Context(), statsKey, stats, h.statsTTL); err != nil {
			log.WithError(err).Warn("stats cache write failed")
		}
	}
	writeData(w, http.StatusOK, stats)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	tok, err := h.auth.Login(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		observability.LoggerFrom(r.Context(), h.logger).WithField("username", req.Username).Warn("admin login rejected")
		writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, err.Error())
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, tok)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		observability.LoggerFrom(r.Context(), h.logger).WithError(err).Warn("store not ready")
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeErrorCode(w, http.StatusServiceUnavailable, codeStorage, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

package checkout

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rng-salon/salon-pos/internal/catalog"
	"github.com/rng-salon/salon-pos/internal/platform/httpx"
	"github.com/rng-salon/salon-pos/internal/shared"
)

// Handler exposes checkout sessions over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers checkout routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.open)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Delete("/", h.abandon)
			r.Post("/items", h.addItem)
			r.Patch("/items/{itemID}", h.updateItem)
			r.Delete("/items/{itemID}", h.removeItem)
			r.Put("/discount", h.setDiscount)
			r.Put("/tax", h.setTax)
			r.Post("/membership/refresh", h.refreshMembership)
			r.Put("/payments/{method}", h.setAmount)
			r.Post("/payments/{method}/fill", h.fill)
			r.Post("/payments/distribute", h.distribute)
			r.Delete("/payments", h.clearPayments)
			r.Put("/mode", h.setMode)
			r.Get("/suggestion", h.suggestion)
			r.Post("/suggestion/apply", h.applySuggestion)
			r.Post("/finalize", h.finalize)
		})
	})
}

type openRequest struct {
	ClientID  uuid.UUID `json:"client_id"`
	StylistID uuid.UUID `json:"stylist_id"`
}

type addItemRequest struct {
	Kind      string    `json:"kind" validate:"required,oneof=service product membership"`
	CatalogID uuid.UUID `json:"catalog_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1,max=999"`
}

type updateItemRequest struct {
	Quantity *int             `json:"quantity" validate:"omitempty,min=0,max=999"`
	Discount *decimal.Decimal `json:"discount"`
	PayVia   *string          `json:"pay_via" validate:"omitempty,oneof=standard membership_balance"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type taxRequest struct {
	ProductTax *bool `json:"product_tax" validate:"required"`
	ServiceTax *bool `json:"service_tax" validate:"required"`
}

type distributeRequest struct {
	Methods []string `json:"methods" validate:"required,min=1,dive,required"`
}

type modeRequest struct {
	Split *bool `json:"split" validate:"required"`
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if r.ContentLength != 0 {
		if !h.decode(w, r, &req) {
			return
		}
	}
	view, err := h.service.Open(r.Context(), req.ClientID, req.StylistID)
	h.respond(w, http.StatusCreated, view, err)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Get(r.Context(), id)
	h.respond(w, http.StatusOK, view, err)
}

func (h *Handler) abandon(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if err := h.service.Abandon(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	kind, err := catalog.ParseKind(req.Kind)
	if err != nil {
		h.fail(w, err)
		return
	}
	view, err := h.service.AddItem(r.Context(), id, kind, req.CatalogID, req.Quantity)
	h.respond(w, http.StatusOK, view, err)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	itemID, ok := h.uuidParam(w, r, "itemID")
	if !ok {
		return
	}
	var req updateItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	upd := ItemUpdate{Quantity: req.Quantity, Discount: req.Discount}
	if req.PayVia != nil {
		via := PayVia(*req.PayVia)
		upd.PayVia = &via
	}
	view, err := h.service.UpdateItem(r.Context(), id, itemID, upd)
	h.respond(w, http.StatusOK, view, err)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	itemID, ok := h.uuidParam(w, r, "itemID")
	if !ok {
		return
	}
	view, err := h.service.RemoveItem(r.Context(), id, itemID)
	h.respond(w, http.StatusOK, view, err)
}

func (h *Handler) setDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.SetGlobalDiscount(r.Context(), id, req.Amount)
	h.respond(w, http.StatusOK, view, err)
}

func (h *Handler) setTax(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req taxRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.SetTaxSettings(r.Context(), id, TaxSettings{ProductTax: *req.ProductTax, ServiceTax: *req.ServiceTax})
	h.respond(w, http.StatusOK, view, err)
}

func (h *Handler) refreshMembership(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.service.RefreshMembership(r.Context(), id)
	h.respond(w, http.StatusOK, view, err)
}

func (h *Handler) setAmount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	m, err := ParseMethod(chi.URLParam(r, "method"))
	if err != nil {
		h.fail(w, err)
		return
	}
	var req amountRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.SetAmount(r.Context(), id, m, req.Amount)
	h.respond(w, http.StatusOK, view, err)
}

func (h *Handler) fill(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	m, err := ParseMethod(chi.URLParam(r, "method"))
	if err != nil {
		h.fail(w, err)
		return
	}
	view, err := h.service.FillRemaining(r.Context(), id, m)
	h.respond(w, http.StatusOK, view, err)
}

func (h *Handler) distribute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req distributeRequest
	if !h.decode(w, r, &req) {
		return
	}
	methods := make([]Method, 0, len(req.Methods))
	for _, raw := range req.Methods {
		m, err := ParseMethod(raw)
		if err != nil {
			h.fail(w, err)
			return
		}
		methods = append(methods, m)
	}
	view, err := h.service.Distribute(r.Context(), id, methods)
	h.respond(w, http.StatusOK, view, err)
}

func (h *Handler) clearPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.service.ClearPayments(r.Context(), id)
	h.respond(w, http.StatusOK, view, err)
}

func (h *Handler) setMode(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req modeRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.ToggleSplit(r.Context(), id, *req.Split)
	h.respond(w, http.StatusOK, view, err)
}

func (h *Handler) suggestion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	alloc, err := h.service.Suggest(r.Context(), id)
	h.respond(w, http.StatusOK, alloc, err)
}

func (h *Handler) applySuggestion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.service.ApplySuggestion(r.Context(), id)
	h.respond(w, http.StatusOK, view, err)
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	result, err := h.service.Finalize(r.Context(), id, key)
	h.respond(w, http.StatusCreated, result, err)
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	return h.uuidParam(w, r, "id")
}

func (h *Handler) uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		fields := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[strings.ToLower(fe.Field())] = fe.Tag()
			}
		}
		httpx.ProblemWith(w, http.StatusBadRequest, "Validation Failed", "request body is invalid", fields)
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any, err error) {
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, status, body)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	var (
		fieldErr *FieldError
		recErr   *ReconciliationError
		eligErr  *EligibilityError
		extErr   *ExternalFailure
	)
	switch {
	case errors.As(err, &fieldErr):
		httpx.ProblemWith(w, http.StatusUnprocessableEntity, "Invalid Payment", fieldErr.Message, fieldErr)
	case errors.As(err, &eligErr):
		httpx.ProblemWith(w, http.StatusUnprocessableEntity, "Not Eligible", eligErr.Reason, map[string]string{"item_id": eligErr.ItemID.String()})
	case errors.As(err, &recErr):
		httpx.ProblemWith(w, http.StatusConflict, "Payments Unreconciled", recErr.Error(), map[string]string{"remaining": recErr.Remaining.StringFixed(2)})
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Already Finalized", err.Error())
	case errors.As(err, &extErr):
		h.logger.Error("checkout dependency failed", slog.String("op", extErr.Op), slog.Any("error", extErr.Err))
		httpx.Problem(w, http.StatusBadGateway, "Upstream Failure", extErr.Op+" failed")
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrItemNotFound), errors.Is(err, catalog.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrSplitRequired), errors.Is(err, ErrEmptyCart):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrUnknownMethod), errors.Is(err, ErrNoMethods),
		errors.Is(err, ErrNotDistributable), errors.Is(err, catalog.ErrUnknownKind):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Request", err.Error())
	default:
		h.logger.Error("checkout request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

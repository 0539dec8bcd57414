package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pocketledger/pocketledger/internal/platform/httpx"
)

// IdempotencyHeader carries the client supplied key for transfer creation.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes the ledger over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.listAccounts)
		r.Post("/", h.createAccount)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getAccount)
			r.Patch("/", h.updateAccount)
			r.Delete("/", h.deleteAccount)
			r.Post("/archive", h.archiveAccount)
			r.Post("/unarchive", h.unarchiveAccount)
			r.Get("/balance", h.balance)
			r.Get("/movements", h.listMovements)
			r.Get("/opening", h.getOpening)
			r.Put("/opening", h.ensureOpening)
			r.Patch("/opening", h.updateOpening)
			r.Delete("/opening", h.deleteOpening)
			r.Post("/adjustments", h.applyAdjustment)
		})
	})
	r.Route("/transfers", func(r chi.Router) {
		r.Get("/", h.listTransfers)
		r.Post("/", h.createTransfer)
		r.Get("/{id}", h.getTransfer)
		r.Patch("/{id}", h.updateTransfer)
		r.Delete("/{id}", h.deleteTransfer)
	})
	for _, kind := range []EntryKind{EntryExpense, EntryIncome} {
		kind := kind
		r.Route("/"+string(kind)+"s", func(r chi.Router) {
			r.Post("/", h.recordEntry(kind))
			r.Patch("/{id}", h.updateEntry(kind))
			r.Delete("/{id}", h.deleteEntry(kind))
		})
	}
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	includeArchived, err := boolQuery(r, "include_archived")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	withBalance, err := boolQuery(r, "with_balance")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if withBalance {
		accounts, err := h.service.ListAccountsWithBalance(r.Context(), includeArchived)
		h.respond(w, r, http.StatusOK, accounts, err)
		return
	}
	accounts, err := h.service.ListAccounts(r.Context(), includeArchived)
	h.respond(w, r, http.StatusOK, accounts, err)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var input CreateAccountInput
	if err := h.decode(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.service.CreateAccount(r.Context(), input)
	h.respond(w, r, http.StatusCreated, account, err)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	h.respond(w, r, http.StatusOK, account, err)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input UpdateAccountInput
	if err := h.decode(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.service.UpdateAccount(r.Context(), id, input)
	h.respond(w, r, http.StatusOK, account, err)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.service.DeleteAccount(r.Context(), id)
	h.respond(w, r, http.StatusOK, account, err)
}

func (h *Handler) archiveAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.service.ArchiveAccount(r.Context(), id)
	h.respond(w, r, http.StatusOK, account, err)
}

func (h *Handler) unarchiveAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.service.UnarchiveAccount(r.Context(), id)
	h.respond(w, r, http.StatusOK, account, err)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	balance, err := h.service.BalanceOf(r.Context(), id)
	h.respond(w, r, http.StatusOK, map[string]any{
		"account_id": id,
		"balance":    balance,
		"display":    FromCents(balance).StringFixed(2),
	}, err)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filter := MovementFilter{AccountID: id}
	if filter.From, err = timeQuery(r, "from"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.To, err = timeQuery(r, "to"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.Limit, filter.Offset, err = pageQuery(r); err != nil {
		h.fail(w, r, err)
		return
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	h.respond(w, r, http.StatusOK, movements, err)
}

func (h *Handler) getOpening(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	opening, err := h.service.GetOpening(r.Context(), id)
	h.respond(w, r, http.StatusOK, opening, err)
}

func (h *Handler) ensureOpening(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input OpeningInput
	if err := h.decode(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	input.AccountID = id
	opening, err := h.service.EnsureOpening(r.Context(), input)
	h.respond(w, r, http.StatusOK, opening, err)
}

func (h *Handler) updateOpening(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input UpdateOpeningInput
	if err := h.decode(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	opening, err := h.service.UpdateOpening(r.Context(), id, input)
	h.respond(w, r, http.StatusOK, opening, err)
}

func (h *Handler) deleteOpening(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	opening, err := h.service.DeleteOpening(r.Context(), id)
	h.respond(w, r, http.StatusOK, opening, err)
}

func (h *Handler) applyAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input AdjustmentInput
	if err := h.decode(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	input.AccountID = id
	adj, err := h.service.ApplyAdjustment(r.Context(), input)
	h.respond(w, r, http.StatusCreated, adj, err)
}

func (h *Handler) listTransfers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	transfers, err := h.service.ListTransfers(r.Context(), limit, offset)
	h.respond(w, r, http.StatusOK, transfers, err)
}

func (h *Handler) createTransfer(w http.ResponseWriter, r *http.Request) {
	var input CreateTransferInput
	if err := h.decode(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	input.IdempotencyKey = strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	transfer, err := h.service.CreateTransfer(r.Context(), input)
	h.respond(w, r, http.StatusCreated, transfer, err)
}

func (h *Handler) getTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	transfer, err := h.service.GetTransfer(r.Context(), id)
	h.respond(w, r, http.StatusOK, transfer, err)
}

func (h *Handler) updateTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input UpdateTransferInput
	if err := h.decode(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	transfer, err := h.service.UpdateTransfer(r.Context(), id, input)
	h.respond(w, r, http.StatusOK, transfer, err)
}

func (h *Handler) deleteTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	transfer, err := h.service.DeleteTransfer(r.Context(), id)
	h.respond(w, r, http.StatusOK, transfer, err)
}

func (h *Handler) recordEntry(kind EntryKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input EntryInput
		if err := h.decode(r, &input); err != nil {
			h.fail(w, r, err)
			return
		}
		entry, err := h.service.recordEntry(r.Context(), kind, input)
		h.respond(w, r, http.StatusCreated, entry, err)
	}
}

func (h *Handler) updateEntry(kind EntryKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		var input UpdateEntryInput
		if err := h.decode(r, &input); err != nil {
			h.fail(w, r, err)
			return
		}
		entry, err := h.service.updateEntry(r.Context(), kind, id, input)
		h.respond(w, r, http.StatusOK, entry, err)
	}
}

func (h *Handler) deleteEntry(kind EntryKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		entry, err := h.service.deleteEntry(r.Context(), kind, id)
		h.respond(w, r, http.StatusOK, entry, err)
	}
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	if err := h.validator.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %s", ErrInvalidInput, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, body any, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, status, body)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := httpx.StatusOf(err); status >= http.StatusInternalServerError {
		h.logger.Error("ledger request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed id", ErrInvalidInput)
	}
	return id, nil
}

func boolQuery(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", ErrInvalidInput, name)
	}
	return v, nil
}

func timeQuery(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", ErrInvalidInput, name)
	}
	t = t.UTC()
	return &t, nil
}

func pageQuery(r *http.Request) (int, int, error) {
	var limit, offset int
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: limit must be an integer", ErrInvalidInput)
		}
		limit = v
	}
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: offset must be an integer", ErrInvalidInput)
		}
		offset = v
	}
	return limit, offset, nil
}

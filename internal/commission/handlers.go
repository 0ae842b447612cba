package commission

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/bizledger/internal/common"
	"github.com/noah-isme/bizledger/internal/money"
	"github.com/noah-isme/bizledger/internal/tenant"
)

// Errors maps commission failures to API codes.
var Errors = common.ErrorTable{
	{Target: tenant.ErrBusinessMissing, Code: "BUSINESS_REQUIRED", Status: http.StatusBadRequest},
	{Target: tenant.ErrBusinessInvalid, Code: "BUSINESS_REQUIRED", Status: http.StatusBadRequest},
	{Target: ErrInvalidCommissionType, Code: "INVALID_COMMISSION_TYPE", Status: http.StatusUnprocessableEntity},
	{Target: ErrInvalidPercentage, Code: "INVALID_PERCENTAGE", Status: http.StatusUnprocessableEntity},
	{Target: ErrNegativeAmount, Code: "NEGATIVE_AMOUNT", Status: http.StatusUnprocessableEntity},
	{Target: ErrBatchTooLarge, Code: "BATCH_TOO_LARGE", Status: http.StatusUnprocessableEntity},
	{Target: ErrEmployeeNotFound, Code: "EMPLOYEE_NOT_FOUND", Status: http.StatusNotFound},
	{Target: ErrSaleNotFound, Code: "SALE_NOT_FOUND", Status: http.StatusNotFound},
	{Target: ErrDuplicateCommission, Code: "COMMISSION_EXISTS", Status: http.StatusConflict},
}

// Handler exposes the commission endpoints.
type Handler struct {
	Svc            *Service
	DefaultPerPage int
}

type recordRequest struct {
	EmployeeID uuid.UUID   `json:"employeeId" validate:"required"`
	Amount     money.Money `json:"amount"`
	ServiceRef *string     `json:"serviceRef" validate:"omitempty,max=64"`
	SaleID     *uuid.UUID  `json:"saleId"`
}

type markPaidRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1"`
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "commission service not configured", nil)
		return false
	}
	return true
}

// Record handles POST /commissions.
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req recordRequest
	if !common.Bind(w, r, &req) {
		return
	}
	tx, err := h.Svc.Record(r.Context(), RecordInput{
		EmployeeID: req.EmployeeID,
		Total:      req.Amount,
		ServiceRef: req.ServiceRef,
		SaleID:     req.SaleID,
	})
	if err != nil {
		Errors.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, tx)
}

// List handles GET /commissions?employeeId=&paid=&saleId=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	q := r.URL.Query()
	var f Filter
	if raw := strings.TrimSpace(q.Get("employeeId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid employeeId", nil)
			return
		}
		f.EmployeeID = &id
	}
	if raw := strings.TrimSpace(q.Get("saleId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid saleId", nil)
			return
		}
		f.SaleID = &id
	}
	if raw := strings.TrimSpace(q.Get("paid")); raw != "" {
		paid, err := strconv.ParseBool(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid paid flag", nil)
			return
		}
		f.Paid = &paid
	}
	txs, err := h.Svc.List(r.Context(), f)
	if err != nil {
		Errors.WriteError(w, err)
		return
	}
	perPage := h.DefaultPerPage
	if perPage <= 0 {
		perPage = 50
	}
	page := common.ParsePagination(r, perPage)
	start, end := page.Bounds(len(txs))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       txs[start:end],
		"pagination": page,
	})
}

// Summary handles GET /employees/{employeeID}/commissions/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	employeeID, err := uuid.Parse(chi.URLParam(r, "employeeID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid employee id", nil)
		return
	}
	sum, err := h.Svc.Summary(r.Context(), employeeID)
	if err != nil {
		Errors.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sum)
}

// MarkPaid handles POST /commissions/mark-paid.
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req markPaidRequest
	if !common.Bind(w, r, &req) {
		return
	}
	res, err := h.Svc.MarkPaid(r.Context(), req.IDs)
	if err != nil {
		Errors.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, res)
}

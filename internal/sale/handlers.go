package sale

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bizledger/internal/commission"
	"github.com/noah-isme/bizledger/internal/common"
	"github.com/noah-isme/bizledger/internal/ledger"
	"github.com/noah-isme/bizledger/internal/lock"
	"github.com/noah-isme/bizledger/internal/money"
	"github.com/noah-isme/bizledger/internal/obs"
	"github.com/noah-isme/bizledger/internal/pricing"
	"github.com/noah-isme/bizledger/internal/refno"
	"github.com/noah-isme/bizledger/internal/store"
	"github.com/noah-isme/bizledger/internal/tenant"
)

// Errors maps sale-flow failures to API codes.
var Errors = common.ErrorTable{
	{Target: tenant.ErrBusinessMissing, Code: "BUSINESS_REQUIRED", Status: http.StatusBadRequest},
	{Target: tenant.ErrBusinessInvalid, Code: "BUSINESS_REQUIRED", Status: http.StatusBadRequest},
	{Target: pricing.ErrInvalidQuantity, Code: "INVALID_QUANTITY", Status: http.StatusUnprocessableEntity},
	{Target: pricing.ErrDiscountExceedsValue, Code: "DISCOUNT_EXCEEDS_VALUE", Status: http.StatusUnprocessableEntity},
	{Target: pricing.ErrNegativeTotalRejected, Code: "NEGATIVE_TOTAL_REJECTED", Status: http.StatusUnprocessableEntity},
	{Target: pricing.ErrInvalidTaxRate, Code: "INVALID_TAX_RATE", Status: http.StatusUnprocessableEntity},
	{Target: pricing.ErrNegativeAmount, Code: "NEGATIVE_AMOUNT", Status: http.StatusUnprocessableEntity},
	{Target: ledger.ErrNonPositivePayment, Code: "NON_POSITIVE_PAYMENT", Status: http.StatusUnprocessableEntity},
	{Target: ledger.ErrSaleRefunded, Code: "SALE_REFUNDED", Status: http.StatusUnprocessableEntity},
	{Target: ErrEmptyCart, Code: "EMPTY_CART", Status: http.StatusUnprocessableEntity},
	{Target: ErrInvalidPaymentMethod, Code: "INVALID_PAYMENT_METHOD", Status: http.StatusUnprocessableEntity},
	{Target: commission.ErrInvalidCommissionType, Code: "INVALID_COMMISSION_TYPE", Status: http.StatusUnprocessableEntity},
	{Target: commission.ErrInvalidPercentage, Code: "INVALID_PERCENTAGE", Status: http.StatusUnprocessableEntity},
	{Target: commission.ErrNegativeAmount, Code: "NEGATIVE_AMOUNT", Status: http.StatusUnprocessableEntity},
	{Target: commission.ErrEmployeeNotFound, Code: "EMPLOYEE_NOT_FOUND", Status: http.StatusNotFound},
	{Target: ErrSaleNotFound, Code: "SALE_NOT_FOUND", Status: http.StatusNotFound},
	{Target: store.ErrReferenceConflict, Code: "REFERENCE_CONFLICT", Status: http.StatusConflict},
	{Target: refno.ErrReferenceExhausted, Code: "REFERENCE_CONFLICT", Status: http.StatusConflict},
	{Target: store.ErrStaleBalance, Code: "STALE_BALANCE", Status: http.StatusConflict},
	{Target: lock.ErrNotAcquired, Code: "LOCK_TIMEOUT", Status: http.StatusConflict},
}

// Handler exposes the sale endpoints.
type Handler struct {
	Svc *Service
}

type lineRequest struct {
	ServiceRef  string          `json:"serviceRef" validate:"max=64"`
	Description string          `json:"description" validate:"max=255"`
	Quantity    int             `json:"quantity"`
	UnitPrice   money.Money     `json:"unitPrice"`
	Discount    money.Money     `json:"discount"`
	TaxRate     decimal.Decimal `json:"taxRate"`
}

type quoteRequest struct {
	Lines []lineRequest `json:"lines" validate:"max=500,dive"`
}

type checkoutRequest struct {
	CustomerID       *uuid.UUID    `json:"customerId"`
	EmployeeID       *uuid.UUID    `json:"employeeId"`
	Lines            []lineRequest `json:"lines" validate:"max=500,dive"`
	AmountTendered   *money.Money  `json:"amountTendered"`
	PaymentMethod    string        `json:"paymentMethod" validate:"max=32"`
	PaymentReference *string       `json:"paymentReference" validate:"omitempty,max=128"`
	Notes            *string       `json:"notes" validate:"omitempty,max=1000"`
}

type paymentRequest struct {
	Amount    money.Money `json:"amount"`
	Method    string      `json:"method" validate:"max=32"`
	Reference *string     `json:"reference" validate:"omitempty,max=128"`
}

func toLines(in []lineRequest) []pricing.Line {
	out := make([]pricing.Line, 0, len(in))
	for _, l := range in {
		out = append(out, pricing.Line{
			ServiceRef:  l.ServiceRef,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Discount:    l.Discount,
			TaxRate:     l.TaxRate,
		})
	}
	return out
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "sale service not configured", nil)
		return false
	}
	return true
}

// Quote handles POST /sales/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req quoteRequest
	if !common.Bind(w, r, &req) {
		return
	}
	summary, err := h.Svc.Quote(r.Context(), toLines(req.Lines))
	if err != nil {
		Errors.WriteError(w, err)
		return
	}
	lines := make([]LineItem, 0, len(summary.Lines))
	for i, li := range linesFrom(summary.Lines) {
		li.ID = uuid.Nil
		li.Position = i + 1
		lines = append(lines, li)
	}
	common.Data(w, http.StatusOK, map[string]any{
		"lines":          lines,
		"subtotal":       summary.Subtotal,
		"taxAmount":      summary.Tax,
		"discountAmount": summary.Discount,
		"totalAmount":    summary.Total,
		"currency":       h.Svc.Currency,
	})
}

// Checkout handles POST /sales.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req checkoutRequest
	if !common.Bind(w, r, &req) {
		return
	}
	out, err := h.Svc.Checkout(r.Context(), CheckoutInput{
		CustomerID:       req.CustomerID,
		EmployeeID:       req.EmployeeID,
		Lines:            toLines(req.Lines),
		Tendered:         req.AmountTendered,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		Notes:            req.Notes,
	})
	if err != nil {
		Errors.WriteError(w, err)
		return
	}
	obs.Annotate(r.Context(), "sale_id", out.Sale.ID.String())
	obs.Annotate(r.Context(), "sale_number", out.Sale.SaleNumber)
	common.Data(w, http.StatusCreated, out)
}

// Get handles GET /sales/{saleID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	saleID, ok := saleIDParam(w, r)
	if !ok {
		return
	}
	out, err := h.Svc.Get(r.Context(), saleID)
	if err != nil {
		Errors.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, out)
}

// ListPayments handles GET /sales/{saleID}/payments.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	saleID, ok := saleIDParam(w, r)
	if !ok {
		return
	}
	out, err := h.Svc.Payments(r.Context(), saleID)
	if err != nil {
		Errors.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, out)
}

// RecordPayment handles POST /sales/{saleID}/payments.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	saleID, ok := saleIDParam(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if !common.Bind(w, r, &req) {
		return
	}
	out, err := h.Svc.RecordPayment(r.Context(), saleID, PaymentInput{
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: req.Reference,
	})
	if err != nil {
		Errors.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

func saleIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "saleID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid sale id", nil)
		return uuid.Nil, false
	}
	return id, true
}

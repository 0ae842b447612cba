package sale_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bizledger/internal/sale"
	"github.com/noah-isme/bizledger/internal/tenant"
)

func newRouter(t *testing.T) (http.Handler, fixture) {
	t.Helper()
	f := newFixture(t)
	h := &sale.Handler{Svc: f.svc}
	r := chi.NewRouter()
	r.Use(tenant.NewResolver("", "").Middleware)
	r.Post("/sales/quote", h.Quote)
	r.Post("/sales", h.Checkout)
	r.Get("/sales/{saleID}", h.Get)
	r.Get("/sales/{saleID}/payments", h.ListPayments)
	r.Post("/sales/{saleID}/payments", h.RecordPayment)
	return r, f
}

func do(t *testing.T, h http.Handler, business uuid.UUID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if business != uuid.Nil {
		req.Header.Set(tenant.DefaultHeader, business.String())
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return env
}

func TestHandlerCheckoutAndTopUp(t *testing.T) {
	router, f := newRouter(t)

	rr := do(t, router, f.business, http.MethodPost, "/sales", `{
		"lines":[{"serviceRef":"svc-color","quantity":1,"unitPrice":"200000","discount":"0","taxRate":"0"}],
		"amountTendered":"50000",
		"paymentMethod":"card"
	}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created struct {
		Sale    sale.Sale     `json:"sale"`
		Payment *sale.Payment `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rr).Data, &created))
	require.Equal(t, "partial", string(created.Sale.PaymentStatus))
	require.Equal(t, "150000.00", created.Sale.BalanceDue.String())
	require.Equal(t, sale.MethodCard, created.Payment.Method)

	rr = do(t, router, f.business, http.MethodPost, "/sales/"+created.Sale.ID.String()+"/payments", `{"amount":"150000","method":"cash"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"paymentStatus":"completed"`)

	rr = do(t, router, f.business, http.MethodGet, "/sales/"+created.Sale.ID.String(), "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), created.Sale.SaleNumber)

	rr = do(t, router, f.business, http.MethodGet, "/sales/"+created.Sale.ID.String()+"/payments", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var payments []sale.Payment
	require.NoError(t, json.Unmarshal(decode(t, rr).Data, &payments))
	require.Len(t, payments, 2)
}

func TestHandlerQuote(t *testing.T) {
	router, f := newRouter(t)
	rr := do(t, router, f.business, http.MethodPost, "/sales/quote",
		`{"lines":[{"quantity":3,"unitPrice":1000,"discount":500,"taxRate":7.5}]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := rr.Body.String()
	require.Contains(t, body, `"subtotal":"3000.00"`)
	require.Contains(t, body, `"taxAmount":"225.00"`)
	require.Contains(t, body, `"totalAmount":"2725.00"`)
	require.Contains(t, body, `"total":"2500.00"`)
	require.Empty(t, f.mem.Events())
}

func TestHandlerErrorMapping(t *testing.T) {
	router, f := newRouter(t)
	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"invalid quantity", http.MethodPost, "/sales", `{"lines":[{"quantity":0,"unitPrice":"10"}]}`, http.StatusUnprocessableEntity, "INVALID_QUANTITY"},
		{"discount exceeds", http.MethodPost, "/sales", `{"lines":[{"quantity":1,"unitPrice":"10","discount":"20"}]}`, http.StatusUnprocessableEntity, "DISCOUNT_EXCEEDS_VALUE"},
		{"tax rate precision", http.MethodPost, "/sales", `{"lines":[{"quantity":1,"unitPrice":"1000","taxRate":"7.125"}]}`, http.StatusUnprocessableEntity, "INVALID_TAX_RATE"},
		{"empty cart", http.MethodPost, "/sales", `{"lines":[]}`, http.StatusUnprocessableEntity, "EMPTY_CART"},
		{"negative tender", http.MethodPost, "/sales", `{"lines":[{"quantity":1,"unitPrice":"10"}],"amountTendered":"-5"}`, http.StatusUnprocessableEntity, "NON_POSITIVE_PAYMENT"},
		{"unknown field", http.MethodPost, "/sales", `{"lines":[],"tip":1}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"too long reference", http.MethodPost, "/sales", `{"lines":[],"paymentReference":"` + strings.Repeat("x", 129) + `"}`, http.StatusUnprocessableEntity, "VALIDATION_FAILED"},
		{"unknown employee", http.MethodPost, "/sales", `{"employeeId":"` + uuid.NewString() + `","lines":[{"quantity":1,"unitPrice":"10"}]}`, http.StatusNotFound, "EMPLOYEE_NOT_FOUND"},
		{"bad sale id", http.MethodGet, "/sales/nope", ``, http.StatusBadRequest, "BAD_REQUEST"},
		{"missing sale", http.MethodGet, "/sales/" + uuid.NewString(), ``, http.StatusNotFound, "SALE_NOT_FOUND"},
		{"zero payment", http.MethodPost, "/sales/" + uuid.NewString() + "/payments", `{"amount":"0"}`, http.StatusUnprocessableEntity, "NON_POSITIVE_PAYMENT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, router, f.business, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
			require.Equal(t, tc.code, decode(t, rr).Error.Code)
		})
	}
}

func TestHandlerRequiresBusiness(t *testing.T) {
	router, _ := newRouter(t)
	rr := do(t, router, uuid.Nil, http.MethodPost, "/sales", `{"lines":[{"quantity":1,"unitPrice":"10"}]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "BUSINESS_REQUIRED", decode(t, rr).Error.Code)
}

func TestHandlerTenantIsolation(t *testing.T) {
	router, f := newRouter(t)
	rr := do(t, router, f.business, http.MethodPost, "/sales", `{"lines":[{"quantity":1,"unitPrice":"10"}]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		Sale sale.Sale `json:"sale"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rr).Data, &created))

	rr = do(t, router, uuid.New(), http.MethodGet, "/sales/"+created.Sale.ID.String(), "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

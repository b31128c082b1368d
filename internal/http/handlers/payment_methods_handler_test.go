package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/payment-service/internal/domain"
	"github.com/shopfront/payment-service/internal/middleware"
	"github.com/shopfront/payment-service/internal/repository"
	"github.com/shopfront/payment-service/internal/services"
	"github.com/shopfront/payment-service/pkg/logger"
)

// --- Fakes ---

// staticValidator принимает любой токен и возвращает фиксированного
// пользователя.
type staticValidator struct {
	userID string
}

func (v *staticValidator) Validate(string) (*middleware.TokenClaims, error) {
	return &middleware.TokenClaims{
		UserEmail:        v.userID + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{Subject: v.userID},
	}, nil
}

type stubCustomerRepo struct {
	customers map[string]*domain.GatewayCustomer
}

func (f *stubCustomerRepo) Create(_ context.Context, c *domain.GatewayCustomer) error {
	f.customers[c.UserID] = c
	return nil
}

func (f *stubCustomerRepo) GetByUserID(_ context.Context, userID string) (*domain.GatewayCustomer, error) {
	c, ok := f.customers[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (f *stubCustomerRepo) UpdateEmail(_ context.Context, _, _ string) error { return nil }

type stubMethodRepo struct {
	methods map[uuid.UUID]*domain.PaymentMethod
}

func (f *stubMethodRepo) Create(_ context.Context, pm *domain.PaymentMethod) error {
	cp := *pm
	f.methods[pm.ID] = &cp
	return nil
}

func (f *stubMethodRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.PaymentMethod, error) {
	pm, ok := f.methods[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *pm
	return &cp, nil
}

func (f *stubMethodRepo) ListByUserID(_ context.Context, userID string) ([]domain.PaymentMethod, error) {
	var out []domain.PaymentMethod
	for _, pm := range f.methods {
		if pm.UserID == userID {
			out = append(out, *pm)
		}
	}
	return out, nil
}

func (f *stubMethodRepo) CountByUserID(_ context.Context, userID string) (int, error) {
	n := 0
	for _, pm := range f.methods {
		if pm.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *stubMethodRepo) Delete(_ context.Context, userID string, id uuid.UUID) error {
	pm, ok := f.methods[id]
	if !ok || pm.UserID != userID {
		return repository.ErrNotFound
	}
	delete(f.methods, id)
	return nil
}

func (f *stubMethodRepo) SetDefault(_ context.Context, userID string, id uuid.UUID) (*domain.PaymentMethod, error) {
	pm, ok := f.methods[id]
	if !ok || pm.UserID != userID {
		return nil, repository.ErrNotFound
	}
	for _, other := range f.methods {
		if other.UserID == userID {
			other.IsDefault = false
		}
	}
	pm.IsDefault = true
	cp := *pm
	return &cp, nil
}

type stubStripeClient struct{}

func (stubStripeClient) CreateCustomer(_ context.Context, userID, _ string) (string, error) {
	return "cus_" + userID, nil
}

func (stubStripeClient) CreateSetupIntent(_ context.Context, _ string) (string, error) {
	return "seti_secret", nil
}

func (stubStripeClient) CreatePaymentIntent(_ context.Context, _ string, _ int64, _, _ string) (string, string, error) {
	return "pi_secret", "pi_123", nil
}

func (stubStripeClient) AttachPaymentMethod(_ context.Context, _, _ string) error { return nil }
func (stubStripeClient) DetachPaymentMethod(_ context.Context, _ string) error    { return nil }

func (stubStripeClient) GetPaymentMethod(_ context.Context, _ string) (*domain.CardDetails, error) {
	return &domain.CardDetails{Brand: "visa", Last4: "4242", Type: "card"}, nil
}

func newTestRouter(t *testing.T, userID string) (*gin.Engine, *stubMethodRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.New(logger.ERROR)

	methodRepo := &stubMethodRepo{methods: make(map[uuid.UUID]*domain.PaymentMethod)}
	customerRepo := &stubCustomerRepo{customers: make(map[string]*domain.GatewayCustomer)}
	svc := services.NewPaymentMethodsService(customerRepo, methodRepo, nil, stubStripeClient{}, nil, nil, log)

	methodsHandler := NewPaymentMethodsHandler(svc, log)
	intentHandler := NewIntentHandler(svc, log)
	authMw := middleware.NewJWTMiddleware(log, &staticValidator{userID: userID})

	router := gin.New()
	auth := router.Group("/api/v1", authMw.RequireAuth())
	auth.POST("/payments/setup-intent", methodsHandler.CreateSetupIntent)
	auth.POST("/payments/methods", methodsHandler.SavePaymentMethod)
	auth.GET("/payments/methods", methodsHandler.ListPaymentMethods)
	auth.DELETE("/payments/methods/:id", methodsHandler.DeletePaymentMethod)
	auth.POST("/payments/methods/:id/default", methodsHandler.SetDefaultPaymentMethod)
	auth.POST("/payments/intent", intentHandler.CreatePaymentIntent)
	return router, methodRepo
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer any")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// --- Tests ---

func TestCreateSetupIntent_ReturnsClientSecret(t *testing.T) {
	router, _ := newTestRouter(t, "user-1")

	w := doRequest(router, http.MethodPost, "/api/v1/payments/setup-intent", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"client_secret":"seti_secret"`)
	assert.Contains(t, w.Body.String(), `"customer_id":"cus_user-1"`)
}

func TestSavePaymentMethod_HappyPath(t *testing.T) {
	router, _ := newTestRouter(t, "user-1")

	w := doRequest(router, http.MethodPost, "/api/v1/payments/methods",
		`{"payment_method_id":"pm_1"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"is_default":true`)
	assert.Contains(t, w.Body.String(), `"last4":"4242"`)
}

func TestSavePaymentMethod_MissingFieldRejected(t *testing.T) {
	router, _ := newTestRouter(t, "user-1")

	w := doRequest(router, http.MethodPost, "/api/v1/payments/methods", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestListPaymentMethods_ReturnsOnlyOwnMethods(t *testing.T) {
	router, methodRepo := newTestRouter(t, "user-1")

	own := &domain.PaymentMethod{ID: uuid.New(), UserID: "user-1", StripePaymentMethodID: "pm_own"}
	foreign := &domain.PaymentMethod{ID: uuid.New(), UserID: "user-2", StripePaymentMethodID: "pm_foreign"}
	methodRepo.methods[own.ID] = own
	methodRepo.methods[foreign.ID] = foreign

	w := doRequest(router, http.MethodGet, "/api/v1/payments/methods", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pm_own")
	assert.NotContains(t, w.Body.String(), "pm_foreign")
}

func TestDeletePaymentMethod_NotFound(t *testing.T) {
	router, _ := newTestRouter(t, "user-1")

	w := doRequest(router, http.MethodDelete, "/api/v1/payments/methods/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeletePaymentMethod_InvalidID(t *testing.T) {
	router, _ := newTestRouter(t, "user-1")

	w := doRequest(router, http.MethodDelete, "/api/v1/payments/methods/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetDefaultPaymentMethod_HappyPath(t *testing.T) {
	router, methodRepo := newTestRouter(t, "user-1")

	m1 := &domain.PaymentMethod{ID: uuid.New(), UserID: "user-1", StripePaymentMethodID: "pm_1", IsDefault: true}
	m2 := &domain.PaymentMethod{ID: uuid.New(), UserID: "user-1", StripePaymentMethodID: "pm_2"}
	methodRepo.methods[m1.ID] = m1
	methodRepo.methods[m2.ID] = m2

	w := doRequest(router, http.MethodPost, "/api/v1/payments/methods/"+m2.ID.String()+"/default", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_default":true`)
	assert.False(t, methodRepo.methods[m1.ID].IsDefault, "previous default must be unset")
}

func TestCreatePaymentIntent_HappyPath(t *testing.T) {
	router, methodRepo := newTestRouter(t, "user-1")

	pm := &domain.PaymentMethod{ID: uuid.New(), UserID: "user-1", StripePaymentMethodID: "pm_1"}
	methodRepo.methods[pm.ID] = pm

	w := doRequest(router, http.MethodPost, "/api/v1/payments/intent",
		`{"payment_method_record_id":"`+pm.ID.String()+`","amount":2500,"currency":"USD"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"client_secret":"pi_secret"`)
	assert.Contains(t, w.Body.String(), `"payment_intent_id":"pi_123"`)
}

func TestCreatePaymentIntent_ForeignMethodNotFound(t *testing.T) {
	router, methodRepo := newTestRouter(t, "user-1")

	foreign := &domain.PaymentMethod{ID: uuid.New(), UserID: "user-2", StripePaymentMethodID: "pm_foreign"}
	methodRepo.methods[foreign.ID] = foreign

	w := doRequest(router, http.MethodPost, "/api/v1/payments/intent",
		`{"payment_method_record_id":"`+foreign.ID.String()+`","amount":2500,"currency":"USD"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreatePaymentIntent_InvalidAmount(t *testing.T) {
	router, _ := newTestRouter(t, "user-1")

	w := doRequest(router, http.MethodPost, "/api/v1/payments/intent",
		`{"amount":0,"currency":"USD"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

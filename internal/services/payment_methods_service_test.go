package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/payment-service/internal/domain"
	"github.com/shopfront/payment-service/internal/repository"
	"github.com/shopfront/payment-service/pkg/logger"
)

// --- Fakes ---

type fakeCustomerRepo struct {
	customers map[string]*domain.GatewayCustomer
	createErr error
}

func newFakeCustomerRepo() *fakeCustomerRepo {
	return &fakeCustomerRepo{customers: make(map[string]*domain.GatewayCustomer)}
}

func (f *fakeCustomerRepo) Create(_ context.Context, c *domain.GatewayCustomer) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.customers[c.UserID] = c
	return nil
}

func (f *fakeCustomerRepo) GetByUserID(_ context.Context, userID string) (*domain.GatewayCustomer, error) {
	c, ok := f.customers[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (f *fakeCustomerRepo) UpdateEmail(_ context.Context, userID, email string) error {
	c, ok := f.customers[userID]
	if !ok {
		return repository.ErrNotFound
	}
	c.Email = email
	return nil
}

type fakeMethodRepo struct {
	methods map[uuid.UUID]*domain.PaymentMethod
}

func newFakeMethodRepo() *fakeMethodRepo {
	return &fakeMethodRepo{methods: make(map[uuid.UUID]*domain.PaymentMethod)}
}

func (f *fakeMethodRepo) Create(_ context.Context, pm *domain.PaymentMethod) error {
	for _, existing := range f.methods {
		if existing.StripePaymentMethodID == pm.StripePaymentMethodID {
			return repository.ErrDuplicate
		}
	}
	if pm.IsDefault {
		for _, existing := range f.methods {
			if existing.UserID == pm.UserID {
				existing.IsDefault = false
			}
		}
	}
	cp := *pm
	f.methods[pm.ID] = &cp
	return nil
}

func (f *fakeMethodRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.PaymentMethod, error) {
	pm, ok := f.methods[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *pm
	return &cp, nil
}

func (f *fakeMethodRepo) ListByUserID(_ context.Context, userID string) ([]domain.PaymentMethod, error) {
	var out []domain.PaymentMethod
	for _, pm := range f.methods {
		if pm.UserID == userID {
			out = append(out, *pm)
		}
	}
	return out, nil
}

func (f *fakeMethodRepo) CountByUserID(_ context.Context, userID string) (int, error) {
	n := 0
	for _, pm := range f.methods {
		if pm.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeMethodRepo) Delete(_ context.Context, userID string, id uuid.UUID) error {
	pm, ok := f.methods[id]
	if !ok || pm.UserID != userID {
		return repository.ErrNotFound
	}
	delete(f.methods, id)
	return nil
}

func (f *fakeMethodRepo) SetDefault(_ context.Context, userID string, id uuid.UUID) (*domain.PaymentMethod, error) {
	target, ok := f.methods[id]
	if !ok || target.UserID != userID {
		return nil, repository.ErrNotFound
	}
	for _, pm := range f.methods {
		if pm.UserID == userID {
			pm.IsDefault = false
		}
	}
	target.IsDefault = true
	cp := *target
	return &cp, nil
}

type fakeStripeClient struct {
	createCustomerCalls int
	createIntentCalls   int
	attached            []string
	detached            []string
	detachErr           error
	intentErr           error
}

func (f *fakeStripeClient) CreateCustomer(_ context.Context, userID, _ string) (string, error) {
	f.createCustomerCalls++
	return "cus_" + userID, nil
}

func (f *fakeStripeClient) CreateSetupIntent(_ context.Context, stripeCustomerID string) (string, error) {
	return "seti_secret_" + stripeCustomerID, nil
}

func (f *fakeStripeClient) CreatePaymentIntent(_ context.Context, stripeCustomerID string, amount int64, currency, paymentMethodID string) (string, string, error) {
	if f.intentErr != nil {
		return "", "", f.intentErr
	}
	f.createIntentCalls++
	return fmt.Sprintf("pi_secret_%d_%s", amount, currency), "pi_123", nil
}

func (f *fakeStripeClient) AttachPaymentMethod(_ context.Context, stripeCustomerID, paymentMethodID string) error {
	f.attached = append(f.attached, paymentMethodID)
	return nil
}

func (f *fakeStripeClient) DetachPaymentMethod(_ context.Context, paymentMethodID string) error {
	if f.detachErr != nil {
		return f.detachErr
	}
	f.detached = append(f.detached, paymentMethodID)
	return nil
}

func (f *fakeStripeClient) GetPaymentMethod(_ context.Context, _ string) (*domain.CardDetails, error) {
	return &domain.CardDetails{Brand: "visa", Last4: "4242", Type: "card"}, nil
}

func newTestService(t *testing.T) (*PaymentMethodsService, *fakeCustomerRepo, *fakeMethodRepo, *fakeStripeClient) {
	t.Helper()
	customerRepo := newFakeCustomerRepo()
	methodRepo := newFakeMethodRepo()
	stripeClient := &fakeStripeClient{}
	svc := NewPaymentMethodsService(customerRepo, methodRepo, nil, stripeClient, nil, nil, logger.New(logger.ERROR))
	return svc, customerRepo, methodRepo, stripeClient
}

func boolPtr(b bool) *bool { return &b }

// --- Tests ---

func TestGetOrCreateCustomer_Idempotent(t *testing.T) {
	svc, _, _, stripeClient := newTestService(t)
	ctx := context.Background()

	first, err := svc.GetOrCreateCustomer(ctx, "user-1", "u1@example.com")
	require.NoError(t, err)
	second, err := svc.GetOrCreateCustomer(ctx, "user-1", "u1@example.com")
	require.NoError(t, err)

	assert.Equal(t, first.StripeCustomerID, second.StripeCustomerID)
	assert.Equal(t, 1, stripeClient.createCustomerCalls, "second call must reuse the persisted customer")
}

func TestGetOrCreateCustomer_PersistFailureNotFatal(t *testing.T) {
	svc, customerRepo, _, _ := newTestService(t)
	customerRepo.createErr = errors.New("db down")

	customer, err := svc.GetOrCreateCustomer(context.Background(), "user-1", "u1@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cus_user-1", customer.StripeCustomerID)
}

func TestGetOrCreateCustomer_RefreshesChangedEmail(t *testing.T) {
	svc, customerRepo, _, stripeClient := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetOrCreateCustomer(ctx, "user-1", "old@example.com")
	require.NoError(t, err)

	customer, err := svc.GetOrCreateCustomer(ctx, "user-1", "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", customer.Email)
	assert.Equal(t, "new@example.com", customerRepo.customers["user-1"].Email)
	assert.Equal(t, 1, stripeClient.createCustomerCalls, "email change must not create a new customer")
}

func TestSavePaymentMethod_FirstMethodBecomesDefault(t *testing.T) {
	svc, _, _, stripeClient := newTestService(t)
	ctx := context.Background()

	pm, err := svc.SavePaymentMethod(ctx, "user-1", "u1@example.com", SavePaymentMethodInput{
		StripePaymentMethodID: "pm_first",
	})
	require.NoError(t, err)
	assert.True(t, pm.IsDefault, "first saved method must become default")
	assert.Equal(t, "visa", pm.Brand)
	assert.Equal(t, "4242", pm.Last4)
	assert.Contains(t, stripeClient.attached, "pm_first")

	second, err := svc.SavePaymentMethod(ctx, "user-1", "u1@example.com", SavePaymentMethodInput{
		StripePaymentMethodID: "pm_second",
	})
	require.NoError(t, err)
	assert.False(t, second.IsDefault, "subsequent methods are not default unless requested")
}

func TestSavePaymentMethod_ExplicitDefaultUnsetsPrevious(t *testing.T) {
	svc, _, methodRepo, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.SavePaymentMethod(ctx, "user-1", "u1@example.com", SavePaymentMethodInput{
		StripePaymentMethodID: "pm_first",
	})
	require.NoError(t, err)
	require.True(t, first.IsDefault)

	second, err := svc.SavePaymentMethod(ctx, "user-1", "u1@example.com", SavePaymentMethodInput{
		StripePaymentMethodID: "pm_second",
		IsDefault:             boolPtr(true),
	})
	require.NoError(t, err)
	assert.True(t, second.IsDefault)

	defaults := 0
	for _, pm := range methodRepo.methods {
		if pm.IsDefault {
			defaults++
			assert.Equal(t, second.ID, pm.ID)
		}
	}
	assert.Equal(t, 1, defaults, "at most one default per user")
}

func TestSetDefaultPaymentMethod_MovesDefault(t *testing.T) {
	svc, _, methodRepo, _ := newTestService(t)
	ctx := context.Background()

	m1, err := svc.SavePaymentMethod(ctx, "user-1", "u1@example.com", SavePaymentMethodInput{StripePaymentMethodID: "pm_1"})
	require.NoError(t, err)
	m2, err := svc.SavePaymentMethod(ctx, "user-1", "u1@example.com", SavePaymentMethodInput{StripePaymentMethodID: "pm_2"})
	require.NoError(t, err)
	require.True(t, m1.IsDefault)
	require.False(t, m2.IsDefault)

	updated, err := svc.SetDefaultPaymentMethod(ctx, "user-1", m2.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsDefault)

	stored1, err := methodRepo.GetByID(ctx, m1.ID)
	require.NoError(t, err)
	assert.False(t, stored1.IsDefault, "previous default must be unset")
}

func TestSetDefaultPaymentMethod_ForeignRecordNotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	pm, err := svc.SavePaymentMethod(ctx, "owner", "owner@example.com", SavePaymentMethodInput{StripePaymentMethodID: "pm_1"})
	require.NoError(t, err)

	_, err = svc.SetDefaultPaymentMethod(ctx, "intruder", pm.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeletePaymentMethod_DetachFailureStillDeletes(t *testing.T) {
	svc, _, methodRepo, stripeClient := newTestService(t)
	ctx := context.Background()

	pm, err := svc.SavePaymentMethod(ctx, "user-1", "u1@example.com", SavePaymentMethodInput{StripePaymentMethodID: "pm_1"})
	require.NoError(t, err)

	stripeClient.detachErr = errors.New("stripe is down")
	err = svc.DeletePaymentMethod(ctx, "user-1", pm.ID)
	require.NoError(t, err, "local delete must succeed despite detach failure")

	methods, err := methodRepo.ListByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, methods)
}

func TestDeletePaymentMethod_ForeignRecordNotFound(t *testing.T) {
	svc, _, methodRepo, _ := newTestService(t)
	ctx := context.Background()

	pm, err := svc.SavePaymentMethod(ctx, "owner", "owner@example.com", SavePaymentMethodInput{StripePaymentMethodID: "pm_1"})
	require.NoError(t, err)

	err = svc.DeletePaymentMethod(ctx, "intruder", pm.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = methodRepo.GetByID(ctx, pm.ID)
	assert.NoError(t, err, "record must survive a foreign delete attempt")
}

func TestCreatePaymentIntent_ForeignMethodRejectedBeforeGateway(t *testing.T) {
	svc, _, _, stripeClient := newTestService(t)
	ctx := context.Background()

	pm, err := svc.SavePaymentMethod(ctx, "owner", "owner@example.com", SavePaymentMethodInput{StripePaymentMethodID: "pm_1"})
	require.NoError(t, err)
	stripeClient.createIntentCalls = 0

	_, err = svc.CreatePaymentIntent(ctx, "intruder", "intruder@example.com", CreatePaymentIntentInput{
		RecordID: pm.ID,
		Amount:   2500,
		Currency: "usd",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, stripeClient.createIntentCalls, "no gateway intent may be created for a foreign method")
}

func TestCreatePaymentIntent_ValidatesInput(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreatePaymentIntent(ctx, "user-1", "u1@example.com", CreatePaymentIntentInput{Amount: 0, Currency: "usd"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.CreatePaymentIntent(ctx, "user-1", "u1@example.com", CreatePaymentIntentInput{Amount: 100})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreatePaymentIntent_HappyPath(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	pm, err := svc.SavePaymentMethod(ctx, "user-1", "u1@example.com", SavePaymentMethodInput{StripePaymentMethodID: "pm_1"})
	require.NoError(t, err)

	intent, err := svc.CreatePaymentIntent(ctx, "user-1", "u1@example.com", CreatePaymentIntentInput{
		RecordID: pm.ID,
		Amount:   2500,
		Currency: "usd",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.PaymentIntentID)
	assert.Equal(t, "pi_secret_2500_usd", intent.ClientSecret)
}

func TestSavePaymentMethod_DuplicateRejected(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SavePaymentMethod(ctx, "user-1", "u1@example.com", SavePaymentMethodInput{StripePaymentMethodID: "pm_1"})
	require.NoError(t, err)

	_, err = svc.SavePaymentMethod(ctx, "user-1", "u1@example.com", SavePaymentMethodInput{StripePaymentMethodID: "pm_1"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shopfront/payment-service/internal/domain"
	"github.com/shopfront/payment-service/pkg/logger"
)

// Client HTTP клиент платежного API. Используется чекаутом и экраном
// управления методами в аккаунте.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient создает клиент API. token - bearer-токен текущего
// пользователя.
func NewClient(baseURL, token string, log *logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// SaveMethodRequest запрос на сохранение подтвержденного метода.
type SaveMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
	Brand           string `json:"brand,omitempty"`
	Last4           string `json:"last4,omitempty"`
	Type            string `json:"type,omitempty"`
	IsDefault       *bool  `json:"is_default,omitempty"`
}

type createPaymentIntentRequest struct {
	PaymentMethodRecordID string `json:"payment_method_record_id,omitempty"`
	Amount                int64  `json:"amount"`
	Currency              string `json:"currency"`
}

type methodDTO struct {
	ID              string `json:"id"`
	PaymentMethodID string `json:"payment_method_id"`
	Type            string `json:"type"`
	Brand           string `json:"brand"`
	Last4           string `json:"last4"`
	IsDefault       bool   `json:"is_default"`
	CreatedAt       string `json:"created_at"`
}

type listMethodsDTO struct {
	Methods []methodDTO `json:"methods"`
}

type errorDTO struct {
	Error string `json:"error"`
}

func (dto methodDTO) toDomain() (domain.PaymentMethod, error) {
	id, err := uuid.Parse(dto.ID)
	if err != nil {
		return domain.PaymentMethod{}, fmt.Errorf("invalid record id %q: %w", dto.ID, err)
	}
	createdAt, _ := time.Parse(time.RFC3339, dto.CreatedAt)
	return domain.PaymentMethod{
		ID:                    id,
		StripePaymentMethodID: dto.PaymentMethodID,
		Type:                  domain.PaymentMethodType(dto.Type),
		Brand:                 dto.Brand,
		Last4:                 dto.Last4,
		IsDefault:             dto.IsDefault,
		CreatedAt:             createdAt,
	}, nil
}

// ListPaymentMethods возвращает сохраненные методы пользователя.
func (c *Client) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	var dto listMethodsDTO
	if err := c.do(ctx, http.MethodGet, "/api/v1/payments/methods", nil, &dto); err != nil {
		return nil, err
	}
	methods := make([]domain.PaymentMethod, 0, len(dto.Methods))
	for _, m := range dto.Methods {
		pm, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		methods = append(methods, pm)
	}
	return methods, nil
}

// CreateSetupIntent запрашивает setup intent для добавления метода.
func (c *Client) CreateSetupIntent(ctx context.Context) (*domain.SetupIntent, error) {
	var intent domain.SetupIntent
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments/setup-intent", nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// SavePaymentMethod сохраняет подтвержденный метод.
func (c *Client) SavePaymentMethod(ctx context.Context, req SaveMethodRequest) (*domain.PaymentMethod, error) {
	var dto methodDTO
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments/methods", req, &dto); err != nil {
		return nil, err
	}
	pm, err := dto.toDomain()
	if err != nil {
		return nil, err
	}
	return &pm, nil
}

// DeletePaymentMethod удаляет сохраненный метод.
func (c *Client) DeletePaymentMethod(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/payments/methods/"+id.String(), nil, nil)
}

// SetDefaultPaymentMethod делает метод методом по умолчанию.
func (c *Client) SetDefaultPaymentMethod(ctx context.Context, id uuid.UUID) (*domain.PaymentMethod, error) {
	var dto methodDTO
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments/methods/"+id.String()+"/default", nil, &dto); err != nil {
		return nil, err
	}
	pm, err := dto.toDomain()
	if err != nil {
		return nil, err
	}
	return &pm, nil
}

// CreatePaymentIntent запрашивает payment intent на сумму корзины.
// recordID может быть uuid.Nil: метод выберет клиент при подтверждении.
func (c *Client) CreatePaymentIntent(ctx context.Context, recordID uuid.UUID, amount int64, currency string) (*domain.PaymentIntent, error) {
	req := createPaymentIntentRequest{
		Amount:   amount,
		Currency: currency,
	}
	if recordID != uuid.Nil {
		req.PaymentMethodRecordID = recordID.String()
	}
	var intent domain.PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments/intent", req, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var errDTO errorDTO
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errDTO); decodeErr == nil && errDTO.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, errDTO.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

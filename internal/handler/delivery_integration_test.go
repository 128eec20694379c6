package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/novapush/dispatcher/internal/domain"
	"github.com/novapush/dispatcher/internal/service"
	"github.com/novapush/dispatcher/internal/transport"
	"go.uber.org/zap"
)

func TestDeliveryIntegration_CreateDispatch(t *testing.T) {
	t.Parallel()

	svc := &stubDispatchService{
		dispatchFn: func(ctx context.Context, req service.DispatchRequest) (*service.DispatchResult, error) {
			if req.IdempotencyKey != "key-abc" {
				t.Fatalf("idempotency key = %q, want key-abc", req.IdempotencyKey)
			}
			if req.Channel != domain.ChannelSMS {
				t.Fatalf("channel = %s, want sms", req.Channel)
			}
			if len(req.Recipients) != 2 {
				t.Fatalf("recipients = %v, want 2", req.Recipients)
			}
			if req.Variables["name"] != "Ada" {
				t.Fatalf("variables = %v, want name=Ada", req.Variables)
			}
			return &service.DispatchResult{
				CorrelationID: "corr-new",
				Count:         2,
				Deliveries:    make([]domain.Delivery, 2),
			}, nil
		},
	}

	app := newDeliveryTestApp(t, svc)

	body := `{"templateId":"tmpl-1","channel":"sms","recipients":["+15550001111","+15550002222"],"variables":{"name":"Ada"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/dispatches", bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("Idempotency-Key", "key-abc")

	resp, respBody := doRequest(t, app, req)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(respBody))
	}

	var parsed map[string]any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["success"] != true {
		t.Fatalf("success = %v, want true", parsed["success"])
	}
	if parsed["correlationId"] != "corr-new" {
		t.Fatalf("correlationId = %v, want corr-new", parsed["correlationId"])
	}
	if parsed["count"] != float64(2) {
		t.Fatalf("count = %v, want 2", parsed["count"])
	}
}

func TestDeliveryIntegration_CreateDispatchValidation(t *testing.T) {
	t.Parallel()

	svc := &stubDispatchService{
		dispatchFn: func(ctx context.Context, req service.DispatchRequest) (*service.DispatchResult, error) {
			return nil, fmt.Errorf("%w: at least one recipient is required", domain.ErrValidation)
		},
	}
	app := newDeliveryTestApp(t, svc)

	cases := []struct {
		name string
		body string
	}{
		{name: "invalid channel", body: `{"templateId":"tmpl-1","channel":"fax","recipients":["x"]}`},
		{name: "no recipients", body: `{"templateId":"tmpl-1","channel":"sms","recipients":[]}`},
		{name: "malformed json", body: `{"templateId":`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			resp, body := performJSON(t, app, http.MethodPost, "/v1/dispatches", tc.body)
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Fatalf("status = %d, want 400, body=%s", resp.StatusCode, string(body))
			}
		})
	}
}

func TestDeliveryIntegration_ListDeliveries(t *testing.T) {
	t.Parallel()

	var gotLimit int
	svc := &stubDispatchService{
		listFn: func(ctx context.Context, limit int) ([]domain.Delivery, error) {
			gotLimit = limit
			return []domain.Delivery{
				{ID: "d1", Status: domain.StatusSent, Channel: domain.ChannelSMS},
				{ID: "d2", Status: domain.StatusFailed, Channel: domain.ChannelSMS},
			}, nil
		},
	}
	app := newDeliveryTestApp(t, svc)

	resp, body := performJSON(t, app, http.MethodGet, "/v1/deliveries?latest=true", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if gotLimit != 50 {
		t.Fatalf("limit = %d, want 50 with latest flag", gotLimit)
	}

	var parsed struct {
		Success bool               `json:"success"`
		Data    []deliveryResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if !parsed.Success || len(parsed.Data) != 2 {
		t.Fatalf("body = %s, want success with 2 records", string(body))
	}

	resp, _ = performJSON(t, app, http.MethodGet, "/v1/deliveries", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if gotLimit != 200 {
		t.Fatalf("limit = %d, want 200 without latest flag", gotLimit)
	}
}

func TestDeliveryIntegration_GetDelivery(t *testing.T) {
	t.Parallel()

	errMsg := "provider timeout"
	svc := &stubDispatchService{
		getByIDFn: func(ctx context.Context, id string) (*domain.Delivery, error) {
			if id != "d-found" {
				return nil, fmt.Errorf("%w: delivery %s", domain.ErrNotFound, id)
			}
			return &domain.Delivery{
				ID:       "d-found",
				Status:   domain.StatusFailed,
				Channel:  domain.ChannelSMS,
				Error:    &errMsg,
				Attempts: 3,
				Timeline: []domain.TimelineEntry{
					{At: time.Unix(1_700_000_000, 0).UTC(), Status: domain.StatusQueued, Info: "Queued for sending"},
				},
			}, nil
		},
	}
	app := newDeliveryTestApp(t, svc)

	resp, body := performJSON(t, app, http.MethodGet, "/v1/deliveries/d-found", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Data deliveryResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Data.Status != "failed" || parsed.Data.Error == nil {
		t.Fatalf("data = %+v, want failed record with error", parsed.Data)
	}
	if len(parsed.Data.Timeline) != 1 || parsed.Data.Timeline[0].Info != "Queued for sending" {
		t.Fatalf("timeline = %+v, want queued entry", parsed.Data.Timeline)
	}

	resp, _ = performJSON(t, app, http.MethodGet, "/v1/deliveries/not-exists", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeliveryIntegration_RetryDelivery(t *testing.T) {
	t.Parallel()

	svc := &stubDispatchService{
		retryFn: func(ctx context.Context, id string) (*domain.Delivery, error) {
			switch id {
			case "d-failed":
				return &domain.Delivery{ID: id, Status: domain.StatusQueued, Channel: domain.ChannelSMS}, nil
			case "d-sent":
				return nil, fmt.Errorf("%w: only failed deliveries can be retried", domain.ErrValidation)
			default:
				return nil, fmt.Errorf("%w: delivery %s", domain.ErrNotFound, id)
			}
		},
	}
	app := newDeliveryTestApp(t, svc)

	resp, body := performJSON(t, app, http.MethodPost, "/v1/deliveries/d-failed/retry", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var parsed struct {
		Success bool             `json:"success"`
		Data    deliveryResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if !parsed.Success || parsed.Data.Status != "queued" {
		t.Fatalf("body = %s, want requeued record", string(body))
	}

	resp, _ = performJSON(t, app, http.MethodPost, "/v1/deliveries/d-sent/retry", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for non-failed record", resp.StatusCode)
	}

	resp, _ = performJSON(t, app, http.MethodPost, "/v1/deliveries/missing/retry", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

type stubDispatchService struct {
	dispatchFn func(ctx context.Context, req service.DispatchRequest) (*service.DispatchResult, error)
	getByIDFn  func(ctx context.Context, id string) (*domain.Delivery, error)
	listFn     func(ctx context.Context, limit int) ([]domain.Delivery, error)
	retryFn    func(ctx context.Context, id string) (*domain.Delivery, error)
}

func (s *stubDispatchService) Dispatch(ctx context.Context, req service.DispatchRequest) (*service.DispatchResult, error) {
	if s.dispatchFn != nil {
		return s.dispatchFn(ctx, req)
	}
	return &service.DispatchResult{}, nil
}

func (s *stubDispatchService) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	return nil, fmt.Errorf("%w: delivery %s", domain.ErrNotFound, id)
}

func (s *stubDispatchService) List(ctx context.Context, limit int) ([]domain.Delivery, error) {
	if s.listFn != nil {
		return s.listFn(ctx, limit)
	}
	return nil, nil
}

func (s *stubDispatchService) Retry(ctx context.Context, id string) (*domain.Delivery, error) {
	if s.retryFn != nil {
		return s.retryFn(ctx, id)
	}
	return nil, fmt.Errorf("%w: delivery %s", domain.ErrNotFound, id)
}

func newDeliveryTestApp(t *testing.T, svc DispatchService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterDeliveryRoutes(app, svc); err != nil {
		t.Fatalf("RegisterDeliveryRoutes() error = %v", err)
	}

	return app
}

func performJSON(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return doRequest(t, app, req)
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

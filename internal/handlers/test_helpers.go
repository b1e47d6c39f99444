package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/passcode/internal/auth"
	"github.com/BradenHooton/passcode/internal/models"
	"github.com/BradenHooton/passcode/internal/services"
	pkghttp "github.com/BradenHooton/passcode/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// DiscardLogger returns a logger that drops everything
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockOTPService implements OTPServiceInterface for testing
type MockOTPService struct {
	RequestCodeFunc func(ctx context.Context, email, purpose string) (*services.IssueResult, error)
	VerifyCodeFunc  func(ctx context.Context, email, purpose, code string) (models.VerifyResult, error)
}

func (m *MockOTPService) RequestCode(ctx context.Context, email, purpose string) (*services.IssueResult, error) {
	if m.RequestCodeFunc != nil {
		return m.RequestCodeFunc(ctx, email, purpose)
	}
	return nil, models.ErrInternalServer
}

func (m *MockOTPService) VerifyCode(ctx context.Context, email, purpose, code string) (models.VerifyResult, error) {
	if m.VerifyCodeFunc != nil {
		return m.VerifyCodeFunc(ctx, email, purpose, code)
	}
	return 0, models.ErrInternalServer
}

// MockGrantIssuer implements GrantIssuerInterface for testing
type MockGrantIssuer struct {
	IssueFunc func(email string, purpose models.Purpose) (*auth.Grant, error)
}

func (m *MockGrantIssuer) Issue(email string, purpose models.Purpose) (*auth.Grant, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(email, purpose)
	}
	return &auth.Grant{Token: "grant-token", ID: "grant-id"}, nil
}

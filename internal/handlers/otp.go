package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/passcode/internal/auth"
	"github.com/BradenHooton/passcode/internal/models"
	"github.com/BradenHooton/passcode/internal/services"
	pkghttp "github.com/BradenHooton/passcode/pkg/http"
	pkglogger "github.com/BradenHooton/passcode/pkg/logger"
)

const maxRequestBodyBytes = 4 << 10

// Actions accepted by the combined endpoint
const (
	ActionRequest = "request"
	ActionVerify  = "verify"
)

// OTPServiceInterface defines the interface for code issuance and verification
type OTPServiceInterface interface {
	RequestCode(ctx context.Context, email, purpose string) (*services.IssueResult, error)
	VerifyCode(ctx context.Context, email, purpose, code string) (models.VerifyResult, error)
}

// GrantIssuerInterface signs verification grants
type GrantIssuerInterface interface {
	Issue(email string, purpose models.Purpose) (*auth.Grant, error)
}

// OTPHandler handles one-time code HTTP requests
type OTPHandler struct {
	service  OTPServiceInterface
	grants   GrantIssuerInterface
	floor    *auth.ResponseFloor
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewOTPHandler creates a new OTPHandler
func NewOTPHandler(service OTPServiceInterface, grants GrantIssuerInterface, floor *auth.ResponseFloor, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *OTPHandler {
	return &OTPHandler{
		service:  service,
		grants:   grants,
		floor:    floor,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Request DTOs

// OTPRequest is the body of every OTP endpoint. Action is implied by the
// dedicated request and verify routes.
type OTPRequest struct {
	Action  string `json:"action" validate:"required,oneof=request verify"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Purpose string `json:"purpose" validate:"omitempty,oneof=signup password_reset"`
	Code    string `json:"code" validate:"omitempty,len=6,numeric"`
}

// Response DTOs

// CodeSentResponse is returned when a code was issued and handed off for delivery
type CodeSentResponse struct {
	Message   string    `json:"message"`
	ExpiresIn int       `json:"expires_in"` // seconds
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifiedResponse is returned when a code was accepted
type VerifiedResponse struct {
	Verified          bool      `json:"verified"`
	Email             string    `json:"email"`
	Purpose           string    `json:"purpose"`
	VerificationToken string    `json:"verification_token"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// Handle serves the combined endpoint, dispatching on the action field
// @Summary Request or verify a one-time code
// @Accept json
// @Param request body OTPRequest true "OTP request"
// @Produce json
// @Success 200 {object} VerifiedResponse
// @Success 202 {object} CodeSentResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Failure 500 {object} pkghttp.ErrorResponse
// @Router /v1/otp [post]
func (h *OTPHandler) Handle(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "")
}

// Request serves POST /v1/otp/request
func (h *OTPHandler) Request(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, ActionRequest)
}

// Verify serves POST /v1/otp/verify
func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, ActionVerify)
}

func (h *OTPHandler) serve(w http.ResponseWriter, r *http.Request, action string) {
	start := time.Now()

	var req OTPRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if action != "" {
		req.Action = action
	}
	req.Action = strings.ToLower(strings.TrimSpace(req.Action))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Purpose = strings.TrimSpace(req.Purpose)
	req.Code = strings.TrimSpace(req.Code)

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ctx := pkglogger.WithClientIP(r.Context(), pkghttp.ExtractClientIP(r, h.ipConfig))

	switch req.Action {
	case ActionRequest:
		h.requestCode(ctx, w, req)
	case ActionVerify:
		if req.Code == "" {
			pkghttp.WriteBadRequest(w, "validation failed: code: this field is required")
			return
		}
		h.verifyCode(ctx, w, req, start)
	}
}

func (h *OTPHandler) requestCode(ctx context.Context, w http.ResponseWriter, req OTPRequest) {
	result, err := h.service.RequestCode(ctx, req.Email, req.Purpose)
	if err != nil {
		var rlErr *models.RateLimitError
		switch {
		case errors.As(err, &rlErr):
			pkghttp.WriteTooManyRequests(w, "Too many code requests. Please try again later.", rlErr.RetryAfter)
		case isValidationError(err):
			pkghttp.WriteBadRequest(w, clientMessage(err))
		case errors.Is(err, models.ErrDeliveryFailed):
			pkghttp.WriteInternalError(w, "Unable to send verification code. Please try again later.")
		default:
			pkghttp.WriteInternalError(w, "An internal error occurred")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, CodeSentResponse{
		Message:   "A verification code has been sent",
		ExpiresIn: int(result.ExpiresIn / time.Second),
		ExpiresAt: result.ExpiresAt,
	})
}

func (h *OTPHandler) verifyCode(ctx context.Context, w http.ResponseWriter, req OTPRequest, start time.Time) {
	result, err := h.service.VerifyCode(ctx, req.Email, req.Purpose, req.Code)
	if err != nil {
		if isValidationError(err) {
			pkghttp.WriteBadRequest(w, clientMessage(err))
			return
		}
		pkghttp.WriteInternalError(w, "An internal error occurred")
		return
	}

	if result != models.VerifySuccess {
		h.floor.WaitFrom(ctx, start)
		pkghttp.WriteInvalidCode(w)
		return
	}

	purpose, _ := models.ParsePurpose(req.Purpose)
	grant, err := h.grants.Issue(req.Email, purpose)
	if err != nil {
		h.logger.Error("failed to issue verification grant",
			slog.String("email", pkglogger.SanitizedEmail(req.Email)),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "An internal error occurred")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, VerifiedResponse{
		Verified:          true,
		Email:             req.Email,
		Purpose:           purpose.String(),
		VerificationToken: grant.Token,
		ExpiresAt:         grant.ExpiresAt,
	})
}

func isValidationError(err error) bool {
	return errors.Is(err, models.ErrInvalidEmail) ||
		errors.Is(err, models.ErrInvalidPurpose) ||
		errors.Is(err, models.ErrMissingCode)
}

// clientMessage maps validation errors to fixed messages that never echo input
func clientMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidEmail):
		return "Invalid email address"
	case errors.Is(err, models.ErrInvalidPurpose):
		return "Invalid purpose"
	case errors.Is(err, models.ErrMissingCode):
		return "Code is required"
	default:
		return "Invalid request"
	}
}

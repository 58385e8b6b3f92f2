package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brightpath-hq/brightpath/domains/onboarding/be/service"
	platformauth "github.com/brightpath-hq/brightpath/platform/go/auth"
	platformlogging "github.com/brightpath-hq/brightpath/platform/go/logging"
)

const (
	problemTypeValidation  = "https://brightpath.app/problems/validation-error"
	problemTypeConflict    = "https://brightpath.app/problems/conflict"
	problemTypeExpired     = "https://brightpath.app/problems/session-expired"
	problemTypeSupport     = "https://brightpath.app/problems/contact-support"
	problemTypeUnavailable = "https://brightpath.app/problems/temporarily-unavailable"
)

// Handler wires the provisioning saga to the HTTP surface.
type Handler struct {
	saga   *service.Orchestrator
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(saga *service.Orchestrator, logger *zap.Logger) *Handler {
	if saga == nil {
		panic("orchestrator is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{saga: saga, logger: logger}
}

// Mount registers the onboarding routes.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/onboarding/complete", h.Complete)
	r.Post("/onboarding/resume", h.Resume)
}

type completeRequest struct {
	OrgName           string `json:"orgName"`
	OrgSlug           string `json:"orgSlug"`
	Email             string `json:"email"`
	Password          string `json:"password"`
	FullName          string `json:"fullName"`
	PackageID         string `json:"packageId"`
	CheckoutSessionID string `json:"checkoutSessionId"`
}

type resumeRequest struct {
	ResumeToken string `json:"resumeToken"`
}

type orgView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	Status string `json:"status"`
}

type subscriptionView struct {
	ID                   string    `json:"id"`
	StripeSubscriptionID string    `json:"stripeSubscriptionId"`
	BillingInterval      string    `json:"billingInterval"`
	Status               string    `json:"status"`
	CurrentPeriodStart   time.Time `json:"currentPeriodStart"`
	CurrentPeriodEnd     time.Time `json:"currentPeriodEnd"`
}

type userView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	OrgID string `json:"orgId,omitempty"`
}

type provisionResponse struct {
	Status       string            `json:"status"` // completed | paused
	Org          *orgView          `json:"org,omitempty"`
	Subscription *subscriptionView `json:"subscription,omitempty"`
	User         *userView         `json:"user,omitempty"`
	ResumeToken  string            `json:"resumeToken,omitempty"`
}

type problem struct {
	Type           string `json:"type"`
	Title          string `json:"title"`
	Status         int    `json:"status"`
	Detail         string `json:"detail,omitempty"`
	OrgID          string `json:"orgId,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	Email          string `json:"email,omitempty"`
}

// Complete runs the full provisioning saga after an external checkout.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	logger := platformlogging.FromRequest(r, h.logger)

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeProblem(w, problem{Type: problemTypeValidation, Title: "invalid request body", Status: http.StatusBadRequest})
		return
	}
	if req.Email == "" || req.OrgSlug == "" || req.CheckoutSessionID == "" {
		h.writeProblem(w, problem{
			Type:   problemTypeValidation,
			Title:  "email, orgSlug, and checkoutSessionId are required",
			Status: http.StatusBadRequest,
		})
		return
	}

	result, err := h.saga.Provision(r.Context(), service.ProvisionInput{
		OrgName:            req.OrgName,
		OrgSlug:            req.OrgSlug,
		Email:              req.Email,
		Password:           req.Password,
		FullName:           req.FullName,
		PackageID:          req.PackageID,
		CheckoutSessionRef: req.CheckoutSessionID,
	})
	if err != nil {
		h.writeError(w, logger, err)
		return
	}

	h.writeResult(w, result)
}

// Resume finishes a paused saga for the authenticated caller.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	logger := platformlogging.FromRequest(r, h.logger)

	creds, ok := platformauth.UserFromContext(r.Context())
	if !ok || creds == nil {
		h.writeProblem(w, problem{Type: problemTypeValidation, Title: "authentication required", Status: http.StatusUnauthorized})
		return
	}

	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ResumeToken == "" {
		h.writeProblem(w, problem{Type: problemTypeValidation, Title: "resumeToken is required", Status: http.StatusBadRequest})
		return
	}

	result, err := h.saga.Resume(r.Context(), req.ResumeToken, creds.Id)
	if err != nil {
		h.writeError(w, logger, err)
		return
	}

	h.writeResult(w, result)
}

func (h *Handler) writeResult(w http.ResponseWriter, result service.ProvisionResult) {
	resp := provisionResponse{Status: "completed"}

	if result.Org.ID != uuid.Nil {
		resp.Org = &orgView{
			ID:     result.Org.ID.String(),
			Name:   result.Org.Name,
			Slug:   result.Org.Slug,
			Status: string(result.Org.Status),
		}
	}
	if result.Subscription.ID != uuid.Nil {
		resp.Subscription = &subscriptionView{
			ID:                   result.Subscription.ID.String(),
			StripeSubscriptionID: result.Subscription.StripeSubscriptionID,
			BillingInterval:      string(result.Subscription.BillingInterval),
			Status:               result.Subscription.Status,
			CurrentPeriodStart:   result.Subscription.CurrentPeriodStart,
			CurrentPeriodEnd:     result.Subscription.CurrentPeriodEnd,
		}
	}
	if result.User != nil {
		view := userView{
			ID:    result.User.ID.String(),
			Email: result.User.Email,
			Role:  result.User.Role,
		}
		if result.User.OrgID != nil {
			view.OrgID = result.User.OrgID.String()
		}
		resp.User = &view
	}

	status := http.StatusCreated
	if result.Paused {
		resp.Status = "paused"
		resp.ResumeToken = result.ResumeToken
		status = http.StatusAccepted
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	p := problem{Detail: err.Error()}

	var support *service.SupportError
	if errors.As(err, &support) {
		if support.OrgID != uuid.Nil {
			p.OrgID = support.OrgID.String()
		}
		p.SubscriptionID = support.SubscriptionID
		p.Email = support.Email
	}

	switch {
	case errors.Is(err, service.ErrSessionExpired):
		p.Type = problemTypeExpired
		p.Title = "resumption window expired"
		p.Status = http.StatusGone
	case errors.Is(err, service.ErrInvalidResumeToken):
		p.Type = problemTypeValidation
		p.Title = "invalid resume token"
		p.Status = http.StatusBadRequest
	case errors.Is(err, service.ErrIncompletePaymentFacts),
		errors.Is(err, service.ErrMissingPackageReference):
		p.Type = problemTypeValidation
		p.Title = "payment could not be confirmed"
		p.Status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrSubscriptionMismatch),
		errors.Is(err, service.ErrOrgMismatch),
		errors.Is(err, service.ErrUnrecoverableIdentity):
		p.Type = problemTypeSupport
		p.Title = "provisioning requires manual support"
		p.Status = http.StatusConflict
	default:
		logger.Error("provisioning request failed", zap.Error(err))
		p.Type = problemTypeUnavailable
		p.Title = "provisioning temporarily unavailable, retry shortly"
		p.Status = http.StatusServiceUnavailable
	}

	h.writeProblem(w, p)
}

func (h *Handler) writeProblem(w http.ResponseWriter, p problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

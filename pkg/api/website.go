package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/diaspora-enterprise/website/pkg/apiresponses"
	"github.com/diaspora-enterprise/website/pkg/audit"
	"github.com/diaspora-enterprise/website/pkg/config"
	"github.com/diaspora-enterprise/website/pkg/contact"
	"github.com/diaspora-enterprise/website/pkg/mail"
	"github.com/diaspora-enterprise/website/pkg/metrics"
	"github.com/diaspora-enterprise/website/pkg/ratelimit"
)

// ContactController serves the public contact-form endpoint. Submissions are
// validated, persisted and then handed to the mail queue; SMTP trouble never
// bubbles up to the visitor.
type ContactController struct {
	store *contact.Store
	queue *mail.Queue
	audit *audit.Service
	cfg   config.Config
	log   *zap.SugaredLogger

	limiter *ratelimit.IPRateLimiter
}

// NewContactController wires the contact endpoint.
func NewContactController(store *contact.Store, queue *mail.Queue, auditSvc *audit.Service,
	cfg config.Config, log *zap.SugaredLogger,
) *ContactController {
	return &ContactController{
		store:   store,
		queue:   queue,
		audit:   auditSvc,
		cfg:     cfg,
		log:     log.Named("contact"),
		limiter: ratelimit.New(ratelimit.ContactFormConfig()),
	}
}

func (cc *ContactController) BasePath() string { return "contact" }

func (cc *ContactController) Handlers() []gin.HandlerFunc {
	return []gin.HandlerFunc{cc.limiter.Middleware()}
}

func (cc *ContactController) Register(rg *gin.RouterGroup) error {
	rg.POST("", cc.submit)
	return nil
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type contactResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

func (cc *ContactController) submit(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponses.RespondBadRequest(c, "request body must be valid JSON")
		return
	}

	submission := contact.Contact{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Subject: req.Subject,
		Message: req.Message,
	}
	submission.Normalize()

	if err := submission.Validate(); err != nil {
		metrics.ContactValidationFailures.Inc()
		var verrs contact.ValidationErrors
		if errors.As(err, &verrs) {
			apiresponses.RespondValidationFailed(c, verrs)
			return
		}
		apiresponses.RespondBadRequest(c, err.Error())
		return
	}

	if err := cc.store.Create(c.Request.Context(), &submission); err != nil {
		apiresponses.RespondInternalError(c, "save contact submission", err, cc.log)
		return
	}

	metrics.ContactSubmissions.Inc()
	cc.audit.Emit(audit.NewEvent(audit.EventContactSubmitted).
		WithSourceIP(c.ClientIP()).
		WithSubject(submission.ID).
		WithDetail("email", submission.Email).
		WithDetail("subject", submission.Subject))

	cc.notifyAdmin(submission)

	apiresponses.RespondCreated(c, contactResponse{
		ID:        submission.ID,
		CreatedAt: submission.CreatedAt,
	})
}

// notifyAdmin enqueues the notification email. Failures are logged only; the
// submission is already persisted and the visitor gets a success either way.
func (cc *ContactController) notifyAdmin(submission contact.Contact) {
	if cc.cfg.Mail.AdminAddress == "" {
		cc.log.Debug("No admin address configured, skipping contact notification")
		return
	}

	body, err := mail.RenderContactNotification(mail.ContactMailParams{
		SiteName:    cc.cfg.Site.Name,
		Name:        submission.Name,
		Email:       submission.Email,
		Phone:       submission.Phone,
		Subject:     submission.Subject,
		Message:     submission.Message,
		SubmittedAt: submission.CreatedAt.Format(time.RFC1123),
		AdminURL:    adminContactURL(cc.cfg.Site.BaseURL, submission.ID),
	})
	if err != nil {
		cc.log.Errorw("Could not render contact notification", "error", err, "contactID", submission.ID)
		return
	}

	subject := fmt.Sprintf("[%s] New contact: %s", cc.cfg.Site.Name, submission.Subject)
	err = cc.queue.Enqueue(submission.ID, []string{cc.cfg.Mail.AdminAddress}, subject, body)
	if err != nil {
		cc.log.Errorw("Could not enqueue contact notification", "error", err, "contactID", submission.ID)
	}
}

func adminContactURL(baseURL, id string) string {
	if baseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/admin/contacts/%s", baseURL, id)
}

package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/diaspora-enterprise/website/pkg/apiresponses"
	"github.com/diaspora-enterprise/website/pkg/audit"
	"github.com/diaspora-enterprise/website/pkg/config"
	"github.com/diaspora-enterprise/website/pkg/contact"
	"github.com/diaspora-enterprise/website/pkg/mail"
	"github.com/diaspora-enterprise/website/pkg/ratelimit"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// AdminController serves the authenticated admin API: browsing contact
// submissions, managing their read state and notes, and sending a delivery
// check through the mail transport.
type AdminController struct {
	store  *contact.Store
	sender mail.Sender
	auth   *AuthHandler
	audit  *audit.Service
	cfg    config.Config
	log    *zap.SugaredLogger

	loginLimiter *ratelimit.IPRateLimiter
}

// NewAdminController wires the admin endpoints.
func NewAdminController(store *contact.Store, sender mail.Sender, auth *AuthHandler,
	auditSvc *audit.Service, cfg config.Config, log *zap.SugaredLogger,
) *AdminController {
	return &AdminController{
		store:        store,
		sender:       sender,
		auth:         auth,
		audit:        auditSvc,
		cfg:          cfg,
		log:          log.Named("admin"),
		loginLimiter: ratelimit.New(ratelimit.LoginConfig()),
	}
}

func (ac *AdminController) BasePath() string { return "admin" }

func (ac *AdminController) Handlers() []gin.HandlerFunc { return nil }

func (ac *AdminController) Register(rg *gin.RouterGroup) error {
	rg.POST("/login", ac.loginLimiter.Middleware(), ac.auth.LoginHandler)

	authed := rg.Group("", ac.auth.Middleware())
	authed.GET("/contacts", ac.listContacts)
	authed.GET("/contacts/:id", ac.getContact)
	authed.POST("/contacts/:id/read", ac.markRead)
	authed.POST("/contacts/:id/unread", ac.markUnread)
	authed.PUT("/contacts/:id/notes", ac.updateNotes)
	authed.GET("/stats", ac.getStats)
	authed.POST("/testmail", ac.sendTestMail)
	return nil
}

type contactListResponse struct {
	Contacts []contact.Contact `json:"contacts"`
	Count    int               `json:"count"`
}

func (ac *AdminController) listContacts(c *gin.Context) {
	filter := contact.Filter{
		Query: c.Query("q"),
		Limit: defaultListLimit,
	}

	if readParam := c.Query("read"); readParam != "" {
		read, err := strconv.ParseBool(readParam)
		if err != nil {
			apiresponses.RespondBadRequest(c, "read must be true or false")
			return
		}
		filter.Read = &read
	}
	if limitParam := c.Query("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit < 1 {
			apiresponses.RespondBadRequest(c, "limit must be a positive integer")
			return
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		filter.Limit = limit
	}
	if offsetParam := c.Query("offset"); offsetParam != "" {
		offset, err := strconv.Atoi(offsetParam)
		if err != nil || offset < 0 {
			apiresponses.RespondBadRequest(c, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	contacts, err := ac.store.List(c.Request.Context(), filter)
	if err != nil {
		apiresponses.RespondInternalError(c, "list contacts", err, ac.log)
		return
	}
	if contacts == nil {
		contacts = []contact.Contact{}
	}

	apiresponses.RespondOK(c, contactListResponse{Contacts: contacts, Count: len(contacts)})
}

func (ac *AdminController) getContact(c *gin.Context) {
	id := c.Param("id")
	submission, err := ac.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, contact.ErrNotFound) {
			apiresponses.RespondNotFound(c, "contact", id)
			return
		}
		apiresponses.RespondInternalError(c, "load contact", err, ac.log)
		return
	}
	apiresponses.RespondOK(c, submission)
}

func (ac *AdminController) markRead(c *gin.Context) {
	ac.setReadState(c, true)
}

func (ac *AdminController) markUnread(c *gin.Context) {
	ac.setReadState(c, false)
}

func (ac *AdminController) setReadState(c *gin.Context, read bool) {
	id := c.Param("id")

	var err error
	eventType := audit.EventContactRead
	if read {
		err = ac.store.MarkRead(c.Request.Context(), id)
	} else {
		err = ac.store.MarkUnread(c.Request.Context(), id)
		eventType = audit.EventContactUnread
	}
	if err != nil {
		if errors.Is(err, contact.ErrNotFound) {
			apiresponses.RespondNotFound(c, "contact", id)
			return
		}
		apiresponses.RespondInternalError(c, "update contact read state", err, ac.log)
		return
	}

	ac.audit.Emit(audit.NewEvent(eventType).
		WithActor(c.GetString("username")).
		WithSourceIP(c.ClientIP()).
		WithSubject(id))

	apiresponses.RespondNoContent(c)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (ac *AdminController) updateNotes(c *gin.Context) {
	id := c.Param("id")

	var req notesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponses.RespondBadRequest(c, "request body must be valid JSON")
		return
	}

	if err := ac.store.UpdateNotes(c.Request.Context(), id, req.Notes); err != nil {
		if errors.Is(err, contact.ErrNotFound) {
			apiresponses.RespondNotFound(c, "contact", id)
			return
		}
		apiresponses.RespondInternalError(c, "update contact notes", err, ac.log)
		return
	}

	ac.audit.Emit(audit.NewEvent(audit.EventContactNotesUpdated).
		WithActor(c.GetString("username")).
		WithSourceIP(c.ClientIP()).
		WithSubject(id))

	apiresponses.RespondNoContent(c)
}

func (ac *AdminController) getStats(c *gin.Context) {
	counts, err := ac.store.GetCounts(c.Request.Context())
	if err != nil {
		apiresponses.RespondInternalError(c, "load contact stats", err, ac.log)
		return
	}
	apiresponses.RespondOK(c, counts)
}

type testMailRequest struct {
	Receiver string `json:"receiver"`
}

type testMailResponse struct {
	Receiver  string `json:"receiver"`
	Host      string `json:"host"`
	Mechanism string `json:"mechanism"`
}

// sendTestMail pushes a delivery-check message through the real transport,
// bypassing the queue so the admin sees the outcome immediately.
func (ac *AdminController) sendTestMail(c *gin.Context) {
	var req testMailRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apiresponses.RespondBadRequest(c, "request body must be valid JSON")
			return
		}
	}
	receiver := req.Receiver
	if receiver == "" {
		receiver = ac.cfg.Mail.AdminAddress
	}
	if receiver == "" {
		apiresponses.RespondBadRequest(c, "no receiver given and no admin address configured")
		return
	}

	mechanism := "XOAUTH2"
	if ac.cfg.Mail.Username != "" && ac.cfg.Mail.Password != "" {
		mechanism = "PLAIN"
	}

	body, err := mail.RenderTestMessage(mail.TestMailParams{
		SiteName:  ac.cfg.Site.Name,
		Host:      ac.sender.GetHost(),
		Mechanism: mechanism,
		SentAt:    time.Now().Format(time.RFC1123),
	})
	if err != nil {
		apiresponses.RespondInternalError(c, "render test message", err, ac.log)
		return
	}

	subject := ac.cfg.Site.Name + " delivery check"
	if err := ac.sender.Send([]string{receiver}, subject, body); err != nil {
		ac.audit.Emit(audit.NewEvent(audit.EventMailFailed).
			WithActor(c.GetString("username")).
			WithSubject(ac.sender.GetHost()).
			WithDetail("receiver", receiver).
			WithDetail("error", err.Error()))
		apiresponses.RespondInternalError(c, "send test mail", err, ac.log)
		return
	}

	ac.audit.Emit(audit.NewEvent(audit.EventMailSent).
		WithActor(c.GetString("username")).
		WithSubject(ac.sender.GetHost()).
		WithDetail("receiver", receiver))

	apiresponses.RespondOK(c, testMailResponse{
		Receiver:  receiver,
		Host:      ac.sender.GetHost(),
		Mechanism: mechanism,
	})
}

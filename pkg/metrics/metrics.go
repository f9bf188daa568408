// Package metrics defines Prometheus metrics for the website backend,
// covering contact-form submissions, outbound mail delivery, OAuth2 token
// acquisition, and admin authentication.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Contact form metrics
	ContactSubmissions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "website_contact_submissions_total",
		Help: "Total number of contact-form submissions persisted",
	})
	ContactValidationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "website_contact_validation_failures_total",
		Help: "Total number of contact-form submissions rejected by validation",
	})

	// Mail metrics, labelled by SMTP host
	MailQueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "website_mail_queued_total",
		Help: "Total number of emails accepted into the outbound queue",
	}, []string{"host"})
	MailQueueDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "website_mail_queue_dropped_total",
		Help: "Total number of emails dropped because the queue was full or stopped",
	}, []string{"host"})
	MailSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "website_mail_sent_total",
		Help: "Total number of emails delivered to the SMTP server",
	}, []string{"host"})
	MailFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "website_mail_failed_total",
		Help: "Total number of emails that failed after all retries",
	}, []string{"host"})
	MailRetryScheduled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "website_mail_retry_scheduled_total",
		Help: "Total number of email delivery retries scheduled",
	}, []string{"host"})
	MailAuthFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "website_mail_auth_failures_total",
		Help: "Total number of SMTP authentication rejections",
	}, []string{"host", "mechanism"})

	// OAuth2 token provider metrics
	TokenCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "website_token_cache_hits_total",
		Help: "Total number of access-token requests served from the cache",
	})
	TokenCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "website_token_cache_misses_total",
		Help: "Total number of access-token requests that required a network acquisition",
	})
	TokenAcquisitionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "website_token_acquisition_failures_total",
		Help: "Total number of failed client-credentials grants, by provider error code",
	}, []string{"code"})

	// Admin auth metrics
	AdminLogins = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "website_admin_logins_total",
		Help: "Total number of successful admin logins",
	})
	AdminLoginFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "website_admin_login_failures_total",
		Help: "Total number of rejected admin login attempts",
	})

	// Audit metrics
	AuditEventsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "website_audit_events_emitted_total",
		Help: "Total number of audit events written, by sink",
	}, []string{"sink"})
	AuditEventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "website_audit_events_dropped_total",
		Help: "Total number of audit events dropped, by sink",
	}, []string{"sink"})
)

func init() {
	prometheus.MustRegister(ContactSubmissions)
	prometheus.MustRegister(ContactValidationFailures)
	prometheus.MustRegister(MailQueued)
	prometheus.MustRegister(MailQueueDropped)
	prometheus.MustRegister(MailSent)
	prometheus.MustRegister(MailFailed)
	prometheus.MustRegister(MailRetryScheduled)
	prometheus.MustRegister(MailAuthFailures)
	prometheus.MustRegister(TokenCacheHits)
	prometheus.MustRegister(TokenCacheMisses)
	prometheus.MustRegister(TokenAcquisitionFailures)
	prometheus.MustRegister(AdminLogins)
	prometheus.MustRegister(AdminLoginFailures)
	prometheus.MustRegister(AuditEventsEmitted)
	prometheus.MustRegister(AuditEventsDropped)
}

// MetricsHandler returns the HTTP handler serving the Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

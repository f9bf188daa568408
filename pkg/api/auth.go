package api

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/diaspora-enterprise/website/pkg/apiresponses"
	"github.com/diaspora-enterprise/website/pkg/audit"
	"github.com/diaspora-enterprise/website/pkg/config"
	"github.com/diaspora-enterprise/website/pkg/metrics"
)

const (
	AuthHeaderKey = "Authorization"

	adminSubject = "admin"
	tokenIssuer  = "diaspora-website"
)

// AuthHandler issues and verifies the HS256 session tokens guarding the
// admin API. There is a single admin identity; the login password comes
// from configuration.
type AuthHandler struct {
	secret   []byte
	password string
	ttl      time.Duration

	log   *zap.SugaredLogger
	audit *audit.Service
}

// NewAuth creates the admin auth handler. When no token secret is
// configured a random one is generated, which invalidates sessions across
// restarts.
func NewAuth(log *zap.SugaredLogger, cfg config.Config, auditSvc *audit.Service) *AuthHandler {
	secret := []byte(cfg.Admin.TokenSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			log.Fatalf("Could not generate session token secret: %v", err)
		}
		log.Warn("No admin token secret configured, generated an ephemeral one; sessions will not survive restarts")
	}

	return &AuthHandler{
		secret:   secret,
		password: cfg.Admin.Password,
		ttl:      time.Duration(cfg.Admin.SessionTTLMinutes) * time.Minute,
		log:      log,
		audit:    auditSvc,
	}
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LoginHandler exchanges the admin password for a session token.
func (a *AuthHandler) LoginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponses.RespondBadRequest(c, "password is required")
		return
	}

	if a.password == "" {
		a.log.Warn("Admin login attempted but no admin password is configured")
		apiresponses.RespondServiceUnavailable(c, "admin login")
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(a.password)) != 1 {
		metrics.AdminLoginFailures.Inc()
		a.emit(audit.NewEvent(audit.EventAdminLoginDenied).WithSourceIP(c.ClientIP()))
		apiresponses.RespondUnauthorizedWithMessage(c, "invalid credentials")
		return
	}

	expiresAt := time.Now().Add(a.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   adminSubject,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		apiresponses.RespondInternalError(c, "issue session token", err, a.log)
		return
	}

	metrics.AdminLogins.Inc()
	a.emit(audit.NewEvent(audit.EventAdminLogin).
		WithActor(adminSubject).
		WithSourceIP(c.ClientIP()))

	apiresponses.RespondOK(c, loginResponse{Token: token, ExpiresAt: expiresAt})
}

// Middleware verifies the Bearer session token on admin routes.
func (a *AuthHandler) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		authHeader := c.GetHeader(AuthHeaderKey)
		// delete the header to avoid logging it by accident
		c.Request.Header.Del(AuthHeaderKey)
		if !strings.HasPrefix(authHeader, "Bearer ") {
			apiresponses.RespondUnauthorizedWithMessage(c, "no Bearer token provided in Authorization header")
			c.Abort()
			return
		}
		bearer := authHeader[7:]

		claims := jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(bearer, &claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.secret, nil
		})
		if err != nil {
			apiresponses.RespondUnauthorizedWithMessage(c, err.Error())
			c.Abort()
			return
		}
		if claims.Issuer != tokenIssuer || claims.Subject != adminSubject {
			apiresponses.RespondUnauthorizedWithMessage(c, "token was not issued for this API")
			c.Abort()
			return
		}

		c.Set("username", claims.Subject)
		c.Next()
	}
}

func (a *AuthHandler) emit(event *audit.Event) {
	if a.audit != nil {
		a.audit.Emit(event)
	}
}

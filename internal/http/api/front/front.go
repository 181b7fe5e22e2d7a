// Package front registers the user-facing API under /v1.
package front

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/trustlend/trustlend/internal/analysis"
	"github.com/trustlend/trustlend/internal/assessment"
	"github.com/trustlend/trustlend/internal/chain"
	"github.com/trustlend/trustlend/internal/config"
	"github.com/trustlend/trustlend/internal/document"
	"github.com/trustlend/trustlend/internal/http/api/front/handlers"
	"github.com/trustlend/trustlend/internal/loanrequest"
	"github.com/trustlend/trustlend/internal/passport"
	"github.com/trustlend/trustlend/internal/profile"
	"github.com/trustlend/trustlend/internal/ratelimit"
	"github.com/trustlend/trustlend/internal/security"
	"github.com/trustlend/trustlend/internal/vault"
	"github.com/trustlend/trustlend/internal/vision"
	"github.com/trustlend/trustlend/internal/wallet"
	"gorm.io/gorm"
)

// Services bundles the domain services the routes call.
type Services struct {
	Profiles     *profile.Service
	Wallets      *wallet.Service
	Passport     *passport.Client
	LoanRequests *loanrequest.Service
	Documents    *document.Service
	Assessments  *assessment.Service
	Analyzer     *analysis.Analyzer
	Vision       *vision.Client
	Vault        *vault.Service
	Publisher    *chain.Publisher
	Limiter      *ratelimit.Manager
}

// RegisterFrontRoutes registers health and /v1 routes.
func RegisterFrontRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, svc Services) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	authed := r.Group("/v1")
	authed.Use(userAuthMiddleware(svc.Profiles, jwtCfg))

	meHandler := handlers.NewMeHandler(svc.Profiles)
	authed.GET("/me", meHandler.Get)
	authed.PUT("/me/profile", meHandler.UpdateProfile)
	authed.GET("/me/credits", meHandler.Credits)
	authed.POST("/me/credits", meHandler.AddCredits)

	walletHandler := handlers.NewWalletHandler(svc.Wallets, svc.Passport)
	authed.GET("/wallets", walletHandler.List)
	authed.POST("/wallets", walletHandler.Add)
	authed.GET("/wallets/:id", walletHandler.Get)
	authed.POST("/wallets/:id/primary", walletHandler.SetPrimary)
	authed.DELETE("/wallets/:id", walletHandler.Remove)
	authed.POST("/wallets/:id/humanity-score", rateLimitMiddleware(svc.Limiter, ratelimit.RouteHumanityScore), walletHandler.RefreshHumanityScore)
	authed.POST("/verify-score", rateLimitMiddleware(svc.Limiter, ratelimit.RouteHumanityScore), walletHandler.VerifyScore)

	loanRequestHandler := handlers.NewLoanRequestHandler(svc.LoanRequests, svc.Documents, svc.Publisher)
	authed.GET("/loan-requests", loanRequestHandler.List)
	authed.POST("/loan-requests", loanRequestHandler.Create)
	authed.GET("/loan-requests/:shortId", loanRequestHandler.Get)
	authed.PATCH("/loan-requests/:shortId", loanRequestHandler.Update)
	authed.POST("/loan-requests/:shortId/publish", loanRequestHandler.Publish)
	authed.GET("/loan-requests/:shortId/documents", loanRequestHandler.Documents)

	marketplaceHandler := handlers.NewMarketplaceHandler(svc.LoanRequests, svc.Publisher)
	authed.GET("/marketplace", marketplaceHandler.List)
	authed.GET("/marketplace/:shortId", marketplaceHandler.Get)
	authed.POST("/marketplace/:shortId/fund", marketplaceHandler.Fund)

	documentHandler := handlers.NewDocumentHandler(svc.Documents, svc.Vision)
	authed.POST("/documents/analyze", rateLimitMiddleware(svc.Limiter, ratelimit.RouteVision), documentHandler.Analyze)
	authed.POST("/documents", documentHandler.Upload)
	authed.GET("/documents", documentHandler.List)
	authed.GET("/documents/history", documentHandler.History)
	authed.DELETE("/documents/:id", documentHandler.Delete)

	assessmentHandler := handlers.NewAssessmentHandler(svc.Assessments)
	authed.POST("/assessments", assessmentHandler.Create)
	authed.GET("/assessments/borrower", assessmentHandler.ListForBorrower)
	authed.GET("/assessments/lender", assessmentHandler.ListForLender)
	authed.POST("/assessments/:id/approve", assessmentHandler.Approve)
	authed.POST("/assessments/:id/decline", assessmentHandler.Decline)
	authed.POST("/assessments/:id/process", rateLimitMiddleware(svc.Limiter, ratelimit.RouteAssessment), assessmentHandler.Process)

	aiHandler := handlers.NewAIHandler(svc.Analyzer)
	authed.POST("/ai/trust-score", rateLimitMiddleware(svc.Limiter, ratelimit.RouteAnalysis), aiHandler.TrustScore)

	vaultHandler := handlers.NewVaultHandler(svc.Vault)
	authed.POST("/vault", vaultHandler.Operate)
	authed.POST("/keypair", vaultHandler.GenerateKeypair)
	authed.GET("/keypair", vaultHandler.GetKeypair)
}

// userAuthMiddleware validates identity tokens and provisions the caller.
func userAuthMiddleware(profiles *profile.Service, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseIdentityToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		user, errProvision := profiles.Provision(c.Request.Context(), claims.Subject, claims.Email, claims.Name, "")
		if errProvision != nil {
			log.WithError(errProvision).WithField("subject", claims.Subject).Error("provision user failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "provision user failed"})
			return
		}
		c.Set(handlers.ContextUserIDKey, user.ID)
		c.Next()
	}
}

// rateLimitMiddleware limits route calls per authenticated user.
func rateLimitMiddleware(limiter *ratelimit.Manager, route ratelimit.Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, _ := c.Get(handlers.ContextUserIDKey)
		userID, _ := raw.(uint64)
		result, errAllow := limiter.Allow(c.Request.Context(), ratelimit.Key(userID, route))
		if errAllow != nil {
			log.WithError(errAllow).Warn("rate limit check failed")
			c.Next()
			return
		}
		if !result.Allowed {
			if !result.Reset.IsZero() {
				c.Header("X-RateLimit-Reset", result.Reset.Format(http.TimeFormat))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// RequestLogger logs each request through logrus.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	}
}

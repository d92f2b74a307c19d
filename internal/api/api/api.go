package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/wb-go/wbf/ginext"

	"confreg/cmd/middleware"
	"confreg/internal/csrf"
	"confreg/internal/service"
	"confreg/internal/session"
)

type Routers struct {
	Service      service.Service
	Sessions     session.Store
	Tokens       *csrf.Tokens
	CookieName   string
	AllowOrigins []string
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(corsMiddleware(r.AllowOrigins))
	app.Use(middleware.Session(r.Sessions, r.CookieName))

	apiGroup := app.Group("/v1")
	apiGroup.GET("/csrf-token", r.Service.IssueCSRFToken)

	authed := apiGroup.Group("")
	authed.Use(middleware.RequireActor(), middleware.CSRF(r.Tokens))

	authed.GET("/me", r.Service.Me)
	authed.GET("/hospitals", r.Service.ListHospitals)
	authed.GET("/registration-types", r.Service.ListRegistrationTypes)

	authed.GET("/attendees", r.Service.ListAttendees)
	authed.POST("/attendees", r.Service.CreateAttendee)
	authed.POST("/attendees/import", r.Service.ImportAttendees)

	authed.POST("/payments", r.Service.SubmitPayment)
	authed.GET("/payments", r.Service.ListPayments)
	authed.GET("/payments/:id", r.Service.GetPayment)
	authed.GET("/proofs/:name", r.Service.ServeProof)

	admin := authed.Group("")
	admin.Use(middleware.RequireAdmin())
	admin.POST("/hospitals", r.Service.CreateHospital)
	admin.POST("/payments/:id/decision", r.Service.DecidePayment)
	admin.GET("/audit-logs", r.Service.ListAuditLogs)

	return app
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return cors.Default()
	}
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	cfg.AddAllowHeaders("Authorization", "X-CSRF-Token", "X-XSRF-Token")
	return cors.New(cfg)
}

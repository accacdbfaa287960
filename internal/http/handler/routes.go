package handler

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/gofiber/swagger"

	"doclocker/docs"
	"doclocker/internal/http/middleware"
	"doclocker/internal/model"
	"doclocker/internal/service"
)

// Deps are the collaborators the HTTP layer is built from. Auth and
// ScanLimit are middleware; a nil Auth rejects every protected request and
// a nil ScanLimit disables rate limiting.
type Deps struct {
	DB        *sql.DB
	Documents service.DocumentService
	QRCodes   service.QRCodeService
	ScanLogs  service.ScanLogService
	Auth      fiber.Handler
	ScanLimit fiber.Handler
	Metrics   http.Handler
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	auth := d.Auth
	if auth == nil {
		auth = func(*fiber.Ctx) error {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
		}
	}
	scanLimit := d.ScanLimit
	if scanLimit == nil {
		scanLimit = func(c *fiber.Ctx) error { return c.Next() }
	}

	app.Get("/health", HealthCheck(d.DB))
	app.Get("/healthz", LivenessProbe())
	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics))
	}
	app.Get("/swagger/*", swaggerUI())

	documents := app.Group("/documents", auth)
	documents.Get("/", ListDocuments(d.Documents))
	documents.Post("/", middleware.RequireRole(model.RoleSupervisor), UploadDocument(d.Documents))
	documents.Get("/:id", GetDocument(d.Documents))
	documents.Put("/:id", UpdateDocument(d.Documents))
	documents.Delete("/:id", DeleteDocument(d.Documents))
	documents.Post("/:id/versions", AddVersion(d.Documents))
	documents.Get("/:id/versions", ListVersions(d.Documents))
	documents.Get("/:id/versions/:version/file", DownloadVersion(d.Documents))

	qrcodes := app.Group("/qrcodes", auth)
	qrcodes.Post("/", CreateQRCode(d.QRCodes))
	qrcodes.Post("/regenerate", RegenerateQRCode(d.QRCodes))
	qrcodes.Get("/:qrId", GetQRCode(d.QRCodes))
	qrcodes.Get("/:qrId/view", scanLimit, ViewQRCode(d.QRCodes))
	qrcodes.Delete("/:qrId", middleware.RequireRole(model.RoleAdmin), DeactivateQRCode(d.QRCodes))
	qrcodes.Get("/:qrId/stats", middleware.RequireRole(model.RoleSupervisor), QRCodeStats(d.QRCodes))

	logs := app.Group("/logs", auth, middleware.RequireRole(model.RoleSupervisor))
	logs.Get("/scan", ScanLogs(d.ScanLogs))
	logs.Get("/analytics", ScanAnalytics(d.ScanLogs))
	logs.Get("/aggregate", ScanAggregate(d.ScanLogs))
}

// swaggerUI serves the generated API docs with the request's host and scheme.
func swaggerUI() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
		}

		// SwaggerInfo is package state, so it must not alias the request buffer.
		docs.SwaggerInfo.Host = utils.CopyString(c.Get("Host"))
		docs.SwaggerInfo.Schemes = []string{utils.CopyString(scheme)}

		return swagger.HandlerDefault(c)
	}
}

package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"whatsapp-bot/services"
)

// RequireTenant resolves the tenant named in the X-Tenant-ID header and puts
// it in locals for downstream handlers. Dashboard and admin routes are all
// tenant-scoped; a request without a valid tenant goes no further.
func RequireTenant(c *fiber.Ctx) error {
	tenantID := c.Get("X-Tenant-ID")
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "X-Tenant-ID header required",
		})
	}

	tenant, err := services.GetTenantByID(c.Context(), tenantID)
	if err != nil {
		slog.Warn("Tenant lookup failed", "tenantID", tenantID, "error", err)
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Tenant not found",
		})
	}

	if !tenant.IsActive {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Tenant is inactive",
		})
	}

	c.Locals("tenant_id", tenant.TenantID)
	c.Locals("tenant", tenant)

	return c.Next()
}

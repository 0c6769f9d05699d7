package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"whatsapp-bot/services"
)

// ListLeads returns a page of the tenant's leads, filterable by status and
// attendance.
func ListLeads(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	status := c.Query("status")
	attendedBy := c.Query("attended_by")

	leads, total, err := services.GetLeads(c.Context(), tenantID, status, attendedBy, page, limit)
	if err != nil {
		slog.Error("Failed to list leads", "tenantID", tenantID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list leads",
		})
	}

	return c.JSON(fiber.Map{
		"leads": leads,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// GetLeadConversation returns one lead's message ledger, newest first.
func GetLeadConversation(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)
	phone := services.NormalizePhone(c.Params("phone"))

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)

	messages, total, err := services.GetLeadMessages(c.Context(), tenantID, phone, page, limit)
	if err != nil {
		slog.Error("Failed to load conversation", "tenantID", tenantID, "phone", phone, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load conversation",
		})
	}

	return c.JSON(fiber.Map{
		"messages": messages,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

// ResetLeadToAI returns a handed-off lead to automated attendance. This is
// the only way a lead leaves seller or manager attendance.
func ResetLeadToAI(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)
	phone := services.NormalizePhone(c.Params("phone"))

	if err := services.ResetLeadToAI(c.Context(), tenantID, phone); err != nil {
		slog.Warn("Failed to reset lead", "tenantID", tenantID, "phone", phone, "error", err)
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"phone":       phone,
		"attended_by": "ai",
	})
}

// ArchiveLead soft-deletes a lead.
func ArchiveLead(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)
	phone := services.NormalizePhone(c.Params("phone"))

	if err := services.ArchiveLead(c.Context(), tenantID, phone); err != nil {
		slog.Warn("Failed to archive lead", "tenantID", tenantID, "phone", phone, "error", err)
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"phone":  phone,
		"status": "archived",
	})
}

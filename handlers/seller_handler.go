package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"whatsapp-bot/models"
	"whatsapp-bot/services"
)

// ListSellers returns the tenant's sellers with their current load.
func ListSellers(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)

	sellers, err := services.GetSellers(c.Context(), tenantID)
	if err != nil {
		slog.Error("Failed to list sellers", "tenantID", tenantID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list sellers",
		})
	}

	return c.JSON(fiber.Map{"sellers": sellers})
}

// CreateSellerRequest is the body for registering a seller.
type CreateSellerRequest struct {
	SellerID string `json:"seller_id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	IsActive bool   `json:"is_active"`
}

// CreateSeller registers a new seller for the tenant.
func CreateSeller(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)

	var req CreateSellerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.SellerID == "" || req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "seller_id and name are required",
		})
	}

	seller := &models.Seller{
		SellerID: req.SellerID,
		TenantID: tenantID,
		Name:     req.Name,
		Phone:    services.NormalizePhone(req.Phone),
		IsActive: req.IsActive,
	}

	if err := services.CreateSeller(c.Context(), seller); err != nil {
		slog.Error("Failed to create seller", "tenantID", tenantID, "error", err)
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(seller)
}

// ActivateSeller makes a seller eligible for new assignments.
func ActivateSeller(c *fiber.Ctx) error {
	return setSellerActive(c, true)
}

// DeactivateSeller removes a seller from distribution without touching its
// open leads.
func DeactivateSeller(c *fiber.Ctx) error {
	return setSellerActive(c, false)
}

func setSellerActive(c *fiber.Ctx, active bool) error {
	tenantID := c.Locals("tenant_id").(string)
	sellerID := c.Params("sellerId")

	if err := services.SetSellerActive(c.Context(), tenantID, sellerID, active); err != nil {
		slog.Warn("Failed to update seller availability",
			"tenantID", tenantID,
			"sellerID", sellerID,
			"error", err)
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"seller_id": sellerID,
		"is_active": active,
	})
}

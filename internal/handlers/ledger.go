package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"loyka/internal/errors"
	"loyka/internal/models"
	"loyka/internal/services/ledger"
	"loyka/internal/utils"
)

type LedgerHandler struct {
	service ledger.Service
}

func NewLedgerHandler(service ledger.Service) *LedgerHandler {
	return &LedgerHandler{service: service}
}

// ProcessTransaction settles one sale or refund for an account.
// With ?wait=false the request fails fast with 409 instead of waiting for
// an in-flight settlement on the same account.
func (h *LedgerHandler) ProcessTransaction(c *fiber.Ctx) error {
	accountID, err := parseAccountID(c)
	if err != nil {
		return renderError(c, err)
	}

	var input struct {
		Type     string                 `json:"type"`
		Amount   float64                `json:"amount"`
		PosID    string                 `json:"pos_id"`
		Notes    string                 `json:"notes"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	if err := c.BodyParser(&input); err != nil {
		return renderError(c, errors.Validation("invalid request body"))
	}

	if err := h.checkRestaurantScope(c, accountID); err != nil {
		return renderError(c, err)
	}

	req := ledger.TransactionRequest{
		AccountID: accountID,
		Type:      input.Type,
		Amount:    input.Amount,
		PosID:     input.PosID,
		Notes:     input.Notes,
		Metadata:  input.Metadata,
	}

	var tx *models.Transaction
	if c.Query("wait", "true") == "false" {
		tx, err = h.service.TryProcessTransaction(c.Context(), req)
	} else {
		tx, err = h.service.ProcessTransaction(c.Context(), req)
	}
	if err != nil {
		return renderError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"transaction": tx})
}

func (h *LedgerHandler) GetAccount(c *fiber.Ctx) error {
	accountID, err := parseAccountID(c)
	if err != nil {
		return renderError(c, err)
	}

	account, err := h.service.GetAccount(c.Context(), accountID)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(fiber.Map{"account": account})
}

func (h *LedgerHandler) GetHistory(c *fiber.Ctx) error {
	accountID, err := parseAccountID(c)
	if err != nil {
		return renderError(c, err)
	}

	p := utils.GetPagination(c)
	history, err := h.service.GetHistory(c.Context(), accountID, p.Page, p.Limit)
	if err != nil {
		return renderError(c, err)
	}

	return c.JSON(fiber.Map{
		"transactions": history,
		"page":         p.Page,
		"limit":        p.Limit,
	})
}

func (h *LedgerHandler) GetActiveCard(c *fiber.Ctx) error {
	accountID, err := parseAccountID(c)
	if err != nil {
		return renderError(c, err)
	}

	card, err := h.service.GetActiveCard(c.Context(), accountID)
	if err != nil {
		return renderError(c, err)
	}
	if card == nil {
		return renderError(c, errors.NotFound("account %d has no active card", accountID))
	}
	return c.JSON(fiber.Map{"card": card})
}

// RevokeCard retires the active card outside a settlement (lost device,
// suspected sharing). A replacement is issued unless the account is blocked.
func (h *LedgerHandler) RevokeCard(c *fiber.Ctx) error {
	accountID, err := parseAccountID(c)
	if err != nil {
		return renderError(c, err)
	}

	var input struct {
		Reason string `json:"reason"`
	}
	// body is optional
	_ = c.BodyParser(&input)

	if err := h.checkRestaurantScope(c, accountID); err != nil {
		return renderError(c, err)
	}

	card, err := h.service.RevokeCard(c.Context(), accountID, input.Reason)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(fiber.Map{"card": card})
}

// checkRestaurantScope rejects terminals writing to accounts outside their
// own restaurant. Requests without terminal claims (internal callers) pass.
func (h *LedgerHandler) checkRestaurantScope(c *fiber.Ctx, accountID uint) error {
	claims, ok := c.Locals("claims").(*models.TerminalClaims)
	if !ok || claims == nil {
		return nil
	}

	account, err := h.service.GetAccount(c.Context(), accountID)
	if err != nil {
		return err
	}
	if account.RestaurantID != claims.RestaurantID {
		return errors.NotFound("account %d not found", accountID)
	}
	return nil
}

func parseAccountID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.Validation("invalid account id %q", c.Params("id"))
	}
	return uint(id), nil
}

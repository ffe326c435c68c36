package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/taskhived/backend/internal/models"
	"github.com/taskhived/backend/internal/services/checkout"
	"github.com/taskhived/backend/internal/services/ledger"
)

type WalletHandler struct {
	DB       *gorm.DB
	Ledger   *ledger.Service
	Checkout *checkout.Service
}

func NewWalletHandler(db *gorm.DB, lg *ledger.Service, co *checkout.Service) *WalletHandler {
	return &WalletHandler{DB: db, Ledger: lg, Checkout: co}
}

// GetBalance returns both the ledger-derived balance and the cached column.
// They must agree; exposing both makes drift visible instead of hiding it.
func (h *WalletHandler) GetBalance(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		return fiber.ErrUnauthorized
	}

	derived, err := h.Ledger.DerivedBalance(c.Context(), userID)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to compute balance")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"balance": derived,
			"cached":  user.Credits,
		},
	})
}

// ListTransactions returns the caller's ledger history, newest first.
func (h *WalletHandler) ListTransactions(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var trxs []models.Transaction
	if err := h.DB.
		Where("user_id = ? OR recipient_id = ?", userID, userID).
		Order("created_at DESC").Limit(100).
		Find(&trxs).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch transactions")
	}
	return c.JSON(fiber.Map{"success": true, "data": trxs})
}

type depositRequest struct {
	Amount int64 `json:"amount"` // cents
}

// Deposit opens a hosted checkout session and records a pending ledger row.
// Credits only move when the signed callback confirms payment.
func (h *WalletHandler) Deposit(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var req depositRequest
	if err := c.BodyParser(&req); err != nil || req.Amount <= 0 {
		return fail(c, fiber.StatusBadRequest, "Invalid deposit amount")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		return fiber.ErrUnauthorized
	}

	merchantRef := "DEP-" + models.GenerateRefCode()

	sess, err := h.Checkout.CreateSession(merchantRef, req.Amount, user.Name, user.Email)
	if err != nil {
		zap.L().Error("checkout session failed", zap.Error(err))
		return fail(c, fiber.StatusBadGateway, "Payment gateway error")
	}

	if _, err := h.Ledger.CreatePendingDeposit(c.Context(), userID, req.Amount, merchantRef,
		map[string]interface{}{"vendor_reference": sess.Data.Reference}); err != nil {
		zap.L().Error("failed to record pending deposit", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to record deposit")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"checkout_url": sess.Data.CheckoutURL,
			"reference":    merchantRef,
		},
	})
}

type checkoutCallbackPayload struct {
	Reference   string `json:"reference"`
	MerchantRef string `json:"merchant_ref"`
	Amount      int64  `json:"amount"`
	Status      string `json:"status"` // PAID, EXPIRED, FAILED
	PaidAt      int64  `json:"paid_at"`
}

// DepositCallback is the checkout vendor webhook.
func (h *WalletHandler) DepositCallback(c *fiber.Ctx) error {
	signature := c.Get("X-Callback-Signature")
	if signature == "" {
		return fail(c, fiber.StatusBadRequest, "Missing signature")
	}

	body := c.Body()
	if !h.Checkout.ValidateSignature(signature, string(body)) {
		return fail(c, fiber.StatusBadRequest, "Invalid signature")
	}

	var payload checkoutCallbackPayload
	if err := c.BodyParser(&payload); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid payload")
	}

	switch payload.Status {
	case "PAID":
		if err := h.Ledger.CompleteDeposit(c.Context(), payload.MerchantRef); err != nil {
			zap.L().Error("deposit settlement failed",
				zap.String("reference", payload.MerchantRef), zap.Error(err))
			return fail(c, fiber.StatusInternalServerError, "Failed to settle deposit")
		}
	case "EXPIRED", "FAILED":
		if err := h.Ledger.FailDeposit(c.Context(), payload.MerchantRef); err != nil {
			zap.L().Error("deposit fail-mark failed",
				zap.String("reference", payload.MerchantRef), zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{"success": true})
}

type withdrawRequest struct {
	Amount int64 `json:"amount"` // cents
}

// Withdraw cashes out part of a worker's balance.
func (h *WalletHandler) Withdraw(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var req withdrawRequest
	if err := c.BodyParser(&req); err != nil || req.Amount <= 0 {
		return fail(c, fiber.StatusBadRequest, "Invalid withdrawal amount")
	}

	trx, err := h.Ledger.Withdraw(c.Context(), userID, req.Amount,
		map[string]interface{}{"requested_at": time.Now().Format(time.RFC3339)})
	if err != nil {
		return failFor(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "message": "Withdrawal recorded", "data": trx})
}

type payoutSettingsRequest struct {
	WalletAddress string                 `json:"wallet_address"`
	PayoutMethod  string                 `json:"payout_method"`
	PayoutDetails map[string]interface{} `json:"payout_details"`
}

// UpdatePayoutSettings stores where the user wants to be paid. Approval of
// their tasks is blocked until something is configured here.
func (h *WalletHandler) UpdatePayoutSettings(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var req payoutSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	updates := map[string]interface{}{}
	if req.WalletAddress != "" {
		updates["wallet_address"] = req.WalletAddress
	}
	if req.PayoutMethod != "" {
		updates["payout_method"] = req.PayoutMethod
	}
	if req.PayoutDetails != nil {
		updates["payout_details"] = datatypes.JSONMap(req.PayoutDetails)
	}
	if len(updates) == 0 {
		return fail(c, fiber.StatusBadRequest, "Nothing to update")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", userID).
		Updates(updates).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to update payout settings")
	}

	return c.JSON(fiber.Map{"success": true, "message": "Payout settings updated"})
}

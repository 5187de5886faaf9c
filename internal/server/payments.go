package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	paymentdomain "github.com/badrx15/creavisionbot/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

const maxWebhookBytes = 1 << 20

type createPaymentRequest struct {
	PackageID string `json:"package_id"`
}

type paymentStatusResponse struct {
	PaymentID string               `json:"payment_id"`
	Status    paymentdomain.Status `json:"status"`
	Completed bool                 `json:"completed"`
	BotURL    string               `json:"bot_url,omitempty"`
}

func (s *Server) ListPackages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.paymentSvc.Packages()})
}

func (s *Server) CreatePayment(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	checkout, err := s.paymentSvc.InitiatePurchase(c.Request.Context(), userID, strings.TrimSpace(req.PackageID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": checkout})
}

func (s *Server) ListUserPayments(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payments, err := s.paymentSvc.ListByUser(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payments})
}

func (s *Server) GetPayment(c *gin.Context) {
	payment, err := s.paymentSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("payment_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) VerifyPayment(c *gin.Context) {
	s.verify(c, strings.TrimSpace(c.Param("payment_id")))
}

// PaymentSuccess is the provider return URL. It runs the same verification as the
// manual check so a buyer who comes back is credited without waiting for the webhook.
func (s *Server) PaymentSuccess(c *gin.Context) {
	s.verify(c, strings.TrimSpace(c.Query("payment_id")))
}

func (s *Server) verify(c *gin.Context, paymentID string) {
	if paymentID == "" {
		AbortWithError(c, newValidationError("payment_id", "required", "payment_id is required"))
		return
	}

	ctx := c.Request.Context()
	completed, err := s.paymentSvc.Verify(ctx, paymentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	payment, err := s.paymentSvc.Get(ctx, paymentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": paymentStatusResponse{
		PaymentID: paymentID,
		Status:    payment.Status,
		Completed: completed,
		BotURL:    s.botURL(),
	}})
}

func (s *Server) PaymentCancel(c *gin.Context) {
	paymentID := strings.TrimSpace(c.Query("payment_id"))
	if paymentID == "" {
		AbortWithError(c, newValidationError("payment_id", "required", "payment_id is required"))
		return
	}

	ctx := c.Request.Context()
	if err := s.paymentSvc.Cancel(ctx, paymentID); err != nil {
		AbortWithError(c, err)
		return
	}
	payment, err := s.paymentSvc.Get(ctx, paymentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": paymentStatusResponse{
		PaymentID: paymentID,
		Status:    payment.Status,
		Completed: payment.Status == paymentdomain.StatusCompleted,
		BotURL:    s.botURL(),
	}})
}

// HandlePaymentWebhook acknowledges every authenticated callback, including
// duplicates and events the reconciler ignores.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.webhookSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrWebhookMalformed) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) botURL() string {
	name := strings.TrimSpace(s.cfg.Payment.BotUsername)
	if name == "" {
		return ""
	}
	return "https://t.me/" + name
}

package server

import (
	"fmt"
	"net/http"
	"strings"

	accountdomain "github.com/badrx15/creavisionbot/internal/account/domain"
	"github.com/badrx15/creavisionbot/internal/observability/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type setAdminRequest struct {
	IsAdmin *bool `json:"is_admin"`
}

type grantCreditsRequest struct {
	Amount int64  `json:"amount"`
	Note   string `json:"note"`
}

func (s *Server) AdminListUsers(c *gin.Context) {
	page, err := bindPagination(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.accountSvc.List(c.Request.Context(), accountdomain.ListAccountRequest{
		PageToken: page.PageToken,
		PageSize:  page.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) AdminSetAdmin(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req setAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsAdmin == nil {
		AbortWithError(c, newValidationError("is_admin", "required", "is_admin is required"))
		return
	}

	if err := s.accountSvc.SetAdmin(c.Request.Context(), userID, *req.IsAdmin); err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditLog(c, "account.set_admin", zap.Int64("target_user_id", userID), zap.Bool("is_admin", *req.IsAdmin))
	c.Status(http.StatusNoContent)
}

func (s *Server) AdminDeleteUser(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if adminID := c.GetInt64(contextAdminIDKey); adminID == userID {
		AbortWithError(c, newValidationError("user_id", "self_delete", "admins cannot delete themselves"))
		return
	}

	if err := s.accountSvc.Delete(c.Request.Context(), userID); err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditLog(c, "account.delete", zap.Int64("target_user_id", userID))
	c.Status(http.StatusNoContent)
}

func (s *Server) AdminGrantCredits(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req grantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	note := strings.TrimSpace(req.Note)
	if note == "" {
		note = fmt.Sprintf("admin grant by %d", c.GetInt64(contextAdminIDKey))
	}

	result, err := s.ledgerSvc.Grant(c.Request.Context(), userID, req.Amount, note)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditLog(c, "ledger.grant", zap.Int64("target_user_id", userID), zap.Int64("amount", req.Amount))
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) auditLog(c *gin.Context, action string, fields ...zap.Field) {
	fields = append([]zap.Field{
		zap.String("action", action),
		zap.Int64("admin_user_id", c.GetInt64(contextAdminIDKey)),
	}, fields...)
	logger.WithContext(c.Request.Context(), s.log).Info("admin action", fields...)
}

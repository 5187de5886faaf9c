package server

import (
	"net/http"
	"strings"

	accountdomain "github.com/badrx15/creavisionbot/internal/account/domain"
	ledgerdomain "github.com/badrx15/creavisionbot/internal/ledger/domain"
	meteringdomain "github.com/badrx15/creavisionbot/internal/metering/domain"
	"github.com/gin-gonic/gin"
)

type sendMessageRequest struct {
	Text      string `json:"text"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type setPersonaRequest struct {
	Persona string `json:"persona"`
}

type balanceResponse struct {
	UserID  int64  `json:"user_id"`
	Credits int64  `json:"credits"`
	Persona string `json:"persona"`
}

// SendMessage registers the sender on first contact and runs one metered turn.
func (s *Server) SendMessage(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	if _, _, err := s.accountSvc.Ensure(ctx, accountdomain.Profile{
		UserID:    userID,
		Username:  strings.TrimSpace(req.Username),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.meteringSvc.HandleTurn(ctx, meteringdomain.TurnRequest{
		UserID: userID,
		Text:   req.Text,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ResetConversation(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.conversationSvc.Reset(c.Request.Context(), userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GetBalance(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	credits, err := s.ledgerSvc.Balance(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	persona, err := s.accountSvc.Persona(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balanceResponse{
		UserID:  userID,
		Credits: credits,
		Persona: persona.ID,
	}})
}

func (s *Server) ListUsage(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	page, err := bindPagination(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.ledgerSvc.History(c.Request.Context(), ledgerdomain.ListUsageRequest{
		UserID:    userID,
		PageToken: page.PageToken,
		PageSize:  page.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) SetPersona(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req setPersonaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	persona, err := s.accountSvc.SetPersona(c.Request.Context(), userID, strings.TrimSpace(req.Persona))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": persona})
}

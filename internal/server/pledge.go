package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	pledgedomain "github.com/groupcart/groupcart/internal/pledge/domain"
)

func (s *Server) CreatePledge(c *gin.Context) {
	var req pledgedomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	pledge, err := s.pledgeSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": pledge})
}

type updatePledgeRequest struct {
	BuyerOrgID string `json:"buyer_org_id"`
	Quantity   int64  `json:"quantity"`
}

func (s *Server) UpdatePledgeQuantity(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req updatePledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	pledge, err := s.pledgeSvc.UpdateQuantity(c.Request.Context(), id, req.BuyerOrgID, req.Quantity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pledge})
}

type withdrawPledgeRequest struct {
	BuyerOrgID string `json:"buyer_org_id"`
}

func (s *Server) WithdrawPledge(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req withdrawPledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	pledge, err := s.pledgeSvc.Withdraw(c.Request.Context(), id, req.BuyerOrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pledge})
}

package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	bracketdomain "github.com/groupcart/groupcart/internal/bracket/domain"
)

func (s *Server) CreateBracket(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req bracketdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	req.CampaignID = id

	bracket, err := s.bracketSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": bracket})
}

func (s *Server) ListBrackets(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	campaignID, _ := snowflake.ParseString(id)

	brackets, err := s.bracketSvc.ListByCampaign(c.Request.Context(), campaignID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": brackets})
}

package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetBillingSummary(c *gin.Context) {
	connectionID := strings.TrimSpace(c.Param("connection_id"))
	if connectionID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	summary, err := s.billingOverviewSvc.GetBillingSummary(c.Request.Context(), connectionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) ListBills(c *gin.Context) {
	connectionID := strings.TrimSpace(c.Param("connection_id"))
	if connectionID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	bills, err := s.billSvc.ListByConnection(c.Request.Context(), connectionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"bills": bills})
}

func (s *Server) GetBill(c *gin.Context) {
	connectionID := strings.TrimSpace(c.Param("connection_id"))
	billID := strings.TrimSpace(c.Param("bill_id"))
	if connectionID == "" || billID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	bill, err := s.billSvc.GetByID(c.Request.Context(), billID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if bill.ConnectionID != connectionID {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, bill)
}

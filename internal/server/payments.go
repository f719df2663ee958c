package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/hydranet/aquabill/internal/payment/domain"
)

type startPaymentRequest struct {
	BillID    string `json:"bill_id" binding:"required"`
	Type      string `json:"type" binding:"required"`
	Amount    int64  `json:"amount"`
	Provider  string `json:"provider" binding:"required"`
	Supersede bool   `json:"supersede"`
}

func (s *Server) StartPayment(c *gin.Context) {
	connectionID := strings.TrimSpace(c.Param("connection_id"))
	if connectionID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req startPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.paymentSvc.StartPayment(c.Request.Context(), paymentdomain.PaymentIntent{
		ConnectionID: connectionID,
		BillID:       req.BillID,
		Type:         paymentdomain.PaymentType(strings.ToLower(strings.TrimSpace(req.Type))),
		Amount:       req.Amount,
		Provider:     req.Provider,
		Supersede:    req.Supersede,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusAccepted
	if result.Settled {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

func (s *Server) ListPaymentAttempts(c *gin.Context) {
	connectionID := strings.TrimSpace(c.Param("connection_id"))
	if connectionID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	attempts, err := s.paymentSvc.ListAttempts(c.Request.Context(), connectionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

func (s *Server) GetPendingPayment(c *gin.Context) {
	connectionID := strings.TrimSpace(c.Param("connection_id"))
	if connectionID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	marker, err := s.reconcileSvc.Pending(c.Request.Context(), connectionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if marker == nil {
		c.JSON(http.StatusOK, gin.H{"pending": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"pending": true, "marker": marker})
}

func (s *Server) ReconcilePayment(c *gin.Context) {
	connectionID := strings.TrimSpace(c.Param("connection_id"))
	if connectionID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.reconcileSvc.Reconcile(c.Request.Context(), connectionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/livemerce/pointsledger/internal/ledger"
	"github.com/livemerce/pointsledger/internal/models"
)

// minAdjustReasonLength is the shortest accepted manual adjustment reason.
const minAdjustReasonLength = 10

// PointsHandler handles admin operations on user point balances.
type PointsHandler struct {
	ledger *ledger.Service
}

// NewPointsHandler constructs a PointsHandler.
func NewPointsHandler(ledgerSvc *ledger.Service) *PointsHandler {
	return &PointsHandler{ledger: ledgerSvc}
}

// adjustRequest captures the payload for a manual point adjustment.
type adjustRequest struct {
	Type   string `json:"type"`   // "add" or "subtract".
	Amount int64  `json:"amount"` // Points to move, at least 1.
	Reason string `json:"reason"` // Audit reason, at least 10 characters.
}

// Adjust applies a manual credit or debit to a user's balance.
func (h *PointsHandler) Adjust(c *gin.Context) {
	userID, errParse := parseUserID(c)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var body adjustRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Amount < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be at least 1"})
		return
	}
	reason := strings.TrimSpace(body.Reason)
	if len(reason) < minAdjustReasonLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason must be at least 10 characters"})
		return
	}

	var (
		result    *ledger.MutationResult
		errMutate error
	)
	switch strings.TrimSpace(body.Type) {
	case "add":
		result, errMutate = h.ledger.AddPoints(c.Request.Context(), ledger.AddParams{
			UserID:          userID,
			Amount:          body.Amount,
			TransactionType: models.TransactionManualAdd,
			Reason:          reason,
		})
	case "subtract":
		result, errMutate = h.ledger.DeductPoints(c.Request.Context(), ledger.DeductParams{
			UserID:          userID,
			Amount:          body.Amount,
			TransactionType: models.TransactionManualSubtract,
			Reason:          reason,
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be add or subtract"})
		return
	}
	if errMutate != nil {
		var validationErr *ledger.ValidationError
		if errors.As(errMutate, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Message})
			return
		}
		var balanceErr *ledger.InsufficientBalanceError
		if errors.As(errMutate, &balanceErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": balanceErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "adjust points failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "new_balance": result.NewBalance})
}

// Balance returns a user's balance summary.
func (h *PointsHandler) Balance(c *gin.Context) {
	userID, errParse := parseUserID(c)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	summary, errGet := h.ledger.GetBalance(c.Request.Context(), userID)
	if errGet != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query balance failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// historyQuery defines query parameters for listing transactions.
type historyQuery struct {
	Page            int    `form:"page,default=1"`
	Limit           int    `form:"limit,default=20"`
	TransactionType string `form:"transaction_type"`
	StartDate       string `form:"start_date"`
	EndDate         string `form:"end_date"`
}

// History returns one page of a user's transaction history, newest first.
func (h *PointsHandler) History(c *gin.Context) {
	userID, errParse := parseUserID(c)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var q historyQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}

	query := ledger.HistoryQuery{
		Page:            q.Page,
		Limit:           q.Limit,
		TransactionType: strings.TrimSpace(q.TransactionType),
	}
	if q.StartDate != "" {
		if startTime, errParseDate := time.ParseInLocation("2006-01-02", q.StartDate, time.Local); errParseDate == nil {
			query.StartDate = &startTime
		}
	}
	if q.EndDate != "" {
		if endTime, errParseDate := time.ParseInLocation("2006-01-02", q.EndDate, time.Local); errParseDate == nil {
			endExclusive := endTime.AddDate(0, 0, 1)
			query.EndDate = &endExclusive
		}
	}

	page, errHistory := h.ledger.GetTransactionHistory(c.Request.Context(), userID, query)
	if errHistory != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query transactions failed"})
		return
	}

	transactions := make([]gin.H, 0, len(page.Transactions))
	for _, row := range page.Transactions {
		transactions = append(transactions, gin.H{
			"id":               row.ID,
			"transaction_type": row.TransactionType,
			"amount":           row.Amount,
			"balance_after":    row.BalanceAfter,
			"order_id":         row.OrderID,
			"reason":           row.Reason,
			"expires_at":       row.ExpiresAt,
			"created_at":       row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": transactions,
		"total":        page.Total,
		"page":         page.Page,
		"limit":        page.Limit,
	})
}

// parseUserID extracts the user id path parameter.
func parseUserID(c *gin.Context) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(c.Param("userId")), 10, 64)
}

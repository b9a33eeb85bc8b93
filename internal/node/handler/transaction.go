package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/pohledger/internal/node/service"
	"github.com/jmerrifield20/pohledger/pkg/txn"
)

// TransactionHandler exposes transaction submission and account queries.
type TransactionHandler struct {
	svc    *service.LedgerService
	limit  gin.HandlerFunc
	logger *zap.Logger
}

// NewTransactionHandler creates a TransactionHandler. limit guards the
// submission routes; pass nil for no limiting.
func NewTransactionHandler(svc *service.LedgerService, limit gin.HandlerFunc, logger *zap.Logger) *TransactionHandler {
	if limit == nil {
		limit = func(c *gin.Context) { c.Next() }
	}
	return &TransactionHandler{svc: svc, limit: limit, logger: logger}
}

// Register mounts the transaction and account routes on the given router group.
func (h *TransactionHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/transfer", h.limit, h.Transfer)
	rg.POST("/transactions", h.limit, h.Submit)

	a := rg.Group("/accounts")
	{
		a.GET("", h.ListAccounts)
		a.GET("/genesis", h.GenesisAccounts)
		a.GET("/:id", h.GetAccount)
	}
}

type transferRequest struct {
	From     *uint8  `json:"from" binding:"required"`
	To       *uint8  `json:"to" binding:"required"`
	Lamports *uint64 `json:"lamports" binding:"required"`
}

// Transfer handles POST /transfer. The node signs on behalf of the genesis
// account numbered "from".
func (h *TransactionHandler) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "body must be {from: u8, to: u8, lamports: u64}"})
		return
	}

	receipt, err := h.svc.Transfer(c.Request.Context(), *req.From, *req.To, *req.Lamports)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receiptResponse(receipt))
}

// Submit handles POST /transactions with a caller-signed transaction.
func (h *TransactionHandler) Submit(c *gin.Context) {
	var tx txn.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid transaction: " + err.Error()})
		return
	}

	receipt, err := h.svc.Submit(c.Request.Context(), &tx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receiptResponse(receipt))
}

func receiptResponse(r *service.Receipt) gin.H {
	return gin.H{
		"ok":          true,
		"entry_hash":  r.EntryHash.Hex(),
		"entry_index": r.EntryIndex,
		"signature":   r.Signature,
		"modified":    r.Modified,
	}
}

func (h *TransactionHandler) fail(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, service.ErrRecordFailed):
		status = http.StatusInternalServerError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("transaction not applied",
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err),
		)
	} else {
		h.logger.Debug("transaction not applied",
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"ok": false, "error": err.Error()})
}

// ListAccounts handles GET /accounts.
func (h *TransactionHandler) ListAccounts(c *gin.Context) {
	list := h.svc.Accounts(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"accounts": list, "count": len(list)})
}

// GenesisAccounts handles GET /accounts/genesis: the account numbers usable
// with /transfer.
func (h *TransactionHandler) GenesisAccounts(c *gin.Context) {
	pairs := h.svc.GenesisAccounts()
	out := make([]gin.H, 0, len(pairs))
	for _, kp := range pairs {
		out = append(out, gin.H{"number": kp.Number, "id": kp.ID})
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

// GetAccount handles GET /accounts/:id where id is base58.
func (h *TransactionHandler) GetAccount(c *gin.Context) {
	id, err := txn.ParseIdentifier(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a base58 32-byte identifier"})
		return
	}

	acct, err := h.svc.Account(c.Request.Context(), id)
	if errors.Is(err, service.ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	if err != nil {
		h.logger.Error("get account", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
		return
	}
	c.JSON(http.StatusOK, acct)
}

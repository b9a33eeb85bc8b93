package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/pohledger/internal/node/service"
	"github.com/jmerrifield20/pohledger/internal/poh"
)

// ChainHandler exposes read-only endpoints for the hash chain.
type ChainHandler struct {
	svc    *service.LedgerService
	logger *zap.Logger
}

// NewChainHandler creates a new ChainHandler.
func NewChainHandler(svc *service.LedgerService, logger *zap.Logger) *ChainHandler {
	return &ChainHandler{svc: svc, logger: logger}
}

// Register mounts the chain routes on the given router group.
func (h *ChainHandler) Register(rg *gin.RouterGroup) {
	ch := rg.Group("/chain")
	{
		ch.GET("", h.Overview)
		ch.GET("/verify", h.Verify)
		ch.GET("/entries/:idx", h.GetEntry)
	}
}

// Overview handles GET /chain.
func (h *ChainHandler) Overview(c *gin.Context) {
	ov := h.svc.Chain(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"genesis":         ov.Genesis.Hex(),
		"last_hash":       ov.LastHash.Hex(),
		"entries":         ov.Entries,
		"hashes_per_tick": ov.HashesPerTick,
	})
}

// Verify handles GET /chain/verify: replays the chain from genesis.
func (h *ChainHandler) Verify(c *gin.Context) {
	err := h.svc.VerifyChain(c.Request.Context())
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"valid": true})
		return
	}

	h.logger.Warn("chain integrity check failed", zap.Error(err))
	resp := gin.H{"valid": false, "error": err.Error()}
	var mm *poh.MismatchError
	if errors.As(err, &mm) {
		resp["mismatch_index"] = mm.Index
	}
	c.JSON(http.StatusOK, resp)
}

// GetEntry handles GET /chain/entries/:idx.
func (h *ChainHandler) GetEntry(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}

	entry, err := h.svc.Entry(c.Request.Context(), idx)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"index":        idx,
		"hash_count":   entry.HashCount,
		"hash":         entry.Hash.Hex(),
		"transactions": entry.Transactions,
	})
}

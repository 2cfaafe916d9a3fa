package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/blackroad/shainfinity/internal/auditlog"
)

// Caps the number of entries a single list request may return.
const maxEntryPage = 100

// LedgerHandler exposes read-only HTTP endpoints for the audit log.
type LedgerHandler struct {
	ledger auditlog.Ledger
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledger auditlog.Ledger, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Summary)
		l.GET("/verify", h.Verify)
		l.GET("/entries", h.ListEntries)
		l.GET("/entries/:idx", h.GetEntry)
	}
}

// Summary handles GET /ledger — chain length and current root hash.
func (h *LedgerHandler) Summary(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.ledger.Len(ctx)
	if err != nil {
		h.logger.Error("ledger Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query audit log"})
		return
	}
	root, err := h.ledger.Root(ctx)
	if err != nil {
		h.logger.Error("ledger Root", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query audit log root"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": count,
		"root":    root,
	})
}

// Verify handles GET /ledger/verify — walks the full chain and reports
// integrity.
func (h *LedgerHandler) Verify(c *gin.Context) {
	ctx := c.Request.Context()

	count, _ := h.ledger.Len(ctx)
	if err := h.ledger.Verify(ctx); err != nil {
		h.logger.Warn("audit log integrity check failed", zap.Error(err))
		RecordVerification("ledger_invalid")
		c.JSON(http.StatusOK, gin.H{
			"valid":   false,
			"entries": count,
			"error":   err.Error(),
		})
		return
	}

	RecordVerification("ledger_valid")
	c.JSON(http.StatusOK, gin.H{"valid": true, "entries": count})
}

// ListEntries handles GET /ledger/entries?from=N&limit=M — a contiguous
// window of entries, oldest first.
func (h *LedgerHandler) ListEntries(c *gin.Context) {
	ctx := c.Request.Context()

	from, err := strconv.Atoi(c.DefaultQuery("from", "0"))
	if err != nil || from < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be a non-negative integer"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > maxEntryPage {
		limit = maxEntryPage
	}

	count, err := h.ledger.Len(ctx)
	if err != nil {
		h.logger.Error("ledger Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query audit log"})
		return
	}

	entries := make([]*auditlog.Entry, 0, limit)
	for idx := from; idx < count && len(entries) < limit; idx++ {
		entry, err := h.ledger.Get(ctx, idx)
		if err != nil {
			h.logger.Error("ledger Get", zap.Int("idx", idx), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read audit log"})
			return
		}
		entries = append(entries, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"from":    from,
		"total":   count,
		"entries": entries,
	})
}

// GetEntry handles GET /ledger/entries/:idx — returns a single audit entry.
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	ctx := c.Request.Context()

	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}

	entry, err := h.ledger.Get(ctx, idx)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/blackroad/shainfinity/internal/chain"
	"github.com/blackroad/shainfinity/internal/crossref"
	"github.com/blackroad/shainfinity/internal/digest"
	"github.com/blackroad/shainfinity/internal/hashing"
	"github.com/blackroad/shainfinity/internal/merkle"
	"github.com/blackroad/shainfinity/internal/timelock"
)

// ToolsHandler exposes the stateless core operations over HTTP: one call,
// one pure computation, no persistence.
type ToolsHandler struct {
	logger *zap.Logger
}

// NewToolsHandler creates a new ToolsHandler.
func NewToolsHandler(logger *zap.Logger) *ToolsHandler {
	return &ToolsHandler{logger: logger}
}

// Register mounts the tool routes on the given router group.
func (h *ToolsHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/hash", h.Hash)
	rg.POST("/chain", h.Chain)
	rg.POST("/merkle", h.Merkle)
	rg.POST("/merkle/verify", h.MerkleVerify)
	rg.POST("/timelock", h.TimeLock)
	rg.POST("/timelock/verify", h.TimeLockVerify)
	rg.POST("/crossref", h.CrossRef)
	rg.POST("/crossref/verify", h.CrossRefVerify)
}

type contentRequest struct {
	Content string `json:"content" binding:"required"`
}

// Hash handles POST /hash — baseline digest of the request content.
func (h *ToolsHandler) Hash(c *gin.Context) {
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d, err := hashing.HashBytes([]byte(req.Content))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	RecordHashOp("bytes")
	c.JSON(http.StatusOK, gin.H{"digest": d.String()})
}

type chainRequest struct {
	Content string `json:"content" binding:"required"`
	Depth   int    `json:"depth"`
}

// Chain handles POST /chain — layered hash chain over the request content.
func (h *ToolsHandler) Chain(c *gin.Context) {
	var req chainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Depth == 0 {
		req.Depth = chain.DefaultDepth
	}

	ch, err := chain.HashInfinite([]byte(req.Content), req.Depth)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chain.ErrInvalidDepth) || errors.Is(err, chain.ErrEmptyInput) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	RecordHashOp("chain")
	c.JSON(http.StatusOK, gin.H{
		"depth":  ch.Depth(),
		"layers": ch.Layers(),
		"final":  ch.Final().String(),
	})
}

type merkleRequest struct {
	Leaves []string `json:"leaves" binding:"required"`
	Prove  *int     `json:"prove,omitempty"` // optional leaf index to prove
}

// Merkle handles POST /merkle — builds a tree over the given leaf digests
// and optionally returns an inclusion proof for one leaf.
func (h *ToolsHandler) Merkle(c *gin.Context) {
	var req merkleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	leaves := make([]digest.Digest, 0, len(req.Leaves))
	for _, s := range req.Leaves {
		d, err := digest.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		leaves = append(leaves, d)
	}

	tree, err := merkle.Build(leaves)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"root":       tree.RootDigest().String(),
		"height":     tree.Height(),
		"leaf_count": tree.LeafCount(),
	}
	if req.Prove != nil {
		proof, err := tree.Prove(*req.Prove)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resp["proof"] = proof
	}

	RecordHashOp("merkle")
	c.JSON(http.StatusOK, resp)
}

type merkleVerifyRequest struct {
	Leaf  string       `json:"leaf" binding:"required"`
	Proof merkle.Proof `json:"proof" binding:"required"`
	Root  string       `json:"root" binding:"required"`
}

// MerkleVerify handles POST /merkle/verify — replays an inclusion proof.
func (h *ToolsHandler) MerkleVerify(c *gin.Context) {
	var req merkleVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	leaf, err := digest.Parse(req.Leaf)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	root, err := digest.Parse(req.Root)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	valid := merkle.VerifyProof(leaf, req.Proof, root)
	if valid {
		RecordVerification("proof_valid")
	} else {
		RecordVerification("proof_invalid")
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

type timeLockRequest struct {
	Content  string    `json:"content" binding:"required"`
	UnlockAt time.Time `json:"unlock_at" binding:"required"`
}

// TimeLock handles POST /timelock — seals content to a future instant.
func (h *ToolsHandler) TimeLock(c *gin.Context) {
	var req timeLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := timelock.Lock([]byte(req.Content), req.UnlockAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	RecordHashOp("timelock")
	c.JSON(http.StatusOK, rec)
}

type timeLockVerifyRequest struct {
	Record  timelock.Record `json:"record" binding:"required"`
	Content string          `json:"content" binding:"required"`
}

// TimeLockVerify handles POST /timelock/verify — checks a record against
// content at the current instant. The outcome reason is always reported.
func (h *ToolsHandler) TimeLockVerify(c *gin.Context) {
	var req timeLockVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reason := timelock.Verify(req.Record, []byte(req.Content), time.Now().UTC())
	RecordVerification(string(reason))
	c.JSON(http.StatusOK, gin.H{
		"valid":  reason == timelock.OK,
		"reason": reason,
	})
}

type crossRefRequest struct {
	Components map[string]string `json:"components" binding:"required"`
}

// CrossRef handles POST /crossref — combines named digests into one
// relational hash.
func (h *ToolsHandler) CrossRef(c *gin.Context) {
	var req crossRefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	components, err := parseComponents(req.Components)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := crossref.Combine(components)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	RecordHashOp("crossref")
	c.JSON(http.StatusOK, rec)
}

type crossRefVerifyRequest struct {
	Record  crossref.Record   `json:"record" binding:"required"`
	Current map[string]string `json:"current" binding:"required"`
}

// CrossRefVerify handles POST /crossref/verify — reports which named
// components changed.
func (h *ToolsHandler) CrossRefVerify(c *gin.Context) {
	var req crossRefVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	current, err := parseComponents(req.Current)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res := crossref.Verify(req.Record, current)
	if res.Valid {
		RecordVerification("crossref_valid")
	} else {
		RecordVerification("crossref_changed")
	}
	c.JSON(http.StatusOK, res)
}

func parseComponents(in map[string]string) (map[string]digest.Digest, error) {
	out := make(map[string]digest.Digest, len(in))
	for name, s := range in {
		d, err := digest.Parse(s)
		if err != nil {
			return nil, err
		}
		out[name] = d
	}
	return out, nil
}

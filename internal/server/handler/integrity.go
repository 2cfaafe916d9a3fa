package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/blackroad/shainfinity/internal/attest"
	"github.com/blackroad/shainfinity/internal/integrity"
)

// IntegrityHandler exposes the register/verify workflow over HTTP. On a
// passing verification it attaches a signed receipt so downstream gates
// can accept the result without re-running it.
type IntegrityHandler struct {
	svc    *integrity.Service
	signer *attest.Signer
	logger *zap.Logger
}

// NewIntegrityHandler creates a new IntegrityHandler. signer may be nil,
// in which case no receipts are issued.
func NewIntegrityHandler(svc *integrity.Service, signer *attest.Signer, logger *zap.Logger) *IntegrityHandler {
	return &IntegrityHandler{svc: svc, signer: signer, logger: logger}
}

// Register mounts the integrity routes on the given router group.
func (h *IntegrityHandler) Register(rg *gin.RouterGroup) {
	t := rg.Group("/tasks")
	{
		t.POST("", h.RegisterTask)
		t.POST("/verify", h.VerifyTask)
	}
	f := rg.Group("/files")
	{
		f.POST("", h.RegisterFile)
		f.POST("/verify", h.VerifyFile)
	}
	rg.POST("/commits", h.RegisterCommit)
	rg.POST("/prs/validate", h.ValidatePR)
}

type taskRequest struct {
	Actor string         `json:"actor"`
	Task  integrity.Task `json:"task" binding:"required"`
}

// RegisterTask handles POST /tasks — registers a task's hash chain.
func (h *IntegrityHandler) RegisterTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Task.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task.id is required"})
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}

	a, err := h.svc.RegisterTask(c.Request.Context(), req.Actor, req.Task)
	if err != nil {
		h.logger.Error("register task", zap.String("task_id", req.Task.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register task"})
		return
	}

	RecordAuditAppend()
	c.JSON(http.StatusCreated, a)
}

// VerifyTask handles POST /tasks/verify — re-verifies a task against its
// registered hash and issues a receipt when it passes.
func (h *IntegrityHandler) VerifyTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.svc.VerifyTask(c.Request.Context(), req.Task)
	if err != nil {
		if errors.Is(err, integrity.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not registered"})
			return
		}
		h.logger.Error("verify task", zap.String("task_id", req.Task.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify task"})
		return
	}

	resp := gin.H{"result": res}
	if res.Valid {
		RecordVerification("task_valid")
		if h.signer != nil {
			receipt, rerr := h.signer.Attest(req.Task.ID, "verified", res.Current)
			if rerr != nil {
				h.logger.Warn("issue receipt", zap.Error(rerr))
			} else {
				resp["receipt"] = receipt
			}
		}
	} else {
		RecordVerification("task_invalid")
	}
	c.JSON(http.StatusOK, resp)
}

type fileRequest struct {
	Actor string `json:"actor"`
	Path  string `json:"path" binding:"required"`
}

// RegisterFile handles POST /files — hashes the file at the given path on
// the server's filesystem and registers the digest.
func (h *IntegrityHandler) RegisterFile(c *gin.Context) {
	var req fileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}

	a, err := h.svc.RegisterFile(c.Request.Context(), req.Actor, req.Path)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	RecordAuditAppend()
	c.JSON(http.StatusCreated, a)
}

// VerifyFile handles POST /files/verify — re-hashes the file and compares
// it against its registered digest.
func (h *IntegrityHandler) VerifyFile(c *gin.Context) {
	var req fileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.svc.VerifyFile(c.Request.Context(), req.Path)
	if err != nil {
		if errors.Is(err, integrity.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not registered"})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	if res.Valid {
		RecordVerification("file_valid")
	} else {
		RecordVerification("file_invalid")
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

type commitRequest struct {
	Actor string   `json:"actor"`
	SHA   string   `json:"sha" binding:"required"`
	Files []string `json:"files" binding:"required"`
}

// RegisterCommit handles POST /commits — binds the named files' digests to
// a commit sha. Any unreadable file aborts the registration.
func (h *IntegrityHandler) RegisterCommit(c *gin.Context) {
	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}

	a, err := h.svc.RegisterCommit(c.Request.Context(), req.Actor, req.SHA, req.Files)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	RecordAuditAppend()
	c.JSON(http.StatusCreated, a)
}

type prRequest struct {
	Actor string          `json:"actor"`
	PR    integrity.PR    `json:"pr" binding:"required"`
	Task  *integrity.Task `json:"task,omitempty"`
}

// ValidatePR handles POST /prs/validate — full PR validation: task check,
// per-file checks, Merkle root, and cross-reference binding.
func (h *IntegrityHandler) ValidatePR(c *gin.Context) {
	var req prRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.PR.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pr.id is required"})
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}

	report, err := h.svc.ValidatePR(c.Request.Context(), req.Actor, req.PR, req.Task)
	if err != nil {
		h.logger.Error("validate PR", zap.String("pr_id", req.PR.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate PR"})
		return
	}

	resp := gin.H{"report": report}
	if report.Valid {
		RecordVerification("pr_valid")
		if h.signer != nil {
			receipt, rerr := h.signer.Attest(req.PR.ID, "pr_validated", report.CrossRef)
			if rerr != nil {
				h.logger.Warn("issue receipt", zap.Error(rerr))
			} else {
				resp["receipt"] = receipt
			}
		}
	} else {
		RecordVerification("pr_invalid")
	}
	RecordAuditAppend()
	c.JSON(http.StatusOK, resp)
}

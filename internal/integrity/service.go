// Package integrity implements the change-tracking workflow on top of the
// core hashing primitives: tasks, files, commits, and pull requests are
// hashed, registered, and later re-verified, with every operation recorded
// in the append-only audit log.
package integrity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blackroad/shainfinity/internal/auditlog"
	"github.com/blackroad/shainfinity/internal/chain"
	"github.com/blackroad/shainfinity/internal/crossref"
	"github.com/blackroad/shainfinity/internal/digest"
	"github.com/blackroad/shainfinity/internal/hashing"
	"github.com/blackroad/shainfinity/internal/merkle"
)

// Service registers and verifies integrity artifacts. All persistence goes
// through the injected Store; the Service itself holds no mutable state.
type Service struct {
	store  Store
	log    auditlog.Ledger
	depth  int
	logger *zap.Logger
}

// NewService creates a Service using the default chain depth.
func NewService(store Store, log auditlog.Ledger, logger *zap.Logger) *Service {
	return &Service{store: store, log: log, depth: chain.DefaultDepth, logger: logger}
}

// SetChainDepth overrides the layered-chain depth used for task hardening.
func (s *Service) SetChainDepth(depth int) {
	if depth >= 1 {
		s.depth = depth
	}
}

// RegisterTask hashes the task's canonical form, hardens it with a layered
// chain, and stores the resulting artifact.
func (s *Service) RegisterTask(ctx context.Context, actor string, task Task) (*Artifact, error) {
	payload, err := task.canonicalJSON()
	if err != nil {
		return nil, fmt.Errorf("canonicalise task %q: %w", task.ID, err)
	}

	h, err := hashing.HashBytes(payload)
	if err != nil {
		return nil, err
	}
	c, err := chain.HashInfinite(payload, s.depth)
	if err != nil {
		return nil, fmt.Errorf("chain task %q: %w", task.ID, err)
	}

	a := &Artifact{
		ID:           uuid.New(),
		Kind:         KindTask,
		Key:          task.ID,
		Hash:         h,
		ChainFinal:   c.Final(),
		Size:         int64(len(payload)),
		RegisteredAt: time.Now().UTC(),
	}
	if err := s.store.Put(ctx, a); err != nil {
		return nil, err
	}
	s.audit(ctx, task.ID, auditlog.ActionTaskRegistered, actor, payload)

	s.logger.Info("task registered",
		zap.String("task_id", task.ID),
		zap.String("hash", h.String()),
		zap.Int("chain_depth", s.depth),
	)
	return a, nil
}

// VerifyTask recomputes the task hash and compares it against the
// registered artifact. A missing registration is ErrNotFound; a hash
// disagreement is a result, not an error.
func (s *Service) VerifyTask(ctx context.Context, task Task) (VerifyResult, error) {
	a, err := s.store.Get(ctx, KindTask, task.ID)
	if err != nil {
		return VerifyResult{}, err
	}

	payload, err := task.canonicalJSON()
	if err != nil {
		return VerifyResult{}, fmt.Errorf("canonicalise task %q: %w", task.ID, err)
	}
	current, err := hashing.HashBytes(payload)
	if err != nil {
		return VerifyResult{}, err
	}

	res := VerifyResult{Valid: current.Equal(a.Hash), Recorded: a.Hash, Current: current}
	s.auditVerify(ctx, task.ID, res.Valid)
	return res, nil
}

// RegisterFile hashes the file at path and stores the artifact keyed by path.
func (s *Service) RegisterFile(ctx context.Context, actor, path string) (*Artifact, error) {
	h, size, err := hashing.HashFile(path)
	if err != nil {
		return nil, err
	}

	a := &Artifact{
		ID:           uuid.New(),
		Kind:         KindFile,
		Key:          path,
		Hash:         h,
		Size:         size,
		RegisteredAt: time.Now().UTC(),
	}
	if err := s.store.Put(ctx, a); err != nil {
		return nil, err
	}
	s.audit(ctx, path, auditlog.ActionFileRegistered, actor, []byte(h.String()))
	return a, nil
}

// VerifyFile re-hashes the file at path and compares it against the
// registered artifact.
func (s *Service) VerifyFile(ctx context.Context, path string) (VerifyResult, error) {
	a, err := s.store.Get(ctx, KindFile, path)
	if err != nil {
		return VerifyResult{}, err
	}

	current, _, err := hashing.HashFile(path)
	if err != nil {
		return VerifyResult{}, err
	}

	res := VerifyResult{Valid: current.Equal(a.Hash), Recorded: a.Hash, Current: current}
	s.auditVerify(ctx, path, res.Valid)
	return res, nil
}

// RegisterCommit hashes the named files and binds them to the commit sha.
// Unreadable files abort the registration: a commit artifact covering a
// partial file set would attest to something that was never computed.
func (s *Service) RegisterCommit(ctx context.Context, actor, sha string, files []string) (*Artifact, error) {
	fileHashes := make(map[string]string, len(files))
	for _, p := range files {
		h, _, err := hashing.HashFile(p)
		if err != nil {
			return nil, fmt.Errorf("commit %s: %w", sha, err)
		}
		fileHashes[p] = h.String()
	}

	payload, err := json.Marshal(struct {
		SHA   string            `json:"sha"`
		Files map[string]string `json:"files"`
	}{SHA: sha, Files: fileHashes})
	if err != nil {
		return nil, fmt.Errorf("marshal commit %s: %w", sha, err)
	}

	h, err := hashing.HashBytes(payload)
	if err != nil {
		return nil, err
	}

	a := &Artifact{
		ID:           uuid.New(),
		Kind:         KindCommit,
		Key:          sha,
		Hash:         h,
		Size:         int64(len(payload)),
		RegisteredAt: time.Now().UTC(),
	}
	if err := s.store.Put(ctx, a); err != nil {
		return nil, err
	}
	s.audit(ctx, sha, auditlog.ActionCommitRegistered, actor, payload)
	return a, nil
}

// ValidatePR checks a pull request against the registered state: the
// associated task's artifact must still match, every readable changed file
// is verified against its registration, a Merkle tree is built over the
// PR's file digests, and the result is bound into a cross-reference hash.
func (s *Service) ValidatePR(ctx context.Context, actor string, pr PR, task *Task) (*PRReport, error) {
	report := &PRReport{PRID: pr.ID, Valid: true, Timestamp: time.Now().UTC()}

	if task != nil {
		res, err := s.VerifyTask(ctx, *task)
		taskValid := err == nil && res.Valid
		report.Checks = append(report.Checks, Check{Type: "task", Ref: pr.TaskID, Valid: taskValid})
		report.Valid = report.Valid && taskValid
	}

	// Per-file digests in sorted path order so the Merkle leaf order is
	// reproducible from the PR metadata alone.
	paths := append([]string{}, pr.Files...)
	sort.Strings(paths)

	var leaves []digest.Digest
	for _, p := range paths {
		h, _, err := hashing.HashFile(p)
		if err != nil {
			report.Checks = append(report.Checks, Check{Type: "file", Ref: p, Valid: false})
			report.Valid = false
			continue
		}
		leaves = append(leaves, h)

		if a, err := s.store.Get(ctx, KindFile, p); err == nil {
			ok := a.Hash.Equal(h)
			report.Checks = append(report.Checks, Check{Type: "file", Ref: p, Valid: ok})
			report.Valid = report.Valid && ok
		}
	}
	report.FileCount = len(leaves)

	if len(leaves) > 0 {
		tree, err := merkle.Build(leaves)
		if err != nil {
			return nil, fmt.Errorf("merkle over PR %s: %w", pr.ID, err)
		}
		report.MerkleRoot = tree.RootDigest()
	}

	ref, err := s.crossReference(pr, report.MerkleRoot)
	if err != nil {
		return nil, err
	}
	report.CrossRef = ref.Combined

	prPayload, err := json.Marshal(pr)
	if err != nil {
		return nil, fmt.Errorf("marshal PR %s: %w", pr.ID, err)
	}
	report.Hash, err = hashing.HashBytes(prPayload)
	if err != nil {
		return nil, err
	}

	a := &Artifact{
		ID:           uuid.New(),
		Kind:         KindPR,
		Key:          pr.ID,
		Hash:         report.Hash,
		RegisteredAt: report.Timestamp,
	}
	if err := s.store.Put(ctx, a); err != nil {
		return nil, err
	}
	s.audit(ctx, pr.ID, auditlog.ActionPRValidated, actor, prPayload)

	s.logger.Info("pull request validated",
		zap.String("pr_id", pr.ID),
		zap.Bool("valid", report.Valid),
		zap.Int("files", report.FileCount),
	)
	return report, nil
}

// crossReference binds the PR's identity hashes into one relational hash.
func (s *Service) crossReference(pr PR, merkleRoot digest.Digest) (crossref.Record, error) {
	components := map[string]digest.Digest{}
	for name, value := range map[string]string{
		"pr_title":  pr.Title,
		"pr_branch": pr.Branch,
		"task_id":   pr.TaskID,
	} {
		d, err := hashing.HashBytes([]byte(value))
		if err != nil {
			return crossref.Record{}, err
		}
		components[name] = d
	}
	if !merkleRoot.IsZero() {
		components["merkle_root"] = merkleRoot
	}
	return crossref.Combine(components)
}

// audit appends to the ledger; audit failures are logged, never fatal to
// the operation that already completed.
func (s *Service) audit(ctx context.Context, subject, action, actor string, payload []byte) {
	if s.log == nil {
		return
	}
	if _, err := s.log.Append(ctx, subject, action, actor, payload); err != nil {
		s.logger.Warn("audit append failed",
			zap.String("subject", subject),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func (s *Service) auditVerify(ctx context.Context, subject string, valid bool) {
	action := auditlog.ActionVerifyPassed
	if !valid {
		action = auditlog.ActionVerifyFailed
	}
	s.audit(ctx, subject, action, auditlog.SystemActor, nil)
}

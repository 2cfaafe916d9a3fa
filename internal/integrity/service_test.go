package integrity_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/blackroad/shainfinity/internal/auditlog"
	"github.com/blackroad/shainfinity/internal/integrity"
)

var ctx = context.Background()

func newService() (*integrity.Service, *auditlog.MemoryLedger) {
	log := auditlog.New()
	svc := integrity.NewService(integrity.NewMemoryStore(), log, zap.NewNop())
	return svc, log
}

func sampleTask() integrity.Task {
	return integrity.Task{
		ID:          "TASK-001",
		Title:       "Verify merge integrity",
		Description: "Hash all changed files before merge",
		Status:      "in_progress",
		Files:       []string{"b.go", "a.go"},
		Metadata:    map[string]string{"priority": "high"},
	}
}

func TestRegisterTask_andVerify(t *testing.T) {
	svc, _ := newService()

	a, err := svc.RegisterTask(ctx, "dev@blackroad", sampleTask())
	if err != nil {
		t.Fatal(err)
	}
	if a.Kind != integrity.KindTask || a.Key != "TASK-001" {
		t.Errorf("artifact identity: got %s %q", a.Kind, a.Key)
	}
	if a.ChainFinal.IsZero() {
		t.Error("task artifact must carry a layered-chain final digest")
	}

	res, err := svc.VerifyTask(ctx, sampleTask())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid {
		t.Errorf("unchanged task should verify: %+v", res)
	}
}

func TestVerifyTask_detectsChange(t *testing.T) {
	svc, _ := newService()
	if _, err := svc.RegisterTask(ctx, "dev@blackroad", sampleTask()); err != nil {
		t.Fatal(err)
	}

	changed := sampleTask()
	changed.Status = "done"
	res, err := svc.VerifyTask(ctx, changed)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Error("modified task must not verify")
	}
	if res.Recorded.Equal(res.Current) {
		t.Error("recorded and current digests should differ for a modified task")
	}
}

func TestVerifyTask_fileOrderIrrelevant(t *testing.T) {
	svc, _ := newService()
	if _, err := svc.RegisterTask(ctx, "dev@blackroad", sampleTask()); err != nil {
		t.Fatal(err)
	}

	reordered := sampleTask()
	reordered.Files = []string{"a.go", "b.go"}
	res, err := svc.VerifyTask(ctx, reordered)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid {
		t.Error("file list order must not affect the task hash")
	}
}

func TestVerifyTask_unregistered(t *testing.T) {
	svc, _ := newService()
	_, err := svc.VerifyTask(ctx, sampleTask())
	if !errors.Is(err, integrity.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRegisterFile_andVerify(t *testing.T) {
	svc, _ := newService()
	dir := t.TempDir()
	p := writeFile(t, dir, "tracked.go", "package tracked")

	if _, err := svc.RegisterFile(ctx, "dev@blackroad", p); err != nil {
		t.Fatal(err)
	}

	res, err := svc.VerifyFile(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid {
		t.Error("untouched file should verify")
	}

	if err := os.WriteFile(p, []byte("package modified"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err = svc.VerifyFile(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Error("modified file must not verify")
	}
}

func TestRegisterCommit_unreadableFileAborts(t *testing.T) {
	svc, _ := newService()
	dir := t.TempDir()
	p := writeFile(t, dir, "a.go", "package a")

	if _, err := svc.RegisterCommit(ctx, "dev@blackroad", "abc123", []string{p, filepath.Join(dir, "missing.go")}); err == nil {
		t.Error("commit with unreadable file must not register")
	}

	if _, err := svc.RegisterCommit(ctx, "dev@blackroad", "abc123", []string{p}); err != nil {
		t.Errorf("commit over readable files: %v", err)
	}
}

func TestValidatePR_cleanAndTampered(t *testing.T) {
	svc, _ := newService()
	dir := t.TempDir()
	p1 := writeFile(t, dir, "a.go", "package a")
	p2 := writeFile(t, dir, "b.go", "package b")

	task := sampleTask()
	if _, err := svc.RegisterTask(ctx, "dev@blackroad", task); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RegisterFile(ctx, "dev@blackroad", p1); err != nil {
		t.Fatal(err)
	}

	pr := integrity.PR{ID: "PR-42", Title: "Add b", Branch: "feature/b", TaskID: task.ID, Files: []string{p1, p2}}

	report, err := svc.ValidatePR(ctx, "dev@blackroad", pr, &task)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid {
		t.Errorf("clean PR should validate: %+v", report.Checks)
	}
	if report.MerkleRoot.IsZero() {
		t.Error("PR report must carry a Merkle root")
	}
	if report.CrossRef.IsZero() {
		t.Error("PR report must carry a cross-reference hash")
	}
	if report.FileCount != 2 {
		t.Errorf("file count: got %d, want 2", report.FileCount)
	}

	// Tamper with a registered file: validation must flag it.
	if err := os.WriteFile(p1, []byte("package tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	report, err = svc.ValidatePR(ctx, "dev@blackroad", pr, &task)
	if err != nil {
		t.Fatal(err)
	}
	if report.Valid {
		t.Error("PR with a tampered registered file must not validate")
	}
}

func TestValidatePR_crossRefChangesWithBranch(t *testing.T) {
	svc, _ := newService()
	dir := t.TempDir()
	p := writeFile(t, dir, "a.go", "package a")

	pr := integrity.PR{ID: "PR-1", Title: "T", Branch: "feature/x", Files: []string{p}}
	r1, err := svc.ValidatePR(ctx, "dev@blackroad", pr, nil)
	if err != nil {
		t.Fatal(err)
	}

	pr.Branch = "feature/y"
	r2, err := svc.ValidatePR(ctx, "dev@blackroad", pr, nil)
	if err != nil {
		t.Fatal(err)
	}
	if r1.CrossRef.Equal(r2.CrossRef) {
		t.Error("changing the branch must change the cross-reference hash")
	}
}

func TestOperations_appendToAuditLog(t *testing.T) {
	svc, log := newService()

	if _, err := svc.RegisterTask(ctx, "dev@blackroad", sampleTask()); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.VerifyTask(ctx, sampleTask()); err != nil {
		t.Fatal(err)
	}

	n, err := log.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 { // genesis + register + verify
		t.Errorf("audit log length: got %d, want 3", n)
	}
	if err := log.Verify(ctx); err != nil {
		t.Errorf("audit chain invalid after operations: %v", err)
	}

	last, err := log.Get(ctx, n-1)
	if err != nil {
		t.Fatal(err)
	}
	if last.Action != auditlog.ActionVerifyPassed {
		t.Errorf("last action: got %q, want %q", last.Action, auditlog.ActionVerifyPassed)
	}
}

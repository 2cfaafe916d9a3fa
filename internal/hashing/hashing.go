// Package hashing provides baseline single-algorithm hashing of byte
// buffers, files, and file trees. It is the leaf producer for everything
// above it: manifests, Merkle trees, and layered chains all consume the
// digests computed here.
package hashing

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sync"

	"github.com/blackroad/shainfinity/internal/digest"
)

// DefaultExcludes are path fragments skipped by directory hashing unless
// the caller supplies its own exclude list.
var DefaultExcludes = []string{".git", "__pycache__", "node_modules", ".env"}

// workerCount bounds concurrent file reads during directory hashing.
const workerCount = 8

// FileDigest is the hash and size of one regular file.
type FileDigest struct {
	Digest digest.Digest `json:"digest"`
	Size   int64         `json:"size"`
}

// DirResult is the outcome of hashing a file tree. Files is unordered by
// contract; callers must not depend on iteration order. Failures holds
// per-file errors: one unreadable file never suppresses the digests of
// its siblings.
type DirResult struct {
	Files    map[string]FileDigest
	Failures map[string]error
}

// HashBytes digests content with the primary registry algorithm.
func HashBytes(content []byte) (digest.Digest, error) {
	return digest.Primary().Sum(content)
}

// HashFile streams the file at path through the primary algorithm and
// returns its digest and size.
func HashFile(path string) (digest.Digest, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return digest.Digest{}, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return hashReader(f, path)
}

func hashReader(r io.Reader, name string) (digest.Digest, int64, error) {
	// The streaming construction must match Algorithm.Sum byte for byte,
	// so buffer and delegate; file sizes in this workflow are small.
	content, err := io.ReadAll(r)
	if err != nil {
		return digest.Digest{}, 0, fmt.Errorf("read %s: %w", name, err)
	}
	d, err := digest.Primary().Sum(content)
	if err != nil {
		return digest.Digest{}, 0, err
	}
	return d, int64(len(content)), nil
}

// HashDirectory hashes every regular file under root, excluding paths that
// match any exclude fragment. It is a convenience wrapper over HashFS.
func HashDirectory(ctx context.Context, root string, exclude []string) (*DirResult, error) {
	return HashFS(ctx, os.DirFS(root), exclude)
}

// HashFS hashes every regular file in fsys with bounded parallelism.
// Paths are slash-separated and relative to the fs root. Each file's
// digest computation is independent; results are collected into the
// unordered Files map, and per-file read errors are aggregated into
// Failures instead of aborting the walk.
func HashFS(ctx context.Context, fsys fs.FS, exclude []string) (*DirResult, error) {
	if exclude == nil {
		exclude = DefaultExcludes
	}

	var paths []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if excluded(p, exclude) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk: %w", err)
	}

	result := &DirResult{
		Files:    make(map[string]FileDigest, len(paths)),
		Failures: make(map[string]error),
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, workerCount)
	)
	for _, p := range paths {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				mu.Lock()
				result.Failures[p] = ctx.Err()
				mu.Unlock()
				return
			}

			fd, ferr := hashFSFile(fsys, p)
			mu.Lock()
			if ferr != nil {
				result.Failures[p] = ferr
			} else {
				result.Files[p] = fd
			}
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	return result, nil
}

func hashFSFile(fsys fs.FS, p string) (FileDigest, error) {
	f, err := fsys.Open(p)
	if err != nil {
		return FileDigest{}, fmt.Errorf("open %s: %w", p, err)
	}
	defer f.Close()

	d, size, err := hashReader(f, p)
	if err != nil {
		return FileDigest{}, err
	}
	return FileDigest{Digest: d, Size: size}, nil
}

// excluded reports whether p matches any exclude entry. An entry matches
// when it equals a path element or glob-matches the base name. This is the
// canonical exclusion policy; manifest interoperability depends on both
// sides using the same excludes.
func excluded(p string, exclude []string) bool {
	if p == "." {
		return false
	}
	base := path.Base(p)
	for _, ex := range exclude {
		if ok, _ := path.Match(ex, base); ok {
			return true
		}
		for rest := p; rest != "."; rest = path.Dir(rest) {
			if path.Base(rest) == ex {
				return true
			}
		}
	}
	return false
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blackroad/shainfinity/internal/chain"
	"github.com/blackroad/shainfinity/internal/crossref"
	"github.com/blackroad/shainfinity/internal/digest"
	"github.com/blackroad/shainfinity/internal/hashing"
	"github.com/blackroad/shainfinity/internal/manifest"
	"github.com/blackroad/shainfinity/internal/merkle"
	"github.com/blackroad/shainfinity/internal/timelock"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile  string
	excludes []string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shainf",
	Short: "SHA-Infinity integrity toolkit CLI",
	Long: `shainf is the command-line interface for the SHA-Infinity toolkit.

It hashes files and directories, builds and verifies manifests, and runs
layered hash chains over arbitrary content.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.shainf")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if len(excludes) == 0 {
			excludes = viper.GetStringSlice("exclude")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.shainf/config.yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&excludes, "exclude", nil, "Directory walk exclude patterns (in addition to built-in defaults)")

	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(hashDirCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(hashInfiniteCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(versionCmd)
}

func walkExcludes() []string {
	return append(append([]string{}, hashing.DefaultExcludes...), excludes...)
}

// ── hash ─────────────────────────────────────────────────────────────────────

var hashCmd = &cobra.Command{
	Use:   "hash <file> [file...]",
	Short: "Print the primary digest of one or more files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			d, size, err := hashing.HashFile(path)
			if err != nil {
				return fmt.Errorf("hash %q: %w", path, err)
			}
			fmt.Printf("%s  %s  (%d bytes)\n", d.Hex(), path, size)
		}
		return nil
	},
}

// ── hash-dir ─────────────────────────────────────────────────────────────────

var hashDirCmd = &cobra.Command{
	Use:   "hash-dir <dir>",
	Short: "Hash every file under a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := hashing.HashDirectory(context.Background(), args[0], walkExcludes())
		if err != nil {
			return fmt.Errorf("hash directory %q: %w", args[0], err)
		}

		paths := sortedPaths(result.Files)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, p := range paths {
			fd := result.Files[p]
			fmt.Fprintf(w, "%s\t%s\t%d\n", fd.Digest.Hex(), p, fd.Size)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		for p, ferr := range result.Failures {
			fmt.Fprintf(os.Stderr, "skipped %s: %v\n", p, ferr)
		}
		fmt.Printf("\n%d file(s) hashed", len(result.Files))
		if len(result.Failures) > 0 {
			fmt.Printf(", %d skipped", len(result.Failures))
		}
		fmt.Println()
		return nil
	},
}

// ── manifest ─────────────────────────────────────────────────────────────────

var manifestCmd = &cobra.Command{
	Use:   "manifest <dir> <out.json>",
	Short: "Build an integrity manifest for a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, out := args[0], args[1]

		result, err := hashing.HashDirectory(context.Background(), dir, walkExcludes())
		if err != nil {
			return fmt.Errorf("hash directory %q: %w", dir, err)
		}
		for p, ferr := range result.Failures {
			fmt.Fprintf(os.Stderr, "skipped %s: %v\n", p, ferr)
		}

		m, err := manifest.Build(result.Files)
		if err != nil {
			return fmt.Errorf("build manifest: %w", err)
		}
		if err := m.WriteFile(out); err != nil {
			return err
		}

		fmt.Printf("✓ Manifest written: %s\n\n", out)
		fmt.Printf("  Files:         %d\n", m.FileCount)
		fmt.Printf("  Total size:    %d bytes\n", m.TotalSize)
		fmt.Printf("  Manifest hash: %s\n", m.ManifestHash)
		return nil
	},
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify <manifest.json> <dir>",
	Short: "Verify a directory against a previously built manifest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.ReadFile(args[0])
		if err != nil {
			return err
		}

		result, err := hashing.HashDirectory(context.Background(), args[1], walkExcludes())
		if err != nil {
			return fmt.Errorf("hash directory %q: %w", args[1], err)
		}

		report := m.Verify(result.Files)
		if report.Verified {
			fmt.Printf("✓ Verified: %d file(s) match the manifest\n", m.FileCount)
			return nil
		}

		fmt.Printf("✗ Verification FAILED: %d mismatch(es)\n\n", len(report.Mismatches))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PATH\tKIND")
		for _, mm := range report.Mismatches {
			fmt.Fprintf(w, "%s\t%s\n", mm.Path, mm.Kind)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		os.Exit(1)
		return nil
	},
}

// ── hash-infinite ────────────────────────────────────────────────────────────

var (
	infiniteDepth  int
	infiniteIsFile bool
)

var hashInfiniteCmd = &cobra.Command{
	Use:   "hash-infinite <content>",
	Short: "Run a layered hash chain over content and print every layer",
	Long: `hash-infinite feeds the content through a rotating sequence of hash
algorithms. Each layer digests the previous layer's output concatenated
with the original content, so every layer independently commits to the
input.

  shainf hash-infinite "hello world"
  shainf hash-infinite --file ./binary --depth 12`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content := []byte(args[0])
		if infiniteIsFile {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %q: %w", args[0], err)
			}
			content = raw
		}

		c, err := chain.HashInfinite(content, infiniteDepth)
		if err != nil {
			return fmt.Errorf("hash chain: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "LAYER\tALGORITHM\tDIGEST")
		for _, l := range c.Layers() {
			fmt.Fprintf(w, "%d\t%s\t%s\n", l.Index, l.Algorithm, l.Digest.Hex())
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\nFinal: %s\n", c.Final())
		return nil
	},
}

func init() {
	hashInfiniteCmd.Flags().IntVar(&infiniteDepth, "depth", chain.DefaultDepth, "Number of chain layers")
	hashInfiniteCmd.Flags().BoolVar(&infiniteIsFile, "file", false, "Treat the argument as a file path instead of literal content")
}

// ── report ───────────────────────────────────────────────────────────────────

var reportFormat string

// dirReport is the JSON shape of the report command output.
type dirReport struct {
	Root       string            `json:"root"`
	FileCount  int               `json:"file_count"`
	MerkleRoot digest.Digest     `json:"merkle_root"`
	ChainFinal digest.Digest     `json:"chain_final"`
	Files      map[string]string `json:"files"`
	Skipped    map[string]string `json:"skipped,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

var reportCmd = &cobra.Command{
	Use:   "report <dir>",
	Short: "Produce a full integrity report for a directory",
	Long: `report hashes every file under the directory, builds a Merkle tree over
the per-file digests (in sorted path order), and runs a layered hash
chain over the Merkle root. The chain final is a single value that
commits to the entire directory state.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := hashing.HashDirectory(context.Background(), args[0], walkExcludes())
		if err != nil {
			return fmt.Errorf("hash directory %q: %w", args[0], err)
		}
		if len(result.Files) == 0 {
			return fmt.Errorf("no hashable files under %q", args[0])
		}

		paths := sortedPaths(result.Files)
		leaves := make([]digest.Digest, len(paths))
		for i, p := range paths {
			leaves[i] = result.Files[p].Digest
		}

		tree, err := merkle.Build(leaves)
		if err != nil {
			return fmt.Errorf("build merkle tree: %w", err)
		}
		c, err := chain.HashInfinite(tree.RootDigest().Sum, chain.DefaultDepth)
		if err != nil {
			return fmt.Errorf("hash chain: %w", err)
		}

		rep := dirReport{
			Root:       args[0],
			FileCount:  len(result.Files),
			MerkleRoot: tree.RootDigest(),
			ChainFinal: c.Final(),
			Files:      make(map[string]string, len(result.Files)),
			Timestamp:  time.Now().UTC(),
		}
		for p, fd := range result.Files {
			rep.Files[p] = fd.Digest.String()
		}
		if len(result.Failures) > 0 {
			rep.Skipped = make(map[string]string, len(result.Failures))
			for p, ferr := range result.Failures {
				rep.Skipped[p] = ferr.Error()
			}
		}

		if reportFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}

		fmt.Printf("Integrity report: %s\n\n", rep.Root)
		fmt.Printf("  Files:       %d\n", rep.FileCount)
		fmt.Printf("  Merkle root: %s\n", rep.MerkleRoot)
		fmt.Printf("  Chain final: %s\n\n", rep.ChainFinal)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, p := range paths {
			fmt.Fprintf(w, "  %s\t%s\n", result.Files[p].Digest.Hex(), p)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		for p, ferr := range result.Failures {
			fmt.Fprintf(os.Stderr, "skipped %s: %v\n", p, ferr)
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "text", "Output format: text or json")
}

// ── demo ─────────────────────────────────────────────────────────────────────

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Walk through every hashing primitive with sample data",
	RunE: func(cmd *cobra.Command, args []string) error {
		content := []byte("The quick brown fox jumps over the lazy dog")
		fmt.Printf("Sample content: %q\n\n", content)

		// Layered chain.
		c, err := chain.HashInfinite(content, chain.DefaultDepth)
		if err != nil {
			return err
		}
		fmt.Printf("Layered chain (%d layers):\n", c.Depth())
		for _, l := range c.Layers() {
			fmt.Printf("  [%d] %-9s %s\n", l.Index, l.Algorithm, l.Digest.Hex())
		}
		fmt.Printf("  Final: %s\n\n", c.Final())

		// Merkle tree over three leaves.
		leaves := make([]digest.Digest, 3)
		for i, s := range []string{"alpha", "beta", "gamma"} {
			d, err := hashing.HashBytes([]byte(s))
			if err != nil {
				return err
			}
			leaves[i] = d
			fmt.Printf("Leaf %d (%s): %s\n", i, s, d.Hex())
		}
		tree, err := merkle.Build(leaves)
		if err != nil {
			return err
		}
		fmt.Printf("Merkle root (odd leaf duplicated): %s\n", tree.RootDigest().Hex())

		proof, err := tree.Prove(1)
		if err != nil {
			return err
		}
		fmt.Printf("Proof for leaf 1 verifies: %v\n\n", merkle.VerifyProof(leaves[1], proof, tree.RootDigest()))

		// Time-lock.
		unlockAt := time.Now().Add(time.Hour)
		rec, err := timelock.Lock(content, unlockAt)
		if err != nil {
			return err
		}
		fmt.Printf("Time-lock until %s\n", rec.UnlockAt.Format(time.RFC3339))
		fmt.Printf("  Verify now:          %s\n", timelock.Verify(rec, content, time.Now()))
		fmt.Printf("  Verify after unlock: %s\n\n", timelock.Verify(rec, content, unlockAt.Add(time.Minute)))

		// Cross-reference.
		components := map[string]digest.Digest{
			"title":  leaves[0],
			"branch": leaves[1],
			"body":   leaves[2],
		}
		xref, err := crossref.Combine(components)
		if err != nil {
			return err
		}
		fmt.Printf("Cross-reference combined: %s\n", xref.Combined.Hex())
		res := crossref.Verify(xref, components)
		fmt.Printf("  Verify unchanged: valid=%v\n", res.Valid)

		components["branch"] = leaves[2]
		res = crossref.Verify(xref, components)
		fmt.Printf("  Verify tampered:  valid=%v changed=%v\n", res.Valid, res.Changed)
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the shainf CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("shainf %s (SHA-Infinity toolkit)\n", version)
	},
}

func sortedPaths(files map[string]hashing.FileDigest) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

package buildworker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	"github.com/wrwrabbit/apk-customizer-bot/internal/server/http/dto"
)

const (
	orderFile    = "order.json"
	sentinelFile = "done"
	archiveFile  = "sources.zip"
)

var errNoSentinel = errors.New("build finished without confirmation of success")

// StepError describes a failed external step with its captured output.
type StepError struct {
	Step   string
	Err    error
	Stderr string
	Stdout string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Diagnostic renders the failure text reported to the controller.
func Diagnostic(err error) string {
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		return err.Error()
	}
	var b strings.Builder
	b.WriteString(stepErr.Error())
	if stepErr.Stderr != "" {
		b.WriteString("\n\nstderr: ")
		b.WriteString(stepErr.Stderr)
	}
	if stepErr.Stdout != "" {
		b.WriteString("\n\nstdout: ")
		b.WriteString(stepErr.Stdout)
	}
	return b.String()
}

// Workspace runs the external checkout and build steps inside per-order directories.
type Workspace struct {
	root            string
	dataDir         string
	checkoutCommand string
	buildCommand    string
	artifactPath    string
	sourcesPath     string
	sourcesExclude  []string
	logger          *slog.Logger
}

// NewWorkspace creates a workspace rooted at cfg.WorkDir.
func NewWorkspace(cfg *config.WorkerConfig, logger *slog.Logger) (*Workspace, error) {
	root, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir: %w", err)
	}
	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	return &Workspace{
		root:            root,
		dataDir:         dataDir,
		checkoutCommand: cfg.CheckoutCommand,
		buildCommand:    cfg.BuildCommand,
		artifactPath:    cfg.ArtifactPath,
		sourcesPath:     cfg.SourcesPath,
		sourcesExclude:  cfg.SourcesExclude,
		logger:          logger,
	}, nil
}

// Prepare recreates the working directory of order and writes its payload to order.json.
func (w *Workspace) Prepare(order *dto.OrderPayload) (string, error) {
	dir := filepath.Join(w.root, "order-"+strconv.FormatInt(order.ID, 10))
	if order.SourcesOnly {
		dir += "-sources"
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clean order dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create order dir: %w", err)
	}

	content, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("encode order: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, orderFile), content, 0o600); err != nil {
		return "", fmt.Errorf("write order: %w", err)
	}
	return dir, nil
}

// Checkout runs the checkout command from the data dir. It mutates the shared checkout, so
// callers hold the critical section.
func (w *Workspace) Checkout(ctx context.Context, dir string) error {
	if w.checkoutCommand == "" {
		return nil
	}
	return w.run(ctx, "checkout", w.checkoutCommand, w.dataDir, dir)
}

// Build runs the build command inside dir and returns the artifact path. The command signals
// success by creating the sentinel file next to order.json.
func (w *Workspace) Build(ctx context.Context, dir string) (string, error) {
	if err := w.run(ctx, "build", w.buildCommand, dir, dir); err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(dir, sentinelFile)); err != nil {
		return "", &StepError{Step: "build", Err: errNoSentinel}
	}
	artifact := filepath.Join(dir, w.artifactPath)
	info, err := os.Stat(artifact)
	if err != nil || info.IsDir() {
		return "", &StepError{Step: "build", Err: fmt.Errorf("artifact %s not found", w.artifactPath)}
	}
	return artifact, nil
}

// ArchiveSources zips the checked out tree, skipping excluded paths, and returns the archive path.
func (w *Workspace) ArchiveSources(_ context.Context, dir string) (string, error) {
	src := filepath.Join(dir, w.sourcesPath)
	info, err := os.Stat(src)
	if err != nil || !info.IsDir() {
		return "", &StepError{Step: "archive", Err: fmt.Errorf("sources %s not found", w.sourcesPath)}
	}

	target := filepath.Join(dir, archiveFile)
	if err := w.zipTree(src, target); err != nil {
		return "", &StepError{Step: "archive", Err: err}
	}
	return target, nil
}

// Remove deletes the working directory.
func (w *Workspace) Remove(dir string) error {
	return os.RemoveAll(dir)
}

func (w *Workspace) run(ctx context.Context, step, command, cwd, orderDir string) error {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(),
		"ORDER_DIR="+orderDir,
		"ORDER_FILE="+filepath.Join(orderDir, orderFile),
		"DATA_DIR="+w.dataDir,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	w.logger.Debug("running step", slog.String("step", step), slog.String("dir", cwd))
	if err := cmd.Run(); err != nil {
		return &StepError{Step: step, Err: err, Stderr: stderr.String(), Stdout: stdout.String()}
	}
	return nil
}

func (w *Workspace) excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	return slices.ContainsFunc(w.sourcesExclude, func(pattern string) bool {
		pattern = strings.Trim(filepath.ToSlash(pattern), "/")
		return pattern != "" && (rel == pattern || strings.HasPrefix(rel, pattern+"/"))
	})
}

func (w *Workspace) zipTree(src, target string) (err error) {
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	archive := zip.NewWriter(out)
	walkErr := filepath.WalkDir(src, func(file string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, file)
		if err != nil || rel == "." {
			return err
		}
		if w.excluded(rel) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() && !entry.IsDir() {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if entry.IsDir() {
			header.Name += "/"
			_, err = archive.CreateHeader(header)
			return err
		}
		header.Method = zip.Deflate

		dst, err := archive.CreateHeader(header)
		if err != nil {
			return err
		}
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(dst, f)
		return err
	})
	if walkErr != nil {
		_ = archive.Close()
		return fmt.Errorf("archive sources: %w", walkErr)
	}
	return archive.Close()
}

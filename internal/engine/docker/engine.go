// Package docker invokes the external crawl engine as a container with the
// collection's working directory bind-mounted, so the engine's log and
// checkpoint writes land where the supervisor can inspect them afterward.
package docker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edgi-govdata-archiving/wm-crawl-supervisor/internal/supervisor"
)

// mountPoint is where the collection working directory appears inside the
// engine container. Everything the supervisor hands the engine is rewritten
// relative to it.
const mountPoint = "/crawls"

// maxLineBytes bounds scanner buffers; engine status lines are small but
// error details can embed page URLs and stack traces.
const maxLineBytes = 1 << 20

// Config describes how to launch the engine container.
type Config struct {
	// Binary is the container runtime executable, normally "docker".
	Binary string
	// Image is the crawl engine image reference.
	Image string
	// ExtraArgs are appended to the engine's own argument list.
	ExtraArgs []string
}

// Engine implements supervisor.Engine by shelling out to a container
// runtime. One Engine is reusable across attempts and collections.
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// New builds an Engine. Image is required.
func New(cfg Config, logger *zap.Logger) (*Engine, error) {
	if cfg.Image == "" {
		return nil, errors.New("engine image is required")
	}
	if cfg.Binary == "" {
		cfg.Binary = "docker"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

// Start launches one attempt. The child is scoped to ctx: cancellation kills
// it rather than leaving an orphan. Checkpoint persistence is always
// requested so resumption stays possible regardless of why the attempt ends.
// No attempt timeout is imposed here; that policy belongs to the caller's
// environment.
func (e *Engine) Start(ctx context.Context, spec supervisor.AttemptSpec) (supervisor.EngineProcess, error) {
	configPath, err := containerPath(spec.WorkDir, spec.ConfigPath)
	if err != nil {
		return nil, err
	}
	workDir, err := filepath.Abs(spec.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir %s: %w", spec.WorkDir, err)
	}

	args := []string{
		"run", "--rm",
		"-v", workDir + ":" + mountPoint,
		e.cfg.Image,
		"crawl",
		"--config", configPath,
		"--collection", spec.Collection,
		"--saveState", "always",
	}
	args = append(args, e.cfg.ExtraArgs...)

	cmd := exec.CommandContext(ctx, e.cfg.Binary, args...)
	cmd.WaitDelay = 10 * time.Second

	// The engine interleaves status and error lines across stdout and
	// stderr; the supervisor wants them as one ordered stream.
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	e.logger.Debug("launching crawl engine",
		zap.String("collection", spec.Collection),
		zap.String("binary", e.cfg.Binary),
		zap.Strings("args", args),
	)

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return nil, fmt.Errorf("start engine process: %w", err)
	}

	p := &process{
		cmd:      cmd,
		pw:       pw,
		lines:    make(chan string, 256),
		scanDone: make(chan struct{}),
	}
	go p.scan(pr)
	return p, nil
}

// process is one running engine attempt.
type process struct {
	cmd      *exec.Cmd
	pw       *io.PipeWriter
	lines    chan string
	scanDone chan struct{}

	waitOnce sync.Once
	exitCode int
	waitErr  error
}

// Lines yields the raw combined output stream. The channel closes once the
// process has exited and the stream is fully drained.
func (p *process) Lines() <-chan string {
	return p.lines
}

// Wait blocks until the process exits and the output stream is drained. The
// exit code is reported even when non-zero; the returned error is reserved
// for process infrastructure failures.
func (p *process) Wait() (int, error) {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		// Unblock the scanner: the pipe has no more writers.
		p.pw.Close()
		<-p.scanDone

		var exitErr *exec.ExitError
		switch {
		case err == nil:
			p.exitCode = 0
		case errors.As(err, &exitErr):
			p.exitCode = exitErr.ExitCode()
		default:
			p.exitCode = -1
			p.waitErr = err
		}
	})
	return p.exitCode, p.waitErr
}

func (p *process) scan(r io.Reader) {
	defer close(p.scanDone)
	defer close(p.lines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
}

// containerPath rewrites a host path under the work directory to its
// location inside the container mount.
func containerPath(workDir, hostPath string) (string, error) {
	absWork, err := filepath.Abs(workDir)
	if err != nil {
		return "", fmt.Errorf("resolve work dir %s: %w", workDir, err)
	}
	absHost, err := filepath.Abs(hostPath)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", hostPath, err)
	}
	rel, err := filepath.Rel(absWork, absHost)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside work dir %s", hostPath, workDir)
	}
	return path.Join(mountPoint, filepath.ToSlash(rel)), nil
}

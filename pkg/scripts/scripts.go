// Package scripts runs package lifecycle scripts with an in-process POSIX
// shell interpreter, so that probing an optional dependency does not depend
// on the host's /bin/sh.
package scripts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/matzehuels/fyn/pkg/deps"
	fynerrors "github.com/matzehuels/fyn/pkg/errors"
)

// DefaultTimeout bounds one script run.
const DefaultTimeout = 2 * time.Minute

// Runner executes scripts. The zero value discards output and uses
// DefaultTimeout.
type Runner struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Timeout time.Duration
	Logger  *log.Logger
}

var _ deps.ScriptRunner = (*Runner)(nil)

// Run executes script in dir with env appended to the process environment.
// node_modules/.bin of dir is prepended to PATH. A non-zero exit is
// reported through the code, not the error; the error is for scripts that
// could not be parsed or started.
func (r *Runner) Run(ctx context.Context, dir, script string, env []string) (int, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(script), "script")
	if err != nil {
		return 1, fynerrors.Wrap(fynerrors.ErrCodeInvalidInput, err, "parse script")
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer
	opts := []interp.RunnerOption{
		interp.StdIO(nil, writerOr(r.Stdout), io.MultiWriter(&stderr, writerOr(r.Stderr))),
		interp.Env(expand.ListEnviron(Environ(dir, env)...)),
		interp.Dir(dir),
	}
	runner, err := interp.New(opts...)
	if err != nil {
		return 1, fynerrors.Wrap(fynerrors.ErrCodeInternal, err, "create shell")
	}

	start := time.Now()
	err = runner.Run(ctx, prog)
	if r.Logger != nil {
		r.Logger.Debug("ran script", "dir", dir, "took", time.Since(start), "err", err)
	}
	if err == nil {
		return 0, nil
	}
	var status interp.ExitStatus
	if errors.As(err, &status) {
		if status != 0 && stderr.Len() > 0 && r.Logger != nil {
			r.Logger.Debug("script stderr", "dir", dir, "out", strings.TrimSpace(stderr.String()))
		}
		return int(status), nil
	}
	if ctx.Err() != nil {
		return 1, fynerrors.Wrap(fynerrors.ErrCodeTimeout, ctx.Err(), "script in %s", dir)
	}
	return 1, err
}

// Environ builds the environment a script in dir sees.
func Environ(dir string, extra []string) []string {
	env := os.Environ()
	bin := filepath.Join(dir, "node_modules", ".bin")
	path := bin
	for i, kv := range env {
		if v, ok := strings.CutPrefix(kv, "PATH="); ok {
			path = bin + string(os.PathListSeparator) + v
			env = append(env[:i:i], env[i+1:]...)
			break
		}
	}
	env = append(env, "PATH="+path, "INIT_CWD="+dir)
	return append(env, extra...)
}

func writerOr(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

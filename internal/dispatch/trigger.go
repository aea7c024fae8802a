package dispatch

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// Trigger starts one workflow run.
type Trigger interface {
	Trigger(ctx context.Context, workflow string) (TriggerResult, error)
}

// TriggerResult is what the trigger command reported.
type TriggerResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// GHTrigger runs `gh workflow run <workflow> --repo <repo>`.
type GHTrigger struct {
	Repo string

	// Binary defaults to "gh".
	Binary string
}

// Trigger implements Trigger. A non-zero exit is a result, not an error; the
// error is reserved for commands that could not start.
func (g GHTrigger) Trigger(ctx context.Context, workflow string) (TriggerResult, error) {
	bin := g.Binary
	if bin == "" {
		bin = "gh"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "workflow", "run", workflow, "--repo", g.Repo)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := TriggerResult{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		res.ExitCode = -1
		return res, errors.Wrapf(err, "start %s", bin)
	}
}

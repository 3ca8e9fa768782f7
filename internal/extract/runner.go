package extract

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger *zap.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		r.logger.Error("exec failed",
			zap.String("cmd", name),
			zap.Strings("args", args),
			zap.Duration("elapsed", time.Since(start)),
			zap.ByteString("stderr", bounded(errb.Bytes(), 8<<10)),
			zap.Error(err),
		)
	} else {
		r.logger.Debug("exec ok",
			zap.String("cmd", name),
			zap.Strings("args", args),
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("stdout_bytes", out.Len()),
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

func bounded(b []byte, max int) []byte {
	if len(b) <= max {
		return b
	}
	return b[:max]
}

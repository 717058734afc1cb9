package build

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrick/logrotate/rotator"
)

// gzipSuffix is appended to every rolled log file.
const gzipSuffix = "gz"

// RotatingLogWriter feeds log lines through a pipe into a log file rotator.
type RotatingLogWriter struct {
	mu sync.RWMutex

	// pipe is the write-end pipe for writing to the log rotator.
	pipe *io.PipeWriter

	rotator *rotator.Rotator
}

// NewRotatingLogWriter creates a new file rotating log writer.
//
// NOTE: `InitLogRotator` must be called to set up log rotation after creating
// the writer.
func NewRotatingLogWriter() *RotatingLogWriter {
	return &RotatingLogWriter{}
}

// InitLogRotator initializes the log file rotator to write logs to logFile and
// create roll files in the same directory. It should be called as early on
// startup and possible and must be closed on shutdown by calling `Close`. A
// rotator set up by an earlier call is closed and replaced.
func (r *RotatingLogWriter) InitLogRotator(logFile string, maxFileSizeMB,
	maxFiles int) error {

	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	rot, err := rotator.New(
		logFile, int64(maxFileSizeMB*1024), false, maxFiles,
	)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	rot.SetCompressor(gzip.NewWriter(nil), gzipSuffix)

	// Run rotator as a goroutine now but make sure we catch any errors
	// that happen in case something with the rotation goes wrong during
	// runtime (like running out of disk space or not being allowed to
	// create a new logfile for whatever reason).
	pr, pw := io.Pipe()
	go func() {
		err := rot.Run(pr)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr,
				"failed to run file rotator: %v\n", err)
		}
	}()

	r.mu.Lock()
	oldPipe, oldRotator := r.pipe, r.rotator
	r.pipe, r.rotator = pw, rot
	r.mu.Unlock()

	closeRotator(oldPipe, oldRotator)

	return nil
}

// Pipe returns the write end of the rotator pipe, or nil if the rotator has
// not been initialized.
func (r *RotatingLogWriter) Pipe() *io.PipeWriter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.pipe
}

// Write writes the byte slice to the log rotator, if present.
func (r *RotatingLogWriter) Write(b []byte) (int, error) {
	if pipe := r.Pipe(); pipe != nil {
		return pipe.Write(b)
	}

	return len(b), nil
}

// Close closes the underlying log rotator if it has already been created.
func (r *RotatingLogWriter) Close() error {
	r.mu.Lock()
	pipe, rot := r.pipe, r.rotator
	r.pipe, r.rotator = nil, nil
	r.mu.Unlock()

	return closeRotator(pipe, rot)
}

func closeRotator(pipe *io.PipeWriter, rot *rotator.Rotator) error {
	if pipe != nil {
		_ = pipe.Close()
	}
	if rot != nil {
		return rot.Close()
	}

	return nil
}

package project

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// Cleaner removes synthesized projects that outlived the run that created
// them, for example after a test binary was killed before its deferred
// cleanup ran.
type Cleaner struct {
	root   string
	maxAge time.Duration
	logger logrus.FieldLogger
}

// NewCleaner creates a cleaner for the projects under root. A zero maxAge
// means 24 hours.
func NewCleaner(root string, maxAge time.Duration, logger logrus.FieldLogger) *Cleaner {
	if maxAge == 0 {
		maxAge = 24 * time.Hour
	}
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &Cleaner{root: root, maxAge: maxAge, logger: logger}
}

// Root is the directory the cleaner scans.
func (c *Cleaner) Root() string {
	return c.root
}

// Clean removes every stale project and returns the removed directories.
// Running it twice is harmless.
func (c *Cleaner) Clean() ([]string, error) {
	candidates, err := c.stale()
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, dir := range candidates {
		c.logger.WithField("dir", dir).Debug("removing stale project")
		if err := os.RemoveAll(dir); err != nil {
			return removed, fmt.Errorf("failed to remove stale project %s: %w", dir, err)
		}
		removed = append(removed, dir)
	}
	return removed, nil
}

// Stats returns how many stale projects exist and their total size in bytes.
func (c *Cleaner) Stats() (int, int64, error) {
	candidates, err := c.stale()
	if err != nil {
		return 0, 0, err
	}

	var total int64
	for _, dir := range candidates {
		size, err := directorySize(dir)
		if err == nil {
			total += size
		}
	}
	return len(candidates), total, nil
}

func (c *Cleaner) stale() ([]string, error) {
	entries, err := os.ReadDir(c.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", c.root, err)
	}

	var candidates []string
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == BuildDir {
			continue
		}
		dir := filepath.Join(c.root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) < c.maxAge {
			c.logger.WithField("dir", dir).Debug("skipping recent project")
			continue
		}
		if c.inUse(dir) {
			c.logger.WithField("dir", dir).Debug("skipping project in use")
			continue
		}
		candidates = append(candidates, dir)
	}
	return candidates, nil
}

// inUse reports whether the process that materialized dir is still alive. A
// lock left by a crashed run does not count.
func (c *Cleaner) inUse(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, lockFile))
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false
	}
	return processAlive(pid)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if pid == os.Getpid() {
		return true
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if runtime.GOOS == "windows" {
		// FindProcess opens a handle on Windows and fails for processes that
		// do not exist; Signal cannot probe liveness there.
		_ = process.Release()
		return true
	}
	// Signal 0 checks deliverability without sending anything.
	return process.Signal(syscall.Signal(0)) == nil
}

func directorySize(dir string) (int64, error) {
	var size int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			size += info.Size()
		}
		return nil
	})
	return size, err
}

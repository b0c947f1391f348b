package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sys/unix"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/types"
)

// DefaultMaxSize is the log size that triggers rotation.
const DefaultMaxSize = "10MB"

// backupStamp names rotated files; it sorts lexically in time order.
const backupStamp = "20060102T150405"

// RotationConfig configures log file rotation.
type RotationConfig struct {
	// MaxSize is the size, e.g. "10MB" or "512K", past which the file is
	// rotated. Empty uses DefaultMaxSize.
	MaxSize string `mapstructure:"max_size"`

	// MaxAge is the number of days a backup is kept. Zero keeps them.
	MaxAge int `mapstructure:"max_age"`

	// MaxBackups is the number of backups kept. Zero keeps them all.
	MaxBackups int `mapstructure:"max_backups"`

	// Daily rotates on the first write of a new day.
	Daily bool `mapstructure:"daily"`

	// RotateOnStart moves an existing non-empty log aside when the writer
	// opens, so each mirror run starts a fresh file.
	RotateOnStart bool `mapstructure:"rotate_on_start"`

	// Clock stamps backups and drives daily rotation. Nil uses the real
	// clock.
	Clock clockwork.Clock `mapstructure:"-"`
}

// DefaultRotationConfig returns the rotation defaults.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    DefaultMaxSize,
		MaxAge:     30,
		MaxBackups: 5,
		Daily:      true,
	}
}

// Limit returns MaxSize in bytes.
func (c RotationConfig) Limit() (int64, error) {
	if c.MaxSize == "" {
		return types.ParseSize(DefaultMaxSize)
	}
	limit, err := types.ParseSize(c.MaxSize)
	if err != nil {
		return 0, err
	}
	if limit <= 0 {
		return 0, fmt.Errorf("%w: max size must be positive", types.ErrInvalidSize)
	}
	return limit, nil
}

// RotatingWriter is an io.WriteCloser over a log file that rotates by
// size and day. Writes take an flock on the file so a `mirrorsync plan`
// and a running mirror sharing the log never interleave lines.
type RotatingWriter struct {
	path  string
	cfg   RotationConfig
	limit int64
	clock clockwork.Clock

	mu     sync.Mutex
	file   *os.File
	size   int64
	opened time.Time
}

// NewRotatingWriter opens path for appending, creating its directory.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	limit, err := cfg.Limit()
	if err != nil {
		return nil, fmt.Errorf("rotation max size: %w", err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{path: path, cfg: cfg, limit: limit, clock: clock}

	if cfg.RotateOnStart {
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			if err := w.moveAside(); err != nil {
				return nil, err
			}
		}
	}

	if err := w.open(); err != nil {
		return nil, err
	}
	w.prune()
	return w, nil
}

// Write appends p, rotating first when p would cross the size limit or
// the day has changed.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}

	if w.due(int64(len(p))) {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotating log file: %w", err)
		}
	}

	fd := int(w.file.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return 0, fmt.Errorf("locking log file: %w", err)
	}
	defer func() {
		_ = unix.Flock(fd, unix.LOCK_UN)
	}()

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing log file: %w", err)
	}
	return n, nil
}

// Close syncs and closes the file. Closing twice is a no-op.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	w.file = nil
	if syncErr != nil {
		return fmt.Errorf("syncing log file: %w", syncErr)
	}
	return closeErr
}

// Backups returns the rotated files for this log, oldest first.
func (w *RotatingWriter) Backups() []string {
	dir := filepath.Dir(w.path)
	prefix, ext := w.nameParts()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ext) {
			continue
		}
		if _, ok := w.stampOf(name); !ok {
			continue
		}
		out = append(out, name)
	}

	// Same-second backups carry a .n suffix; order them after the bare name.
	sort.Slice(out, func(i, j int) bool {
		si, _ := w.stampOf(out[i])
		sj, _ := w.stampOf(out[j])
		if !si.Equal(sj) {
			return si.Before(sj)
		}
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i] < out[j]
	})
	for i, name := range out {
		out[i] = filepath.Join(dir, name)
	}
	return out
}

func (w *RotatingWriter) open() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	w.file = file
	w.size = info.Size()
	w.opened = w.clock.Now()
	if info.Size() > 0 {
		w.opened = info.ModTime()
	}
	return nil
}

func (w *RotatingWriter) due(n int64) bool {
	if w.size > 0 && w.size+n > w.limit {
		return true
	}
	if !w.cfg.Daily {
		return false
	}
	now := w.clock.Now()
	return now.YearDay() != w.opened.YearDay() || now.Year() != w.opened.Year()
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing log file: %w", err)
	}
	w.file = nil

	if err := w.moveAside(); err != nil {
		return err
	}
	if err := w.open(); err != nil {
		return err
	}
	w.opened = w.clock.Now()
	w.prune()
	return nil
}

// moveAside renames the live log to <name>-<stamp>[.n]<ext>.
func (w *RotatingWriter) moveAside() error {
	prefix, ext := w.nameParts()
	dir := filepath.Dir(w.path)
	stamp := w.clock.Now().Format(backupStamp)

	target := filepath.Join(dir, fmt.Sprintf("%s-%s%s", prefix, stamp, ext))
	for i := 1; ; i++ {
		if _, err := os.Lstat(target); os.IsNotExist(err) {
			break
		}
		target = filepath.Join(dir, fmt.Sprintf("%s-%s.%d%s", prefix, stamp, i, ext))
	}

	if err := os.Rename(w.path, target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("moving log file aside: %w", err)
	}
	return nil
}

// prune drops backups beyond MaxBackups and those older than MaxAge.
func (w *RotatingWriter) prune() {
	backups := w.Backups()
	cutoff := time.Time{}
	if w.cfg.MaxAge > 0 {
		cutoff = w.clock.Now().Add(-time.Duration(w.cfg.MaxAge) * 24 * time.Hour)
	}

	for i, path := range backups {
		expired := w.cfg.MaxBackups > 0 && len(backups)-i > w.cfg.MaxBackups
		if stamp, ok := w.stampOf(filepath.Base(path)); ok && !cutoff.IsZero() && stamp.Before(cutoff) {
			expired = true
		}
		if expired {
			_ = os.Remove(path)
		}
	}
}

func (w *RotatingWriter) nameParts() (string, string) {
	base := filepath.Base(w.path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}

// stampOf parses the rotation time out of a backup name.
func (w *RotatingWriter) stampOf(name string) (time.Time, bool) {
	prefix, ext := w.nameParts()
	rest := strings.TrimSuffix(strings.TrimPrefix(name, prefix+"-"), ext)
	if len(rest) < len(backupStamp) {
		return time.Time{}, false
	}
	stamp, err := time.ParseInLocation(backupStamp, rest[:len(backupStamp)], w.clock.Now().Location())
	if err != nil {
		return time.Time{}, false
	}
	return stamp, true
}

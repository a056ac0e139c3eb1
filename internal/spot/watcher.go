package spot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is how often the watcher looks for a new export.
const DefaultPollInterval = 5 * time.Second

// archiveStamp is the timestamp layout used in claimed and archived file
// names. A per-watcher sequence number follows it.
const archiveStamp = "20060102T150405.000000000"

// claimSuffix marks an export taken off the POS path but not yet archived.
const claimSuffix = ".processing"

// Applier applies a batch of SPOT text.
type Applier interface {
	ApplyText(ctx context.Context, text string) (*Report, error)
}

// WatcherConfig locates the export file.
type WatcherConfig struct {
	Dir          string
	Filename     string
	PollInterval time.Duration
}

// Watcher polls for the POS export file and ingests it. The file is first
// renamed to <name>.<timestamp>-<seq>.processing, so lines the POS writes
// afterwards land in a fresh export, then read and applied. The claim is
// archived as .done, or .failed when the batch did not commit, so it is
// never applied twice.
type Watcher struct {
	cfg     WatcherConfig
	applier Applier
	logger  Logger
	now     func() time.Time
	seq     atomic.Uint64
}

// NewWatcher creates a watcher.
func NewWatcher(cfg WatcherConfig, applier Applier, logger Logger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Watcher{cfg: cfg, applier: applier, logger: logger, now: time.Now}
}

// Path returns the watched file path.
func (w *Watcher) Path() string {
	return filepath.Join(w.cfg.Dir, w.cfg.Filename)
}

// Run polls until ctx is cancelled. Missing files and read failures are
// logged and retried on the next tick.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.logger.Info("spot watcher started", "path", w.Path(), "interval", w.cfg.PollInterval)
	for {
		if _, err := w.PollOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("spot poll failed", "path", w.Path(), "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollOnce ingests the export file if present. A claim left by a run that
// was cancelled mid-batch is applied before a new file is claimed. It
// returns nil, nil when there is nothing to ingest. A batch that fails to
// commit is archived as .failed and its error returned alongside the report.
func (w *Watcher) PollOnce(ctx context.Context) (*Report, error) {
	claimed, err := w.nextClaim()
	if err != nil || claimed == "" {
		return nil, err
	}

	data, err := os.ReadFile(claimed)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", claimed, err)
	}

	report, applyErr := w.applier.ApplyText(ctx, string(data))
	suffix := ".done"
	if applyErr != nil {
		if ctx.Err() != nil {
			// The claim is picked up again by the next poll.
			return report, applyErr
		}
		suffix = ".failed"
	}

	archived := strings.TrimSuffix(claimed, claimSuffix) + suffix
	if err := os.Rename(claimed, archived); err != nil {
		return report, errors.Join(applyErr, fmt.Errorf("archiving %s: %w", claimed, err))
	}
	w.logger.Debug("spot file archived", "path", archived)
	return report, applyErr
}

// nextClaim returns the oldest unfinished claim, or claims the export file
// by renaming it. It returns "" when there is neither.
func (w *Watcher) nextClaim() (string, error) {
	pending, err := filepath.Glob(w.Path() + ".*" + claimSuffix)
	if err != nil {
		return "", fmt.Errorf("listing claims for %s: %w", w.Path(), err)
	}
	if len(pending) > 0 {
		sort.Strings(pending)
		w.logger.Info("resuming spot claim", "path", pending[0])
		return pending[0], nil
	}

	claimed := fmt.Sprintf("%s.%s-%04d%s",
		w.Path(), w.now().UTC().Format(archiveStamp), w.seq.Add(1), claimSuffix)
	if err := os.Rename(w.Path(), claimed); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("claiming %s: %w", w.Path(), err)
	}
	return claimed, nil
}

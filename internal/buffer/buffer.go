// Package buffer keeps the bounded, deduplicated per-interval datasets the
// logger maintains between cycles and mirrors them to log files.
package buffer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/alanyoungcy/cryptobot/internal/aggregate"
	"github.com/alanyoungcy/cryptobot/internal/domain"
	"github.com/alanyoungcy/cryptobot/internal/screener"
)

// incomingTail is the number of newest bars taken from the upstream
// dataset on each cycle.
const incomingTail = 2

// Config describes one buffer.
type Config struct {
	Dir           string
	Name          string // "input" or "output", part of the file name
	Interval      time.Duration
	InputInterval time.Duration
	BufferSize    int // timestamps kept in the dataset
	Roll          int // rows kept in the screened set; 0 keeps all
	Append        bool
	Raw           bool
}

// InputConfig is the raw snapshot buffer fed straight from the exchange.
func InputConfig(dir string) Config {
	return Config{Dir: dir, Name: "input", Interval: 5 * time.Second, BufferSize: 60, Roll: 1000, Raw: true}
}

// FiveSecondConfig is the 5s bar buffer built from raw snapshots.
func FiveSecondConfig(dir string) Config {
	return Config{Dir: dir, Name: "output", Interval: 5 * time.Second, InputInterval: 5 * time.Second, BufferSize: 60, Roll: 1000}
}

// MinuteConfig is the 1m bar buffer built from the 5s buffer. Its
// screened log is what the trader reads.
func MinuteConfig(dir string) Config {
	return Config{Dir: dir, Name: "output", Interval: time.Minute, InputInterval: 5 * time.Second, BufferSize: 1500, Roll: 1000}
}

// Mirror stores a copy of each log outside the local disk.
type Mirror interface {
	Upload(ctx context.Context, name string, data []byte) error
	Download(ctx context.Context, name string) ([]byte, error)
}

// Option configures a CircularLogBuffer.
type Option func(*CircularLogBuffer)

// WithMirror uploads every written log to m and falls back to it when a
// local log is missing at load time.
func WithMirror(m Mirror) Option {
	return func(b *CircularLogBuffer) { b.mirror = m }
}

// CircularLogBuffer pairs a bounded bar dataset with the screened set
// derived from it. It is driven by a single loop and is not safe for
// concurrent use.
type CircularLogBuffer struct {
	cfg      Config
	logger   *slog.Logger
	mirror   Mirror
	dataset  domain.Dataset
	screened domain.ScreenedSet
	live     []string
}

// New validates cfg and creates the log directory.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*CircularLogBuffer, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("buffer: interval must be positive")
	}
	if cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("buffer: buffer size must be positive")
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("buffer: create %s: %w", cfg.Dir, err)
	}
	b := &CircularLogBuffer{cfg: cfg}
	b.logger = logger.With(slog.String("component", "buffer"), slog.String("log", b.LogName()))
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// LogName is the base name shared by the dataset and screened logs,
// e.g. crypto_output_log_1min.
func (b *CircularLogBuffer) LogName() string {
	return "crypto_" + b.cfg.Name + "_log_" + aggregate.FormatInterval(b.cfg.Interval)
}

// LogPath is the dataset log file.
func (b *CircularLogBuffer) LogPath() string {
	return filepath.Join(b.cfg.Dir, b.LogName()+".txt")
}

// ScreenedPath is the screened log file.
func (b *CircularLogBuffer) ScreenedPath() string {
	return filepath.Join(b.cfg.Dir, b.LogName()+"_screened.txt")
}

// ConnectedToRaw reports whether the buffer is fed raw snapshots.
func (b *CircularLogBuffer) ConnectedToRaw() bool {
	return !b.cfg.Raw && b.cfg.InputInterval == b.cfg.Interval
}

// Config returns the buffer's configuration.
func (b *CircularLogBuffer) Config() Config { return b.cfg }

// Dataset returns the current dataset. Callers must not modify it.
func (b *CircularLogBuffer) Dataset() domain.Dataset { return b.dataset }

// Screened returns the current screened set.
func (b *CircularLogBuffer) Screened() domain.ScreenedSet { return b.screened }

// Live returns the live-eligible assets seen by the last ScreenMovers.
func (b *CircularLogBuffer) Live() []string { return b.live }

// Seed replaces the dataset, keeping the newest BufferSize timestamps.
func (b *CircularLogBuffer) Seed(ds domain.Dataset) {
	b.dataset = ds.Tail(b.cfg.BufferSize)
}

// GetAndPutNext merges incoming into the buffer and returns the new
// dataset. A nil incoming keeps the current dataset.
//
// Raw buffers deduplicate snapshots by (symbol, count), keeping the newest.
// Bar buffers take the last two bars of incoming (converted from snapshots
// first when connected to raw), drop exact duplicates and resample to their
// interval; one-minute buffers then reconcile the newest volumes.
func (b *CircularLogBuffer) GetAndPutNext(incoming domain.Dataset) domain.Dataset {
	if incoming == nil {
		return b.dataset
	}
	if b.cfg.Raw {
		merged := dedupeBySequence(concat(b.dataset, incoming))
		merged.Sort()
		b.dataset = merged.Tail(b.cfg.BufferSize)
		return b.dataset
	}

	in := incoming
	if b.ConnectedToRaw() {
		in = aggregate.FromSnapshots(in, b.cfg.Interval)
	}
	in = in.Tail(incomingTail)
	out := aggregate.Resample(dedupeExact(concat(b.dataset, in)), b.cfg.Interval)
	if b.cfg.Interval == time.Minute {
		out = aggregate.ReconcileVolumes(out, aggregate.RollingWindow, incomingTail)
	}
	b.dataset = out.Tail(b.cfg.BufferSize)
	return b.dataset
}

// ScreenMovers screens a raw buffer: the movers of its snapshots become
// the screened set and live is kept as the cycle's live-eligible assets.
func (b *CircularLogBuffer) ScreenMovers(th aggregate.MoverThresholds, live []string) domain.ScreenedSet {
	if len(b.dataset) == 0 {
		b.live = []string{}
		return b.screened
	}
	b.live = live
	b.screened = b.finishScreen(aggregate.FilterMovers(b.dataset, th))
	return b.screened
}

// ScreenNext screens a bar buffer. Candidates are the upstream screened
// symbols present in the dataset, narrowed to live when it is non-nil;
// the rows of upstream whose symbol passes pred form the new screened
// set. Without a dataset or upstream signal the previous set is kept.
func (b *CircularLogBuffer) ScreenNext(ctx context.Context, upstream domain.ScreenedSet, live []string, pred screener.Predicate) (domain.ScreenedSet, error) {
	if len(b.dataset) == 0 || upstream == nil {
		return b.screened, nil
	}
	candidates := screener.Intersect(upstream.Symbols(), b.dataset.Symbols(), live)
	accepted, err := screener.Filter(ctx, pred, b.dataset.Filter(candidates))
	if err != nil {
		return b.screened, fmt.Errorf("buffer: screen %s: %w", b.LogName(), err)
	}

	keep := make(map[string]struct{}, len(accepted))
	for _, s := range accepted {
		keep[s] = struct{}{}
	}
	next := make(domain.ScreenedSet, 0, len(accepted))
	for _, row := range upstream {
		if _, ok := keep[row.Symbol]; ok {
			next = append(next, row)
		}
	}
	sort.SliceStable(next, func(i, j int) bool { return next[i].Time.Before(next[j].Time) })
	b.screened = b.finishScreen(next)
	return b.screened, nil
}

func (b *CircularLogBuffer) finishScreen(next domain.ScreenedSet) domain.ScreenedSet {
	if b.cfg.Append {
		next = dedupeBySymbol(append(append(domain.ScreenedSet(nil), b.screened...), next...))
	}
	if b.cfg.Roll > 0 && len(next) > b.cfg.Roll {
		next = next[len(next)-b.cfg.Roll:]
	}
	return next
}

// LogNext writes the dataset and screened set to their logs. Nil values
// are skipped. Mirror failures are logged and do not fail the call.
func (b *CircularLogBuffer) LogNext(ctx context.Context) error {
	var errs []error
	if b.dataset != nil {
		encode := BarsToCSV
		if b.cfg.Raw {
			encode = SnapshotsToCSV
		}
		data, err := encode(b.dataset)
		if err == nil {
			err = b.write(ctx, b.LogPath(), data)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("buffer: log %s: %w", b.LogName(), err))
		}
	}
	if b.screened != nil {
		data, err := ScreenedToCSV(b.screened)
		if err == nil {
			err = b.write(ctx, b.ScreenedPath(), data)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("buffer: log %s screened: %w", b.LogName(), err))
		}
	}
	return errors.Join(errs...)
}

func (b *CircularLogBuffer) write(ctx context.Context, path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	if b.mirror != nil {
		if err := b.mirror.Upload(ctx, filepath.Base(path), data); err != nil {
			b.logger.Warn("mirror upload failed",
				slog.String("file", filepath.Base(path)),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Load restores the dataset and screened set from their logs. Missing or
// malformed logs leave the buffer empty.
func (b *CircularLogBuffer) Load(ctx context.Context) {
	decode := BarsFromCSV
	if b.cfg.Raw {
		decode = SnapshotsFromCSV
	}
	if data := b.read(ctx, b.LogPath()); data != nil {
		ds, err := decode(data)
		if err != nil {
			b.logger.Warn("ignoring malformed log", slog.String("error", err.Error()))
		} else {
			b.dataset = ds.Tail(b.cfg.BufferSize)
		}
	}
	if data := b.read(ctx, b.ScreenedPath()); data != nil {
		set, err := ScreenedFromCSV(data)
		if err != nil {
			b.logger.Warn("ignoring malformed screened log", slog.String("error", err.Error()))
		} else {
			b.screened = set
		}
	}
	b.logger.Info("buffer loaded",
		slog.Int("timestamps", len(b.dataset.Timestamps())),
		slog.Int("screened", len(b.screened)),
	)
}

func (b *CircularLogBuffer) read(ctx context.Context, path string) []byte {
	data, err := os.ReadFile(path)
	if err == nil {
		return data
	}
	if !errors.Is(err, os.ErrNotExist) {
		b.logger.Warn("reading log failed", slog.String("file", path), slog.String("error", err.Error()))
		return nil
	}
	if b.mirror == nil {
		return nil
	}
	data, err = b.mirror.Download(ctx, filepath.Base(path))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			b.logger.Warn("mirror download failed", slog.String("file", path), slog.String("error", err.Error()))
		}
		return nil
	}
	return data
}

func concat(old, incoming domain.Dataset) domain.Dataset {
	out := make(domain.Dataset, 0, len(old)+len(incoming))
	out = append(out, old...)
	return append(out, incoming...)
}

type sequenceKey struct {
	symbol string
	count  int64
}

// dedupeBySequence keeps the last bar of each (symbol, count).
func dedupeBySequence(ds domain.Dataset) domain.Dataset {
	seen := make(map[sequenceKey]struct{}, len(ds))
	out := make(domain.Dataset, 0, len(ds))
	for i := len(ds) - 1; i >= 0; i-- {
		k := sequenceKey{symbol: ds[i].Symbol, count: ds[i].Count}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, ds[i])
	}
	reverse(out)
	return out
}

type exactKey struct {
	bar domain.Bar
	ts  int64
}

// dedupeExact drops bars identical to a later one.
func dedupeExact(ds domain.Dataset) domain.Dataset {
	seen := make(map[exactKey]struct{}, len(ds))
	out := make(domain.Dataset, 0, len(ds))
	for i := len(ds) - 1; i >= 0; i-- {
		b := ds[i]
		k := exactKey{ts: b.Time.UnixNano()}
		b.Time = time.Time{}
		k.bar = b
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, ds[i])
	}
	reverse(out)
	return out
}

// dedupeBySymbol keeps the last row of each symbol, at its position.
func dedupeBySymbol(set domain.ScreenedSet) domain.ScreenedSet {
	seen := make(map[string]struct{}, len(set))
	out := make(domain.ScreenedSet, 0, len(set))
	for i := len(set) - 1; i >= 0; i-- {
		if _, ok := seen[set[i].Symbol]; ok {
			continue
		}
		seen[set[i].Symbol] = struct{}{}
		out = append(out, set[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func reverse(ds domain.Dataset) {
	for i, j := 0, len(ds)-1; i < j; i, j = i+1, j-1 {
		ds[i], ds[j] = ds[j], ds[i]
	}
}

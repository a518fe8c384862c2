// Package healthfile reads health samples from a directory of JSON export
// batches and serves them through the source platform contract. Each batch
// file carries a monotonic sequence number; the sync cursor is the highest
// sequence consumed so far. A filesystem watcher turns newly dropped
// batches into change notifications.
package healthfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/vitalbridge/go-healthsync/core"
)

const batchFileSuffix = ".json"
const profileFileName = "profile.json"

type Option func(*Provider)

func WithLogger(logger core.Logger) Option {
	return func(p *Provider) {
		if p == nil || logger == nil {
			return
		}
		p.logger = logger
	}
}

// Provider is a file-backed source platform. It is safe for concurrent
// use: observers and the watcher goroutine share only the subscriber map.
type Provider struct {
	dir    string
	logger core.Logger

	mu          gosync.Mutex
	watcher     *fsnotify.Watcher
	subscribers map[string][]chan core.ChangeNotification
	authorized  bool
}

func New(dir string, opts ...Option) (*Provider, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("healthfile: export directory is required")
	}
	_, logger := glog.Resolve("healthsync.healthfile", nil, nil)
	provider := &Provider{
		dir:         dir,
		logger:      logger,
		subscribers: map[string][]chan core.ChangeNotification{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	return provider, nil
}

// RequestAuthorization checks that the export directory exists and is
// readable. The file source has no per-type grants: one directory covers
// every requested type.
func (p *Provider) RequestAuthorization(_ context.Context, readTypes []string, _ []string) error {
	if p == nil {
		return fmt.Errorf("healthfile: provider is nil")
	}
	if len(readTypes) == 0 {
		return fmt.Errorf("healthfile: at least one read type is required")
	}
	info, err := os.Stat(p.dir)
	if err != nil {
		return fmt.Errorf("healthfile: source unauthorized: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("healthfile: source unauthorized: %s is not a directory", p.dir)
	}
	p.mu.Lock()
	p.authorized = true
	p.mu.Unlock()
	return nil
}

func (p *Provider) EnableBackgroundDelivery(_ context.Context, sourceType string) error {
	if strings.TrimSpace(sourceType) == "" {
		return fmt.Errorf("healthfile: source type is required")
	}
	// Delivery is always on once the watcher runs; nothing to enable
	// per type.
	return nil
}

// Observe subscribes to change notifications for one source type. The
// first observer starts the directory watcher. The channel closes when
// the context is cancelled.
func (p *Provider) Observe(ctx context.Context, sourceType string) (<-chan core.ChangeNotification, error) {
	if p == nil {
		return nil, fmt.Errorf("healthfile: provider is nil")
	}
	sourceType = strings.TrimSpace(sourceType)
	if sourceType == "" {
		return nil, fmt.Errorf("healthfile: source type is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watcher == nil {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("healthfile: create watcher: %w", err)
		}
		if err := watcher.Add(p.dir); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("healthfile: watch %s: %w", p.dir, err)
		}
		p.watcher = watcher
		go p.watch(ctx, watcher)
	}

	ch := make(chan core.ChangeNotification, 1)
	p.subscribers[sourceType] = append(p.subscribers[sourceType], ch)

	go func() {
		<-ctx.Done()
		p.unsubscribe(sourceType, ch)
	}()
	return ch, nil
}

func (p *Provider) unsubscribe(sourceType string, ch chan core.ChangeNotification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	remaining := p.subscribers[sourceType][:0]
	for _, subscriber := range p.subscribers[sourceType] {
		if subscriber != ch {
			remaining = append(remaining, subscriber)
		}
	}
	p.subscribers[sourceType] = remaining
	close(ch)
}

func (p *Provider) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !isBatchFile(event.Name) {
				continue
			}
			p.notifyFromFile(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("watcher error", "error", err.Error())
		}
	}
}

// notifyFromFile parses the dropped batch and pings the observers of every
// type it mentions. A partially written file is skipped; a later write
// event retries it.
func (p *Provider) notifyFromFile(path string) {
	batch, err := readBatchFile(path)
	if err != nil {
		p.logger.Warn("batch file unreadable", "path", path, "error", err.Error())
		return
	}

	types := map[string]struct{}{}
	for _, sample := range batch.Samples {
		types[sample.Type] = struct{}{}
	}
	for _, deletion := range batch.Deletions {
		types[deletion.Type] = struct{}{}
	}

	now := time.Now().UTC()
	p.mu.Lock()
	defer p.mu.Unlock()
	for sourceType := range types {
		for _, subscriber := range p.subscribers[sourceType] {
			select {
			case subscriber <- core.ChangeNotification{SourceType: sourceType, ReceivedAt: now}:
			default:
				// The observer has a cycle pending; it will pick this
				// batch up through the cursor anyway.
			}
		}
	}
}

// QueryIncremental returns everything from batches with a sequence above
// the cursor, filtered to one source type. The returned cursor is the
// highest sequence seen in the directory, so batches without records for
// this type still advance it.
func (p *Provider) QueryIncremental(
	_ context.Context,
	sourceType string,
	cursor string,
) (core.IncrementalResult, error) {
	if p == nil {
		return core.IncrementalResult{}, fmt.Errorf("healthfile: provider is nil")
	}
	sourceType = strings.TrimSpace(sourceType)
	if sourceType == "" {
		return core.IncrementalResult{}, fmt.Errorf("healthfile: source type is required")
	}

	sinceSequence := int64(0)
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		parsed, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return core.IncrementalResult{}, fmt.Errorf("healthfile: invalid cursor %q: %w", cursor, err)
		}
		sinceSequence = parsed
	}

	batches, err := p.loadBatches()
	if err != nil {
		return core.IncrementalResult{}, err
	}

	result := core.IncrementalResult{NewCursor: strings.TrimSpace(cursor)}
	highest := sinceSequence
	for _, batch := range batches {
		if batch.Sequence > highest {
			highest = batch.Sequence
		}
		if batch.Sequence <= sinceSequence {
			continue
		}
		for _, sample := range batch.Samples {
			if sample.Type != sourceType {
				continue
			}
			result.Additions = append(result.Additions, sample.toDomain())
		}
		for _, deletion := range batch.Deletions {
			if deletion.Type != sourceType {
				continue
			}
			result.Deletions = append(result.Deletions, deletion.toDomain())
		}
	}
	if highest > 0 {
		result.NewCursor = strconv.FormatInt(highest, 10)
	}
	return result, nil
}

// QueryBaseline reads one characteristic from the profile file. A missing
// profile or characteristic is an empty snapshot, not an error.
func (p *Provider) QueryBaseline(_ context.Context, sourceType string) (core.SourceSnapshot, error) {
	if p == nil {
		return core.SourceSnapshot{}, fmt.Errorf("healthfile: provider is nil")
	}
	raw, err := os.ReadFile(filepath.Join(p.dir, profileFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return core.SourceSnapshot{TypeID: sourceType}, nil
		}
		return core.SourceSnapshot{}, fmt.Errorf("healthfile: read profile: %w", err)
	}

	var profile wireProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return core.SourceSnapshot{}, fmt.Errorf("healthfile: decode profile: %w", err)
	}
	entry, ok := profile.Characteristics[sourceType]
	if !ok {
		return core.SourceSnapshot{TypeID: sourceType}, nil
	}
	return entry.toDomain(sourceType)
}

func (p *Provider) loadBatches() ([]wireBatch, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("healthfile: read export directory: %w", err)
	}

	var batches []wireBatch
	for _, entry := range entries {
		if entry.IsDir() || !isBatchFile(entry.Name()) {
			continue
		}
		batch, err := readBatchFile(filepath.Join(p.dir, entry.Name()))
		if err != nil {
			p.logger.Warn("batch file skipped", "file", entry.Name(), "error", err.Error())
			continue
		}
		batches = append(batches, batch)
	}
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].Sequence < batches[j].Sequence
	})
	return batches, nil
}

func isBatchFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, batchFileSuffix) && name != profileFileName
}

func readBatchFile(path string) (wireBatch, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return wireBatch{}, err
	}
	var batch wireBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return wireBatch{}, err
	}
	if batch.Sequence <= 0 {
		return wireBatch{}, fmt.Errorf("healthfile: batch %s has no positive sequence", filepath.Base(path))
	}
	return batch, nil
}

var _ core.SourcePlatform = (*Provider)(nil)

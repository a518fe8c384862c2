// Package provision creates the canonical stream hierarchy events are
// written into. Creation is idempotent: an already-existing stream is
// success, and one failed stream never blocks its siblings.
package provision

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/vitalbridge/go-healthsync/core"
)

type Option func(*Provisioner)

func WithLogger(logger core.Logger) Option {
	return func(p *Provisioner) {
		if p == nil || logger == nil {
			return
		}
		p.logger = logger
	}
}

type Provisioner struct {
	api    core.EventAPI
	logger core.Logger
}

func New(api core.EventAPI, opts ...Option) (*Provisioner, error) {
	if api == nil {
		return nil, fmt.Errorf("provision: event api is required")
	}
	_, logger := glog.Resolve("healthsync.provision", nil, nil)
	p := &Provisioner{
		api:    api,
		logger: logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Result reports which streams were provisioned and which creations
// failed. Failed stream ids are still listed so callers can log that
// events for those streams will not sync, but a partial result never
// aborts the engine.
type Result struct {
	Provisioned []string
	Failed      map[string]error
}

func (r Result) Ok() bool { return len(r.Failed) == 0 }

type streamPair struct {
	parent core.StreamDescriptor
	child  core.StreamDescriptor
}

// EnsureStreams issues create calls for every destination stream of the
// given mappings. A parent and its child are ordered relative to each
// other; distinct pairs are dispatched independently.
func (p *Provisioner) EnsureStreams(ctx context.Context, mappings []core.TypeMapping) Result {
	result := Result{Failed: map[string]error{}}
	if p == nil || p.api == nil {
		result.Failed[""] = fmt.Errorf("provision: provisioner is not configured")
		return result
	}

	pairs := collectPairs(mappings)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, pair := range pairs {
		wg.Add(1)
		go func(pair streamPair) {
			defer wg.Done()
			provisioned, err := p.ensurePair(ctx, pair)
			mu.Lock()
			defer mu.Unlock()
			result.Provisioned = append(result.Provisioned, provisioned...)
			if err != nil {
				result.Failed[pair.child.ID] = err
			}
		}(pair)
	}
	wg.Wait()

	result.Provisioned = dedupeSorted(result.Provisioned)
	for streamID, err := range result.Failed {
		p.logger.Error("stream provisioning failed", "stream_id", streamID, "error", err.Error())
	}
	return result
}

func (p *Provisioner) ensurePair(ctx context.Context, pair streamPair) ([]string, error) {
	var provisioned []string
	if pair.parent.ID != "" {
		if err := p.createStream(ctx, pair.parent); err != nil {
			// An unreachable parent makes the child unusable too.
			return provisioned, err
		}
		provisioned = append(provisioned, pair.parent.ID)
	}
	if err := p.createStream(ctx, pair.child); err != nil {
		return provisioned, err
	}
	return append(provisioned, pair.child.ID), nil
}

func (p *Provisioner) createStream(ctx context.Context, descriptor core.StreamDescriptor) error {
	err := p.api.CreateStream(ctx, descriptor)
	if err == nil || errors.Is(err, core.ErrStreamExists) {
		return nil
	}
	return err
}

// collectPairs deduplicates destination streams across mappings; several
// source types may share one stream.
func collectPairs(mappings []core.TypeMapping) []streamPair {
	seen := map[string]struct{}{}
	var pairs []streamPair
	for _, mapping := range mappings {
		childID := strings.TrimSpace(mapping.StreamID)
		if childID == "" {
			continue
		}
		if _, ok := seen[childID]; ok {
			continue
		}
		seen[childID] = struct{}{}

		pair := streamPair{
			child: core.StreamDescriptor{
				ID:       childID,
				Name:     streamName(childID),
				ParentID: strings.TrimSpace(mapping.ParentStreamID),
			},
		}
		// Each pair creates its own parent so pairs stay independent;
		// redundant parent creates resolve to already-exists.
		if mapping.HasParent() {
			parentID := strings.TrimSpace(mapping.ParentStreamID)
			pair.parent = core.StreamDescriptor{
				ID:   parentID,
				Name: streamName(parentID),
			}
		}
		pairs = append(pairs, pair)
	}
	return pairs
}

func dedupeSorted(values []string) []string {
	if len(values) == 0 {
		return values
	}
	sort.Strings(values)
	out := values[:1]
	for _, value := range values[1:] {
		if value != out[len(out)-1] {
			out = append(out, value)
		}
	}
	return out
}

func streamName(id string) string {
	words := strings.Split(id, "-")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

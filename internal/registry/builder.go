package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/codemode/toolgateway/internal/model"
)

// Extractor normalizes one Source into the descriptors it contributes.
// The OpenAPI/GraphQL/MCP parsing itself is an external collaborator
// (§1 Non-goals place spec/manifest parsing out of scope); the builder
// only orchestrates extraction, caching, merge, and diffing.
type Extractor interface {
	Extract(src model.Source) ([]model.ToolDescriptor, error)
}

// SourceStore is the persistence port the builder reads enabled Sources
// from.
type SourceStore interface {
	ListEnabledSources(workspaceID string) ([]model.Source, error)
}

// artifact is the cached extraction result for one Source, keyed by its
// SourceHash (§4.I artifact cache: "a source whose sourceHash is
// unchanged since the last successful build is reused verbatim").
type artifact struct {
	sourceHash  string
	descriptors []model.ToolDescriptor
}

// Builder computes ToolRegistrySnapshots from a workspace's enabled
// Sources and publishes them to a Registry.
type Builder struct {
	sources    SourceStore
	extractors map[model.SourceKind]Extractor
	registries map[string]*Registry // workspaceId -> Registry

	mu       sync.Mutex
	cache    map[string]artifact // sourceId -> artifact
	versions map[string]int64    // workspaceId -> last published version

	group singleflight.Group // dedupes concurrent rebuilds of the same workspace
}

func NewBuilder(sources SourceStore, extractors map[model.SourceKind]Extractor) *Builder {
	return &Builder{
		sources:    sources,
		extractors: extractors,
		registries: make(map[string]*Registry),
		cache:      make(map[string]artifact),
		versions:   make(map[string]int64),
	}
}

// RegistryFor returns (creating if necessary) the Registry for a
// workspace.
func (b *Builder) RegistryFor(workspaceID string) *Registry {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.registries[workspaceID]
	if !ok {
		r = NewRegistry()
		b.registries[workspaceID] = r
	}
	return r
}

// Rebuild recomputes and publishes a new snapshot for workspaceID,
// returning the diff against the previously published version. Concurrent
// rebuild requests for the same workspace are collapsed via singleflight.
func (b *Builder) Rebuild(workspaceID string) (model.RegistryDiff, error) {
	v, err, _ := b.group.Do(workspaceID, func() (any, error) {
		return b.rebuildOnce(workspaceID)
	})
	if err != nil {
		return model.RegistryDiff{}, err
	}
	return v.(model.RegistryDiff), nil
}

func (b *Builder) rebuildOnce(workspaceID string) (model.RegistryDiff, error) {
	sources, err := b.sources.ListEnabledSources(workspaceID)
	if err != nil {
		return model.RegistryDiff{}, err
	}

	merged := make(map[string]model.ToolDescriptor)
	seenSource := make(map[string]string) // path -> sourceId, for conflict detection
	for _, src := range sources {
		descs, err := b.extractOrReuse(src)
		if err != nil {
			return model.RegistryDiff{}, fmt.Errorf("extract source %s: %w", src.ID, err)
		}
		for _, d := range descs {
			if err := model.ValidateToolPath(d.Path); err != nil {
				return model.RegistryDiff{}, fmt.Errorf("source %s: %w", src.ID, err)
			}
			if existing, ok := seenSource[d.Path]; ok && existing != src.ID {
				return model.RegistryDiff{}, fmt.Errorf("plugin_conflict: tool path %q declared by both %s and %s", d.Path, existing, src.ID)
			}
			seenSource[d.Path] = src.ID
			merged[d.Path] = d
		}
	}

	version := hashDescriptors(merged)
	reg := b.RegistryFor(workspaceID)
	prev := reg.Snapshot()
	diff := diffSnapshots(prev, merged)

	reg.Publish(model.NewToolRegistrySnapshot(workspaceID, version, merged))

	b.mu.Lock()
	b.versions[workspaceID] = version
	b.mu.Unlock()

	return diff, nil
}

func (b *Builder) extractOrReuse(src model.Source) ([]model.ToolDescriptor, error) {
	b.mu.Lock()
	cached, ok := b.cache[src.ID]
	b.mu.Unlock()
	if ok && cached.sourceHash == src.SourceHash && src.SourceHash != "" {
		return cached.descriptors, nil
	}

	extractor, ok := b.extractors[src.Kind]
	if !ok {
		return nil, fmt.Errorf("no extractor registered for source kind %q", src.Kind)
	}
	descs, err := extractor.Extract(src)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.cache[src.ID] = artifact{sourceHash: src.SourceHash, descriptors: descs}
	b.mu.Unlock()
	return descs, nil
}

// hashDescriptors computes the new snapshot's version as hash(sorted
// descriptors), per §4.I.
func hashDescriptors(descs map[string]model.ToolDescriptor) int64 {
	paths := make([]string, 0, len(descs))
	for p := range descs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		d := descs[p]
		fmt.Fprintf(h, "%s|%s|%s|%s\n", d.Path, d.Description, d.Approval, d.ProviderKind)
	}
	sum := h.Sum(nil)
	// Fold to an int64 version number; monotonicity isn't required by
	// collision-freedom, only by successive builds differing when
	// content differs, which the hash guarantees in practice.
	hexSum := hex.EncodeToString(sum[:8])
	var u uint64
	fmt.Sscanf(hexSum, "%x", &u)
	return int64(u >> 1)
}

func diffSnapshots(prev *model.ToolRegistrySnapshot, next map[string]model.ToolDescriptor) model.RegistryDiff {
	var diff model.RegistryDiff
	if prev == nil || prev.Descriptors == nil {
		for p := range next {
			diff.Added = append(diff.Added, p)
		}
		return diff
	}
	for p, d := range next {
		old, existed := prev.Descriptors[p]
		if !existed {
			diff.Added = append(diff.Added, p)
		} else if descriptorFingerprint(old) != descriptorFingerprint(d) {
			diff.Changed = append(diff.Changed, p)
		}
	}
	for p := range prev.Descriptors {
		if _, still := next[p]; !still {
			diff.Removed = append(diff.Removed, p)
		}
	}
	return diff
}

// descriptorFingerprint returns a comparable summary of a descriptor.
// ToolDescriptor embeds map-valued fields (TypeSpec.InputSchema, etc.),
// which makes it non-comparable with ==; this marshals the parts that
// matter for change detection instead.
func descriptorFingerprint(d model.ToolDescriptor) string {
	b, _ := json.Marshal(d)
	return string(b)
}

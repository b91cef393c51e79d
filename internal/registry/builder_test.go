package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codemode/toolgateway/internal/model"
)

type memSourceStore struct {
	sources []model.Source
}

func (s *memSourceStore) ListEnabledSources(workspaceID string) ([]model.Source, error) {
	return s.sources, nil
}

type staticExtractor struct {
	calls int
	descs []model.ToolDescriptor
}

func (e *staticExtractor) Extract(src model.Source) ([]model.ToolDescriptor, error) {
	e.calls++
	return e.descs, nil
}

func TestBuilder_RebuildPublishesAndDiffs(t *testing.T) {
	sources := &memSourceStore{sources: []model.Source{
		{ID: "s1", WorkspaceID: "w1", Kind: model.SourceInternal, Enabled: true, SourceHash: "h1"},
	}}
	ext := &staticExtractor{descs: []model.ToolDescriptor{
		{Path: "calendar.list", Approval: model.ApprovalAuto, ProviderKind: model.ProviderBuiltin},
	}}
	b := NewBuilder(sources, map[model.SourceKind]Extractor{model.SourceInternal: ext})

	diff, err := b.Rebuild("w1")
	require.NoError(t, err)
	require.Equal(t, []string{"calendar.list"}, diff.Added)
	require.Equal(t, 1, ext.calls)

	snap := b.RegistryFor("w1").Snapshot()
	require.NotNil(t, snap)
	_, ok := snap.Lookup("calendar.list")
	require.True(t, ok)

	// Re-running extraction with the same SourceHash hits the artifact
	// cache, not a second extractor call.
	_, err = b.Rebuild("w1")
	require.NoError(t, err)
	require.Equal(t, 1, ext.calls, "unchanged sourceHash must reuse the cached artifact")
}

func TestBuilder_ConflictingToolPathsRejected(t *testing.T) {
	sources := &memSourceStore{sources: []model.Source{
		{ID: "s1", WorkspaceID: "w1", Kind: model.SourceInternal, Enabled: true, SourceHash: "h1"},
		{ID: "s2", WorkspaceID: "w1", Kind: model.SourceOpenAPI, Enabled: true, SourceHash: "h2"},
	}}
	extInternal := &staticExtractor{descs: []model.ToolDescriptor{{Path: "dup.tool"}}}
	extOpenAPI := &staticExtractor{descs: []model.ToolDescriptor{{Path: "dup.tool"}}}
	b := NewBuilder(sources, map[model.SourceKind]Extractor{
		model.SourceInternal: extInternal,
		model.SourceOpenAPI:  extOpenAPI,
	})

	_, err := b.Rebuild("w1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "plugin_conflict")
}

func TestBuilder_MalformedToolPathRejected(t *testing.T) {
	sources := &memSourceStore{sources: []model.Source{
		{ID: "s1", WorkspaceID: "w1", Kind: model.SourceInternal, Enabled: true, SourceHash: "h1"},
	}}
	ext := &staticExtractor{descs: []model.ToolDescriptor{
		{Path: "calendar.2fast", ProviderKind: model.ProviderBuiltin},
	}}
	b := NewBuilder(sources, map[model.SourceKind]Extractor{model.SourceInternal: ext})

	_, err := b.Rebuild("w1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "calendar.2fast")
}

// Package catalog implements C1, the catalog resolver: it ingests one or
// more git-backed module indexes, caches their parsed metadata with the
// TTLs spec §4.1 mandates (6h for full metadata, 15m for list results),
// coalesces concurrent misses with golang.org/x/sync/singleflight, and
// drops (while logging) any item whose docker image isn't allow-listed.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ai4os/papi/pkg/apierrors"
	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/registryclient"
)

const (
	metadataTTL = 6 * time.Hour
	listTTL     = 15 * time.Minute
)

// Source is one configured upstream catalog repo (spec §4.1).
type Source struct {
	Kind           apitypes.Kind
	URL            string
	Branch         string
	ModuleListPath string // path to the repo's module-list document
}

// moduleRef is one entry of a parsed module-list document: a name + the
// git URL to clone for that module's own metadata.
type moduleRef struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	Branch string `yaml:"branch"`
}

// rawMetadata is the on-disk shape of one module's metadata document,
// decoded before being lifted into apitypes.CatalogItem and validated.
type rawMetadata struct {
	Version     string                       `yaml:"version"`
	Title       string                       `yaml:"title"`
	Summary     string                       `yaml:"summary"`
	Description string                       `yaml:"description"`
	DockerImage string                       `yaml:"docker_image"`
	Tags        []string                     `yaml:"tags"`
	License     string                       `yaml:"license"`
	Keywords    []string                     `yaml:"keywords"`
	Resources   apitypes.Resources           `yaml:"resources_recommended"`
	Schema      apitypes.ConfigSchema        `yaml:"config_schema"`
}

// SupportedMetadataVersion is the only rawMetadata.Version this build
// validates against (spec §4.1: "validate against the latest schema
// version; if validation fails, drop the item").
const SupportedMetadataVersion = "2"

// Fetcher abstracts git ingestion so tests can substitute an in-memory
// double instead of cloning a real repo (gitsource.Fetch satisfies this
// signature directly).
type Fetcher func(ctx context.Context, url, branch string) (Tree, error)

// Tree is the subset of gitsource.Tree's surface this package needs.
type Tree interface {
	ReadFile(path string) ([]byte, error)
}

// Logger is the minimal sink for the "drop but log" items C1 discards.
type Logger interface {
	Printf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

type cacheEntry struct {
	item      apitypes.CatalogItem
	schema    apitypes.ConfigSchema
	fetchedAt time.Time
}

// Resolver is C1's cache + ingestion pipeline.
type Resolver struct {
	sources []Source
	allow   registryclient.AllowList
	fetch   Fetcher
	log     Logger

	mu          sync.RWMutex
	items       map[apitypes.Kind]map[string]cacheEntry
	listFetched map[apitypes.Kind]time.Time

	sf singleflight.Group
}

func New(sources []Source, allow registryclient.AllowList, fetch Fetcher, log Logger) *Resolver {
	if log == nil {
		log = noopLogger{}
	}
	return &Resolver{
		sources:     sources,
		allow:       allow,
		fetch:       fetch,
		log:         log,
		items:       map[apitypes.Kind]map[string]cacheEntry{},
		listFetched: map[apitypes.Kind]time.Time{},
	}
}

// List returns the names of every catalog item of kind, refreshing the
// whole kind if the 15-minute list TTL has expired.
func (r *Resolver) List(ctx context.Context, kind apitypes.Kind) ([]string, error) {
	if err := r.ensureFresh(ctx, kind, listTTL, r.lastListFetch); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.items[kind]))
	for name := range r.items[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Detail returns trimmed summaries for every item of kind.
func (r *Resolver) Detail(ctx context.Context, kind apitypes.Kind) ([]apitypes.Summary, error) {
	names, err := r.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]apitypes.Summary, 0, len(names))
	for _, name := range names {
		e := r.items[kind][name]
		out = append(out, apitypes.Summary{Name: name, Title: e.item.Title, Summary: e.item.Summary, License: e.item.License})
	}
	return out, nil
}

// Metadata returns one item's full record, refreshing it individually if
// its 6-hour metadata TTL has expired.
func (r *Resolver) Metadata(ctx context.Context, kind apitypes.Kind, name string) (*apitypes.CatalogItem, error) {
	if err := r.ensureItemFresh(ctx, kind, name); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[kind][name]
	if !ok {
		return nil, apierrors.UnknownWorkload(string(kind), name)
	}
	cp := e.item
	return &cp, nil
}

// ConfigTemplate returns one item's config schema.
func (r *Resolver) ConfigTemplate(ctx context.Context, kind apitypes.Kind, name string) (*apitypes.ConfigSchema, error) {
	if err := r.ensureItemFresh(ctx, kind, name); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[kind][name]
	if !ok {
		return nil, apierrors.UnknownWorkload(string(kind), name)
	}
	cp := e.schema
	return &cp, nil
}

// Refresh invalidates cached entries. An empty kind invalidates
// everything; an empty name (with kind set) invalidates that whole kind;
// both set invalidates one item.
func (r *Resolver) Refresh(kind apitypes.Kind, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case kind == "":
		r.items = map[apitypes.Kind]map[string]cacheEntry{}
		r.listFetched = map[apitypes.Kind]time.Time{}
	case name == "":
		delete(r.items, kind)
		delete(r.listFetched, kind)
	default:
		delete(r.items[kind], name)
	}
}

func (r *Resolver) lastListFetch(kind apitypes.Kind) time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listFetched[kind]
}

func (r *Resolver) ensureItemFresh(ctx context.Context, kind apitypes.Kind, name string) error {
	r.mu.RLock()
	e, ok := r.items[kind][name]
	r.mu.RUnlock()
	if ok && time.Since(e.fetchedAt) < metadataTTL {
		return nil
	}
	return r.ensureFresh(ctx, kind, listTTL, r.lastListFetch)
}

// ensureFresh coalesces concurrent ingestion of the same kind into a
// single upstream fetch via singleflight (spec §4.1's cache-coalescing
// requirement).
func (r *Resolver) ensureFresh(ctx context.Context, kind apitypes.Kind, ttl time.Duration, lastFetch func(apitypes.Kind) time.Time) error {
	if time.Since(lastFetch(kind)) < ttl {
		return nil
	}
	_, err, _ := r.sf.Do(string(kind), func() (any, error) {
		return nil, r.ingest(ctx, kind)
	})
	return err
}

// ingest clones every source for kind, parses its module list, fetches
// and validates each module's metadata, and replaces the cached entries
// for that kind in one atomic swap — so readers never see a torn view
// (spec §5: "readers see either pre- or post-refresh snapshot").
func (r *Resolver) ingest(ctx context.Context, kind apitypes.Kind) error {
	fresh := map[string]cacheEntry{}
	now := time.Now()

	for _, src := range r.sources {
		if src.Kind != kind {
			continue
		}
		tree, err := r.fetch(ctx, src.URL, src.Branch)
		if err != nil {
			r.log.Printf("catalog: failed to fetch source %s: %v", src.URL, err)
			continue
		}
		raw, err := tree.ReadFile(src.ModuleListPath)
		if err != nil {
			r.log.Printf("catalog: failed to read module list %s: %v", src.ModuleListPath, err)
			continue
		}
		var refs []moduleRef
		if err := yaml.Unmarshal(raw, &refs); err != nil {
			r.log.Printf("catalog: failed to parse module list %s: %v", src.ModuleListPath, err)
			continue
		}

		for _, ref := range refs {
			item, schema, err := r.ingestModule(ctx, kind, ref)
			if err != nil {
				r.log.Printf("catalog: dropping %s/%s: %v", kind, ref.Name, err)
				continue
			}
			fresh[ref.Name] = cacheEntry{item: *item, schema: schema, fetchedAt: now}
		}
	}

	r.mu.Lock()
	r.items[kind] = fresh
	r.listFetched[kind] = now
	r.mu.Unlock()
	return nil
}

func (r *Resolver) ingestModule(ctx context.Context, kind apitypes.Kind, ref moduleRef) (*apitypes.CatalogItem, apitypes.ConfigSchema, error) {
	tree, err := r.fetch(ctx, ref.URL, ref.Branch)
	if err != nil {
		return nil, apitypes.ConfigSchema{}, fmt.Errorf("clone: %w", err)
	}
	raw, err := tree.ReadFile("metadata.yaml")
	if err != nil {
		return nil, apitypes.ConfigSchema{}, fmt.Errorf("read metadata.yaml: %w", err)
	}

	var meta rawMetadata
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		return nil, apitypes.ConfigSchema{}, fmt.Errorf("parse metadata.yaml: %w", err)
	}
	if meta.Version != SupportedMetadataVersion {
		return nil, apitypes.ConfigSchema{}, fmt.Errorf("unsupported metadata version %q", meta.Version)
	}

	image, err := registryclient.ParseImage(meta.DockerImage)
	if err != nil {
		return nil, apitypes.ConfigSchema{}, fmt.Errorf("parse docker image %q: %w", meta.DockerImage, err)
	}
	if !r.allow.Allows(image.Repository) {
		return nil, apitypes.ConfigSchema{}, fmt.Errorf("docker image %q is not in the allow-list", image.Repository)
	}

	item := &apitypes.CatalogItem{
		Kind:        kind,
		Name:        ref.Name,
		UpstreamURL: ref.URL,
		Branch:      ref.Branch,
		Title:       meta.Title,
		Summary:     meta.Summary,
		Description: meta.Description,
		Resources:   meta.Resources,
		DockerImage: meta.DockerImage,
		Tags:        meta.Tags,
		License:     meta.License,
		Keywords:    meta.Keywords,
		LastRefresh: time.Now(),
	}
	return item, meta.Schema, nil
}

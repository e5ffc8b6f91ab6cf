package citations

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
)

// Resolver maps a citation's source title to a stable external URL using the
// cached file mapping. Resolution is deterministic for a fixed snapshot.
type Resolver struct {
	cache *MappingCache
}

func NewResolver(cache *MappingCache) *Resolver {
	return &Resolver{cache: cache}
}

// Resolve tries, in order: exact match on the canonical path key, exact
// match on an entry's file name, then bidirectional substring match (title
// contains the file name with or without extension, or the file name
// contains the title). First hit wins. Returns ("", false) when nothing
// matches; the citation is then surfaced without a link.
func (r *Resolver) Resolve(ctx context.Context, title string) (string, bool) {
	mapping := r.cache.Get(ctx)
	if len(mapping) == 0 || title == "" {
		return "", false
	}

	// Strategy 1: title is the canonical source path.
	if entry, ok := mapping[title]; ok && entry.SharePointURL != "" {
		return entry.SharePointURL, true
	}

	// The fallback strategies scan all entries, and duplicate file names
	// are legitimate (the mapping is keyed by full source path exactly
	// because names collide). Walk keys in sorted order so a tie resolves
	// to the same entry on every lookup against one snapshot.
	keys := make([]string, 0, len(mapping))
	for key := range mapping {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	// Strategy 2: title is exactly a file name.
	for _, key := range keys {
		entry := mapping[key]
		if entry.FileName == title && entry.SharePointURL != "" {
			return entry.SharePointURL, true
		}
	}

	// Strategy 3: substring match either direction.
	for _, key := range keys {
		entry := mapping[key]
		if entry.SharePointURL == "" || entry.FileName == "" {
			continue
		}
		stem := strings.TrimSuffix(entry.FileName, filepath.Ext(entry.FileName))
		if strings.Contains(title, entry.FileName) ||
			(stem != "" && strings.Contains(title, stem)) ||
			strings.Contains(entry.FileName, title) {
			return entry.SharePointURL, true
		}
	}

	return "", false
}

// Invalidate forces the underlying cache to refresh on the next lookup.
func (r *Resolver) Invalidate() {
	r.cache.Invalidate()
}

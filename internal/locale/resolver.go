// Package locale maps remote store identifiers to langcodes.
package locale

import (
	"context"
	"strings"
	"sync"

	"catalogsync/internal/models"

	"golang.org/x/text/language"
)

// StoreLookup finds persisted store mappings.
type StoreLookup interface {
	FindByStoreID(ctx context.Context, storeID string) (*models.Store, error)
}

type Resolver struct {
	defaultLangcode string
	static          map[string]string
	stores          StoreLookup

	mu    sync.RWMutex
	cache map[string]string
}

// NewResolver resolves from the static mapping first and falls back to
// stores, which may be nil.
func NewResolver(defaultLangcode string, static map[string]string, stores StoreLookup) *Resolver {
	r := &Resolver{
		defaultLangcode: Normalize(defaultLangcode),
		static:          make(map[string]string, len(static)),
		stores:          stores,
		cache:           make(map[string]string),
	}
	for storeID, langcode := range static {
		if normalized := Normalize(langcode); normalized != "" {
			r.static[storeID] = normalized
		}
	}
	return r
}

func (r *Resolver) DefaultLangcode() string {
	return r.defaultLangcode
}

// IsDefault reports whether langcode is the site's default language.
func (r *Resolver) IsDefault(langcode string) bool {
	return Normalize(langcode) == r.defaultLangcode
}

// Langcode returns the langcode of storeID, or false when the store is
// unknown.
func (r *Resolver) Langcode(ctx context.Context, storeID string) (string, bool) {
	if storeID == "" {
		return "", false
	}
	if langcode, ok := r.static[storeID]; ok {
		return langcode, true
	}

	r.mu.RLock()
	langcode, ok := r.cache[storeID]
	r.mu.RUnlock()
	if ok {
		return langcode, true
	}

	if r.stores == nil {
		return "", false
	}
	store, err := r.stores.FindByStoreID(ctx, storeID)
	if err != nil || store == nil || store.Status == models.StoreStatusInactive {
		return "", false
	}
	langcode = Normalize(store.Langcode)
	if langcode == "" {
		return "", false
	}

	r.mu.Lock()
	r.cache[storeID] = langcode
	r.mu.Unlock()
	return langcode, true
}

// Normalize canonicalises a BCP 47 tag into the lowercase form used as a
// langcode ("zh-Hans" -> "zh-hans"). Unparseable input yields "".
func Normalize(tag string) string {
	tag = strings.TrimSpace(strings.ReplaceAll(tag, "_", "-"))
	if tag == "" {
		return ""
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.String())
}

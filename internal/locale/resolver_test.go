package locale

import (
	"context"
	"errors"
	"testing"

	"catalogsync/internal/models"

	"github.com/stretchr/testify/assert"
)

type stubStores struct {
	stores map[string]*models.Store
	calls  int
}

func (s *stubStores) FindByStoreID(ctx context.Context, storeID string) (*models.Store, error) {
	s.calls++
	if store, ok := s.stores[storeID]; ok {
		return store, nil
	}
	return nil, errors.New("not found")
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"en":      "en",
		"EN":      "en",
		"zh_Hans": "zh-hans",
		"ar":      "ar",
		"":        "",
		"!!":      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestLangcodeStaticThenStores(t *testing.T) {
	stores := &stubStores{stores: map[string]*models.Store{
		"3": {StoreID: "3", Langcode: "fr", Status: models.StoreStatusActive},
		"4": {StoreID: "4", Langcode: "de", Status: models.StoreStatusInactive},
	}}
	r := NewResolver("en", map[string]string{"1": "en", "2": "AR"}, stores)
	ctx := context.Background()

	lc, ok := r.Langcode(ctx, "2")
	assert.True(t, ok)
	assert.Equal(t, "ar", lc)

	lc, ok = r.Langcode(ctx, "3")
	assert.True(t, ok)
	assert.Equal(t, "fr", lc)

	// cached after the first lookup
	r.Langcode(ctx, "3")
	assert.Equal(t, 1, stores.calls)

	_, ok = r.Langcode(ctx, "4")
	assert.False(t, ok)
	_, ok = r.Langcode(ctx, "99")
	assert.False(t, ok)
	_, ok = r.Langcode(ctx, "")
	assert.False(t, ok)

	assert.True(t, r.IsDefault("EN"))
	assert.False(t, r.IsDefault("ar"))
}

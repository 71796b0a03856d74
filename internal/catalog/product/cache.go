package product

import (
	"catalogsync/internal/models"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 2048

// RunCache memoizes lookups for the duration of one sync run or request.
// It is not shared between runs.
type RunCache struct {
	categories *lru.Cache[int64, *models.CategoryNode]
	parents    *lru.Cache[string, string]
}

func NewRunCache(size int) *RunCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	categories, _ := lru.New[int64, *models.CategoryNode](size)
	parents, _ := lru.New[string, string](size)
	return &RunCache{categories: categories, parents: parents}
}

// Category returns a cached lookup. A cached nil node means the id did not
// resolve.
func (c *RunCache) Category(commerceID int64) (*models.CategoryNode, bool) {
	if c == nil {
		return nil, false
	}
	return c.categories.Get(commerceID)
}

func (c *RunCache) SetCategory(commerceID int64, node *models.CategoryNode) {
	if c == nil {
		return
	}
	c.categories.Add(commerceID, node)
}

// Parent returns the cached parent SKU of sku in langcode. An empty parent
// with ok set means the SKU has no resolvable parent.
func (c *RunCache) Parent(sku, langcode string) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.parents.Get(parentKey(sku, langcode))
}

func (c *RunCache) SetParent(sku, langcode, parent string) {
	if c == nil {
		return
	}
	c.parents.Add(parentKey(sku, langcode), parent)
}

// Forget drops the parent resolution of sku, after its links changed.
func (c *RunCache) Forget(sku, langcode string) {
	if c == nil {
		return
	}
	c.parents.Remove(parentKey(sku, langcode))
}

func parentKey(sku, langcode string) string {
	return langcode + "\x00" + sku
}

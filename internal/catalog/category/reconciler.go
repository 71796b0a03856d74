// Package category mirrors the remote category tree into local category
// nodes matched by their commerce id.
package category

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"catalogsync/internal/catalog"
	"catalogsync/internal/commerce"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/repository"
)

// maxDepth bounds ancestor walks when checking for cycles.
const maxDepth = 64

type Store interface {
	Find(ctx context.Context, vocabulary string, commerceID int64) (*models.CategoryNode, error)
	Create(ctx context.Context, node *models.CategoryNode) error
	Save(ctx context.Context, node *models.CategoryNode) error
	List(ctx context.Context, vocabulary string) ([]models.CategoryNode, error)
	DeleteByCommerceIDs(ctx context.Context, vocabulary string, commerceIDs []int64) (int64, error)
}

type TreeSource interface {
	GetCategoryTree(ctx context.Context, root *int64) (*commerce.Category, error)
}

type LocaleResolver interface {
	Langcode(ctx context.Context, storeID string) (string, bool)
	IsDefault(langcode string) bool
}

type Reconciler struct {
	store        Store
	source       TreeSource
	locales      LocaleResolver
	rootID       int64
	pruneOrphans bool
	logger       *logger.Logger
}

func NewReconciler(store Store, source TreeSource, locales LocaleResolver, rootID int64, pruneOrphans bool, logger *logger.Logger) *Reconciler {
	return &Reconciler{
		store:        store,
		source:       source,
		locales:      locales,
		rootID:       rootID,
		pruneOrphans: pruneOrphans,
		logger:       logger,
	}
}

// pending is one node waiting to be written, with the parent it declares.
type pending struct {
	category commerce.Category
	parentID int64
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeCreated
	outcomeUpdated
)

// pass collects what a run wrote.
type pass struct {
	langcode   string
	translate  bool
	inPayload  map[int64]bool
	created    []int64
	updated    []int64
	reparented []int64
	warnings   []string
	errors     []catalog.ItemError
}

func (p *pass) addError(id int64, reason string, err error) {
	p.errors = append(p.errors, catalog.ItemError{Key: strconv.FormatInt(id, 10), Reason: reason, Err: err})
}

// Lookup returns the local node for a commerce id.
func (r *Reconciler) Lookup(ctx context.Context, vocabulary string, commerceID int64) (*models.CategoryNode, error) {
	return r.store.Find(ctx, vocabulary, commerceID)
}

// SynchronizeTree fetches the tree under remoteRoot, or the configured root
// when nil, and mirrors it breadth first. A fetch failure is returned as is.
// For a subtree the direct children stay under the subtree root when it
// exists locally, and pruning only reaches its local descendants.
func (r *Reconciler) SynchronizeTree(ctx context.Context, vocabulary string, remoteRoot *int64) (*catalog.TreeResult, error) {
	root := r.rootID
	if remoteRoot != nil {
		root = *remoteRoot
	}

	tree, err := r.source.GetCategoryTree(ctx, &root)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch category tree: %w", err)
	}

	var anchor int64
	if root != r.rootID {
		exists, err := r.exists(ctx, vocabulary, root)
		if err != nil {
			return nil, fmt.Errorf("failed to load category %d: %w", root, err)
		}
		if exists {
			anchor = root
		} else {
			r.logger.Warn("Category %d is not synced yet, its subtree goes to the top level", root)
		}
	}

	nodes := flatten(tree, root)
	p := &pass{inPayload: make(map[int64]bool, len(nodes))}
	for _, n := range nodes {
		p.inPayload[n.category.ID] = true
	}

	r.apply(ctx, vocabulary, root, anchor, nodes, p)

	result := &catalog.TreeResult{
		Created:    p.created,
		Updated:    p.updated,
		Reparented: p.reparented,
		Warnings:   p.warnings,
		Errors:     p.errors,
	}

	if r.pruneOrphans {
		if len(p.errors) > 0 {
			r.logger.Warn("Skipping category prune for %s: %d nodes failed", vocabulary, len(p.errors))
		} else {
			deleted, err := r.prune(ctx, vocabulary, anchor, root != r.rootID, p.inPayload)
			if err != nil {
				return result, err
			}
			result.Deleted = deleted
		}
	}

	r.logger.Info("Category tree %s synced: %d created, %d updated, %d errors",
		vocabulary, len(result.Created), len(result.Updated), len(result.Errors))
	return result, nil
}

// SynchronizeCategory applies a partial push: a moved or renamed node and
// its immediate children. Nothing is deleted.
func (r *Reconciler) SynchronizeCategory(ctx context.Context, vocabulary string, categories []commerce.Category, storeID string) (*catalog.CategoryResult, error) {
	result := &catalog.CategoryResult{}
	if len(categories) == 0 {
		return result, nil
	}

	p := &pass{inPayload: make(map[int64]bool)}
	if storeID != "" {
		langcode, ok := r.locales.Langcode(ctx, storeID)
		if !ok {
			return nil, fmt.Errorf("no langcode for store %s", storeID)
		}
		p.langcode = langcode
		p.translate = !r.locales.IsDefault(langcode)
	}

	var nodes []pending
	for _, c := range categories {
		nodes = append(nodes, pending{category: c, parentID: c.ParentID})
		for _, child := range c.Children {
			parent := child.ParentID
			if parent == 0 {
				parent = c.ID
			}
			nodes = append(nodes, pending{category: child, parentID: parent})
		}
	}
	for _, n := range nodes {
		p.inPayload[n.category.ID] = true
	}

	r.apply(ctx, vocabulary, r.rootID, 0, nodes, p)

	result.Created = len(p.created)
	result.Updated = len(p.updated)
	result.Warnings = p.warnings
	result.Errors = p.errors
	return result, nil
}

// apply writes nodes in order. Children of root are placed under anchor,
// 0 being the top level. A node whose parent is still to come in the
// payload is deferred once; after that pass any missing parent is replaced
// by the top level.
func (r *Reconciler) apply(ctx context.Context, vocabulary string, root, anchor int64, nodes []pending, p *pass) {
	done := make(map[int64]bool, len(nodes))

	var deferred []pending
	for _, n := range nodes {
		if n.category.ID == root || n.category.ID == 0 {
			continue
		}
		parent := r.localParent(n.parentID, root, anchor)
		if parent != 0 && !done[parent] {
			exists, err := r.exists(ctx, vocabulary, parent)
			if err != nil {
				p.addError(n.category.ID, "parent lookup failed", err)
				continue
			}
			if !exists {
				if p.inPayload[parent] {
					deferred = append(deferred, n)
					continue
				}
				parent = r.fallback(n.category.ID, parent, p)
			}
		}
		if r.write(ctx, vocabulary, n.category, parent, p) {
			done[n.category.ID] = true
		}
	}

	for _, n := range deferred {
		parent := r.localParent(n.parentID, root, anchor)
		if !done[parent] {
			exists, err := r.exists(ctx, vocabulary, parent)
			if err != nil {
				p.addError(n.category.ID, "parent lookup failed", err)
				continue
			}
			if !exists {
				parent = r.fallback(n.category.ID, parent, p)
			}
		}
		if r.write(ctx, vocabulary, n.category, parent, p) {
			done[n.category.ID] = true
		}
	}
}

// localParent maps the fetched root onto anchor and the configured root onto
// the local top level.
func (r *Reconciler) localParent(parentID, root, anchor int64) int64 {
	switch parentID {
	case root:
		return anchor
	case r.rootID:
		return 0
	}
	return parentID
}

func (r *Reconciler) fallback(id, parent int64, p *pass) int64 {
	msg := fmt.Sprintf("category %d: parent %d not found, attached to root", id, parent)
	r.logger.Warn("Category %d: parent %d not found, attaching to root", id, parent)
	p.warnings = append(p.warnings, msg)
	p.reparented = append(p.reparented, id)
	return 0
}

func (r *Reconciler) exists(ctx context.Context, vocabulary string, commerceID int64) (bool, error) {
	_, err := r.store.Find(ctx, vocabulary, commerceID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// write creates or updates one node and reports whether it now exists.
func (r *Reconciler) write(ctx context.Context, vocabulary string, c commerce.Category, parent int64, p *pass) bool {
	o, err := r.upsert(ctx, vocabulary, c, parent, p)
	if err != nil {
		if errors.Is(err, errCycle) {
			p.addError(c.ID, "cycle refused", err)
			return true
		}
		r.logger.Error("Failed to sync category %d: %v", c.ID, err)
		p.addError(c.ID, "save failed", err)
		return false
	}
	switch o {
	case outcomeCreated:
		p.created = append(p.created, c.ID)
	case outcomeUpdated:
		p.updated = append(p.updated, c.ID)
	}
	return true
}

var errCycle = errors.New("re-parenting would create a cycle")

func (r *Reconciler) upsert(ctx context.Context, vocabulary string, c commerce.Category, parent int64, p *pass) (outcome, error) {
	node, err := r.store.Find(ctx, vocabulary, c.ID)
	if errors.Is(err, repository.ErrNotFound) {
		node = &models.CategoryNode{
			Vocabulary:       vocabulary,
			CommerceID:       c.ID,
			ParentCommerceID: parent,
			Name:             c.Name,
			Position:         c.Position,
			IsActive:         true,
		}
		if c.IsActive != nil {
			node.IsActive = *c.IsActive
		}
		if p.translate {
			node.Translations = map[string]interface{}{p.langcode: c.Name}
		}
		if err := r.store.Create(ctx, node); err != nil {
			return outcomeUnchanged, err
		}
		r.logger.Debug("Created category %d under %d", c.ID, parent)
		return outcomeCreated, nil
	}
	if err != nil {
		return outcomeUnchanged, err
	}

	changed := false
	if p.translate {
		if node.Translations == nil {
			node.Translations = map[string]interface{}{}
		}
		if current, _ := node.Translations[p.langcode].(string); current != c.Name {
			node.Translations[p.langcode] = c.Name
			changed = true
		}
	} else if node.Name != c.Name {
		node.Name = c.Name
		changed = true
	}
	if node.Position != c.Position {
		node.Position = c.Position
		changed = true
	}
	if c.IsActive != nil && node.IsActive != *c.IsActive {
		node.IsActive = *c.IsActive
		changed = true
	}
	if node.ParentCommerceID != parent {
		cycle, err := r.createsCycle(ctx, vocabulary, c.ID, parent)
		if err != nil {
			return outcomeUnchanged, err
		}
		if cycle {
			r.logger.Error("Refusing to move category %d under %d: cycle", c.ID, parent)
			if changed {
				if err := r.store.Save(ctx, node); err != nil {
					return outcomeUnchanged, err
				}
			}
			return outcomeUnchanged, errCycle
		}
		node.ParentCommerceID = parent
		changed = true
	}

	if !changed {
		return outcomeUnchanged, nil
	}
	if err := r.store.Save(ctx, node); err != nil {
		return outcomeUnchanged, err
	}
	return outcomeUpdated, nil
}

// createsCycle reports whether id is an ancestor of (or equal to) parent.
func (r *Reconciler) createsCycle(ctx context.Context, vocabulary string, id, parent int64) (bool, error) {
	current := parent
	for depth := 0; current != 0 && depth < maxDepth; depth++ {
		if current == id {
			return true, nil
		}
		node, err := r.store.Find(ctx, vocabulary, current)
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		current = node.ParentCommerceID
	}
	return current != 0, nil
}

// prune deletes local nodes missing from seen. A subtree prune only looks at
// the descendants of anchor and never at anchor itself.
func (r *Reconciler) prune(ctx context.Context, vocabulary string, anchor int64, subtree bool, seen map[int64]bool) ([]int64, error) {
	local, err := r.store.List(ctx, vocabulary)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	if subtree {
		if anchor == 0 {
			return nil, nil
		}
		local = descendants(local, anchor)
	}

	var orphans []int64
	for _, node := range local {
		if !seen[node.CommerceID] {
			orphans = append(orphans, node.CommerceID)
		}
	}
	if len(orphans) == 0 {
		return nil, nil
	}
	if _, err := r.store.DeleteByCommerceIDs(ctx, vocabulary, orphans); err != nil {
		return nil, fmt.Errorf("failed to prune categories: %w", err)
	}
	r.logger.Info("Pruned %d categories from %s", len(orphans), vocabulary)
	return orphans, nil
}

// descendants returns the nodes below id, in the order they were given.
func descendants(nodes []models.CategoryNode, id int64) []models.CategoryNode {
	children := make(map[int64][]int64, len(nodes))
	for _, n := range nodes {
		children[n.ParentCommerceID] = append(children[n.ParentCommerceID], n.CommerceID)
	}
	below := make(map[int64]bool)
	queue := []int64{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range children[current] {
			if child == id || below[child] {
				continue
			}
			below[child] = true
			queue = append(queue, child)
		}
	}

	var out []models.CategoryNode
	for _, n := range nodes {
		if below[n.CommerceID] {
			out = append(out, n)
		}
	}
	return out
}

// flatten lists the tree breadth first, excluding the root itself. Each
// node's parent is the node it hangs under in the tree.
func flatten(tree *commerce.Category, root int64) []pending {
	if tree == nil {
		return nil
	}
	var out []pending
	queue := []pending{{category: *tree, parentID: 0}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.category.ID != root {
			out = append(out, current)
		}
		for _, child := range current.category.Children {
			queue = append(queue, pending{category: child, parentID: current.category.ID})
		}
	}
	return out
}

// Package repository holds the working set of mailbox items and their
// classifications. A single Repository instance owns all mutable state;
// callers receive it explicitly, there is no ambient global.
package repository

import (
	"log/slog"
	"sync"

	"github.com/ykarpov/inboxflow/app/mail"
	"github.com/ykarpov/inboxflow/app/taxonomy"
)

// Bucket names a partition of the working item set.
type Bucket string

const (
	BucketAll Bucket = "all"
	BucketJob Bucket = "job"
)

// Repository keeps an ordered head window (the source's first page), the
// load-more tail, and an id-keyed classification map with a lifecycle
// decoupled from the items: a classification survives the item object being
// reconstructed under the same id. All writes are serialized behind one
// mutex; readers get copies.
type Repository struct {
	mu sync.RWMutex

	head []*mail.Item
	tail []*mail.Item

	classifications map[string]*taxonomy.ClassificationResult

	cursor         string
	selectedBucket Bucket

	// jobMarkers are source labels that mark an item as job-related even
	// before it has been classified, configured per deployment.
	jobMarkers []string
}

func New(jobMarkers []string) *Repository {
	return &Repository{
		classifications: make(map[string]*taxonomy.ClassificationResult),
		selectedBucket:  BucketAll,
		jobMarkers:      jobMarkers,
	}
}

// Merge rebuilds the head window from a fresh first-page fetch. The result
// preserves freshIDs' order (the source's ranking); for each id the
// currently-held item object is kept when one exists, otherwise the freshly
// fetched one is inserted. Held head items absent from freshIDs are dropped:
// a refresh reflects exactly what the source reports as current. Items
// loaded via load-more live in the tail and are never pruned here.
func (r *Repository) Merge(freshIDs []string, freshByID map[string]*mail.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()

	held := make(map[string]*mail.Item, len(r.head)+len(r.tail))
	for _, it := range r.head {
		held[it.ID] = it
	}
	for _, it := range r.tail {
		held[it.ID] = it
	}

	tailIDs := make(map[string]bool, len(r.tail))
	for _, it := range r.tail {
		tailIDs[it.ID] = true
	}

	newHead := make([]*mail.Item, 0, len(freshIDs))
	for _, id := range freshIDs {
		if tailIDs[id] {
			// Already present in the tail; keep one copy only.
			continue
		}
		if it, ok := held[id]; ok {
			newHead = append(newHead, it)
			continue
		}
		if it, ok := freshByID[id]; ok {
			newHead = append(newHead, it)
			continue
		}
		slog.Warn("Fresh id missing from fetched items, skipping", "id", id)
	}

	r.head = newHead
}

// AppendPage adds items fetched via load-more to the tail. Ids already in
// the working set are skipped; tail items are never pruned by Merge.
func (r *Repository) AppendPage(items []*mail.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()

	present := make(map[string]bool, len(r.head)+len(r.tail))
	for _, it := range r.head {
		present[it.ID] = true
	}
	for _, it := range r.tail {
		present[it.ID] = true
	}

	for _, it := range items {
		if present[it.ID] {
			continue
		}
		r.tail = append(r.tail, it)
		present[it.ID] = true
	}
}

// Items returns the working set in order: head window first, then the
// load-more tail. The slice is a copy; the pointed-to items are shared and
// treated as immutable.
func (r *Repository) Items() []*mail.Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.itemsLocked()
}

func (r *Repository) itemsLocked() []*mail.Item {
	items := make([]*mail.Item, 0, len(r.head)+len(r.tail))
	items = append(items, r.head...)
	items = append(items, r.tail...)
	return items
}

// Get returns the item with the given id, if held.
func (r *Repository) Get(id string) (*mail.Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, it := range r.itemsLocked() {
		if it.ID == id {
			return it, true
		}
	}
	return nil, false
}

// Classification returns a copy of the stored classification for id.
func (r *Repository) Classification(id string) (taxonomy.ClassificationResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result, ok := r.classifications[id]
	if !ok {
		return taxonomy.ClassificationResult{}, false
	}
	return *result, true
}

// Attach stores the classification for id. Idempotent: attaching the same
// result twice leaves one entry. A user override already present survives
// re-classification.
func (r *Repository) Attach(id string, result taxonomy.ClassificationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.classifications[id]; ok && prev.UserOverrideStage != nil {
		result.UserOverrideStage = prev.UserOverrideStage
	}
	stored := result
	r.classifications[id] = &stored
}

// ApplyUserOverride records a human stage decision for id. The override
// wins over the classifier's stage for display and aggregation.
func (r *Repository) ApplyUserOverride(id string, stage taxonomy.Stage) bool {
	if !stage.IsValid() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	result, ok := r.classifications[id]
	if !ok {
		// Overriding an unclassified item pins its stage directly.
		r.classifications[id] = &taxonomy.ClassificationResult{
			Category:          taxonomy.CategoryJob,
			UserOverrideStage: &stage,
		}
		return true
	}
	result.UserOverrideStage = &stage
	return true
}

// GetFiltered returns the items in the given bucket, in working-set order.
// Job-bucket membership is the union of three signals: an explicit job
// category from classification, a configured source label marker, or a
// cached stage inside the closed set.
func (r *Repository) GetFiltered(bucket Bucket) []*mail.Item {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.itemsLocked()
	if bucket == BucketAll || bucket == "" {
		return all
	}

	var filtered []*mail.Item
	for _, it := range all {
		if bucket == BucketJob && r.isJobLocked(it) {
			filtered = append(filtered, it)
		}
	}
	return filtered
}

func (r *Repository) isJobLocked(it *mail.Item) bool {
	if result, ok := r.classifications[it.ID]; ok {
		if result.Category == taxonomy.CategoryJob {
			return true
		}
		if result.UserOverrideStage != nil && result.UserOverrideStage.IsValid() {
			return true
		}
		if result.JobStage != nil && result.JobStage.IsValid() {
			return true
		}
		if result.TransitionTo != nil && result.TransitionTo.IsValid() {
			return true
		}
	}

	for _, marker := range r.jobMarkers {
		if it.HasLabel(marker) {
			return true
		}
	}

	return false
}

// Cursor returns the current sync cursor (empty when no further page).
func (r *Repository) Cursor() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cursor
}

// AdvanceCursor records the next page token from the latest fetch.
func (r *Repository) AdvanceCursor(next string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = next
}

// SelectedBucket returns the bucket the user last selected.
func (r *Repository) SelectedBucket() Bucket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selectedBucket
}

func (r *Repository) SelectBucket(b Bucket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selectedBucket = b
}

// Counts returns working set size and how many items hold a classification.
func (r *Repository) Counts() (items, classified int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.head) + len(r.tail), len(r.classifications)
}

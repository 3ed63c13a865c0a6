package repository

import (
	"github.com/ykarpov/inboxflow/app/mail"
	"github.com/ykarpov/inboxflow/app/taxonomy"
)

// Snapshot is the single serializable blob persisted after each scheduler
// chunk and on session end.
type Snapshot struct {
	HeadItems       []*mail.Item                              `json:"items"`
	TailItems       []*mail.Item                              `json:"tail_items,omitempty"`
	Classifications map[string]*taxonomy.ClassificationResult `json:"classifications"`
	Cursor          string                                    `json:"cursor,omitempty"`
	SelectedBucket  Bucket                                    `json:"selected_bucket,omitempty"`
}

// Snapshot copies the current state into a persistable value. Item pointers
// are shared (items are immutable); classification values are copied so a
// later Attach cannot race the serializer.
func (r *Repository) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	classifications := make(map[string]*taxonomy.ClassificationResult, len(r.classifications))
	for id, result := range r.classifications {
		copied := *result
		classifications[id] = &copied
	}

	return &Snapshot{
		HeadItems:       append([]*mail.Item(nil), r.head...),
		TailItems:       append([]*mail.Item(nil), r.tail...),
		Classifications: classifications,
		Cursor:          r.cursor,
		SelectedBucket:  r.selectedBucket,
	}
}

// Restore replaces the repository state with a previously persisted snapshot.
func (r *Repository) Restore(s *Snapshot) {
	if s == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.head = append([]*mail.Item(nil), s.HeadItems...)
	r.tail = append([]*mail.Item(nil), s.TailItems...)
	r.cursor = s.Cursor

	r.classifications = make(map[string]*taxonomy.ClassificationResult, len(s.Classifications))
	for id, result := range s.Classifications {
		copied := *result
		r.classifications[id] = &copied
	}

	if s.SelectedBucket != "" {
		r.selectedBucket = s.SelectedBucket
	} else {
		r.selectedBucket = BucketAll
	}
}

// Package mail defines the message model shared by the mailbox client,
// the repository and the classification pipeline.
package mail

import (
	"strings"
	"time"
)

// Item is one mailbox message in the working set. Items are created on
// fetch and never mutated afterwards; classification state lives in the
// repository, keyed by ID.
type Item struct {
	ID        string    `json:"id"`
	From      string    `json:"from,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Content   string    `json:"content"`
	LabelSet  []string  `json:"label_set,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HasLabel reports whether the item carries the given source label,
// case-insensitively.
func (it *Item) HasLabel(label string) bool {
	for _, l := range it.LabelSet {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// Page is one paginated fetch result from the mail source.
type Page struct {
	IDs           []string
	NextPageToken string
}

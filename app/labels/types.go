package labels

// Bucket names a label group used for mailbox filtering.
const (
	BucketJob   = "job"
	BucketOther = "other"
)

// Definition describes one mailbox label loaded from a YAML file in the
// labels directory. Name is derived from the filename.
type Definition struct {
	Name            string   // Derived from filename (without .yml extension)
	DisplayName     string   `yaml:"display_name"`
	Description     string   `yaml:"description"`
	Bucket          string   `yaml:"bucket"`
	Markers         []string `yaml:"markers"` // external label names that imply this label
	ApplyOnClassify bool     `yaml:"apply_on_classify"`
}

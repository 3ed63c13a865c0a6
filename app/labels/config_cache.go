package labels

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

type ConfigCache struct {
	labelsDir string
	cache     map[string]*Definition
	mu        sync.RWMutex
}

func NewConfigCache(labelsDir string) *ConfigCache {
	return &ConfigCache{
		labelsDir: labelsDir,
		cache:     make(map[string]*Definition),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.labelsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.labelsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		// Derive label name from filename (remove .yml extension)
		fileName := filepath.Base(file)
		labelName := fileName[:len(fileName)-4]

		definition, err := cc.LoadDefinition(labelName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Label definition loaded", "label", labelName, "bucket", definition.Bucket, "apply_on_classify", definition.ApplyOnClassify)
	}

	return nil
}

func (cc *ConfigCache) LoadDefinition(labelName string) (*Definition, error) {
	definitionFile := cc.getDefinitionFilePath(labelName)
	definition, err := cc.parseDefinition(definitionFile)
	if err != nil {
		return nil, err
	}

	// Set label name from parameter
	definition.Name = labelName

	if err := cc.validateDefinition(definition); err != nil {
		return nil, fmt.Errorf("invalid definition %s: %w", definitionFile, err)
	}

	// Store in cache
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[definition.Name] = definition

	return definition, nil
}

func (cc *ConfigCache) GetDefinition(labelName string) (*Definition, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	definition, ok := cc.cache[labelName]
	if !ok {
		return nil, fmt.Errorf("label definition with name '%s' not found", labelName)
	}
	return definition, nil
}

func (cc *ConfigCache) GetDefinitions() map[string]*Definition {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	definitionsCopy := make(map[string]*Definition, len(cc.cache))
	for k, v := range cc.cache {
		definitionsCopy[k] = v
	}
	return definitionsCopy
}

// GetApplicable returns the labels written back to the mailbox after an item
// is classified into the job bucket.
func (cc *ConfigCache) GetApplicable() map[string]*Definition {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	applicable := make(map[string]*Definition)
	for k, v := range cc.cache {
		if v.ApplyOnClassify {
			applicable[k] = v
		}
	}
	return applicable
}

// JobMarkers collects the external label names whose presence on an item
// places it in the job bucket.
func (cc *ConfigCache) JobMarkers() []string {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	var markers []string
	for _, v := range cc.cache {
		if v.Bucket != BucketJob {
			continue
		}
		markers = append(markers, v.Markers...)
	}
	return markers
}

func (cc *ConfigCache) GetDefinitionCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseDefinition(definitionFile string) (*Definition, error) {
	data, err := os.ReadFile(definitionFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var definition Definition
	if err := yaml.Unmarshal(data, &definition); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if definition.Bucket == "" {
		definition.Bucket = BucketOther
	}

	return &definition, nil
}

func (cc *ConfigCache) validateDefinition(definition *Definition) error {
	if definition == nil {
		return fmt.Errorf("definition is nil")
	}

	if definition.Name == "" {
		return fmt.Errorf("label name is required")
	}
	if definition.DisplayName == "" {
		return fmt.Errorf("display name is required")
	}

	validBuckets := map[string]bool{
		BucketJob:   true,
		BucketOther: true,
	}
	if !validBuckets[definition.Bucket] {
		return fmt.Errorf("invalid bucket: %s", definition.Bucket)
	}

	for i, marker := range definition.Markers {
		if marker == "" {
			return fmt.Errorf("marker at index %d must not be empty", i)
		}
	}

	return nil
}

func (cc *ConfigCache) getDefinitionFilePath(labelName string) string {
	return filepath.Join(cc.labelsDir, labelName+".yml")
}

package director

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WritePath writes a generated camera path to a YAML file
func WritePath(set *KeyframeSet, duration float64, sceneName, path string) error {
	doc := Path{
		Version:   "1.0",
		Scene:     sceneName,
		Duration:  duration,
		Keyframes: set.Keyframes(),
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ReadPath reads a camera path from a YAML file
func ReadPath(path string) (*KeyframeSet, float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}

	var doc Path
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, 0, err
	}

	set, err := NewKeyframeSet(doc.Keyframes)
	if err != nil {
		return nil, 0, fmt.Errorf("path %s: %w", path, err)
	}

	duration := doc.Duration
	if duration <= 0 {
		duration = set.Duration()
	}

	return set, duration, nil
}

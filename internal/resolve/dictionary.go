package resolve

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/blitz-labs/tankrank/internal/names"
)

//go:embed dictionary.yaml
var seedDictionary []byte

// ReloadDictionary replaces the truncation dictionary wholesale. An empty
// path loads the embedded seed; otherwise the YAML file at path is read.
// Keys are normalized before insertion so lookups and dictionary entries
// agree on spelling.
func (r *Resolver) ReloadDictionary(path string) error {
	raw := seedDictionary
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read dictionary %s: %w", path, err)
		}
		raw = b
	}

	var entries map[string]string
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("parse dictionary: %w", err)
	}

	dict := make(map[string]string, len(entries))
	for variant, canonical := range entries {
		key := names.NormTank(variant)
		if key == "" || canonical == "" {
			continue
		}
		dict[key] = canonical
	}

	r.mu.Lock()
	r.dict = dict
	r.mu.Unlock()

	r.log.Debug("truncation dictionary loaded", "entries", len(dict), "path", path)
	return nil
}

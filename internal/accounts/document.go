package accounts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

type docFormat int

const (
	formatJSON docFormat = iota
	formatYAML
)

// document is the decoded config file. Unknown keys are preserved across edits.
type document struct {
	format docFormat
	root   map[string]any
}

func formatFor(path string) docFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

func readDocument(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, configErrorf(ConfigMissing, path, "config not found: "+path, nil)
		}
		return nil, configErrorf(ConfigMissing, path, "failed to read config", err)
	}

	doc := &document{format: formatFor(path), root: map[string]any{}}
	switch doc.format {
	case formatYAML:
		err = yaml.Unmarshal(data, &doc.root)
	default:
		err = json.Unmarshal(data, &doc.root)
	}
	if err != nil {
		return nil, configErrorf(ConfigMalformed, path, "failed to parse config", err)
	}
	if doc.root == nil {
		doc.root = map[string]any{}
	}
	return doc, nil
}

// entries returns the raw accounts list. A missing key is an empty list; any
// other non-list value is malformed.
func (d *document) entries() ([]any, error) {
	raw, ok := d.root["accounts"]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, configErrorf(ConfigMalformed, "", "config.accounts must be an array", nil)
	}
	return list, nil
}

func (d *document) setEntries(list []any) {
	d.root["accounts"] = list
}

// objects yields the object entries of the accounts list, skipping anything else.
func (d *document) objects() ([]map[string]any, error) {
	list, err := d.entries()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// find returns the object entry whose label matches.
func (d *document) find(label string) (map[string]any, error) {
	objs, err := d.objects()
	if err != nil {
		return nil, err
	}
	for _, m := range objs {
		if stringField(m, "label") == label {
			return m, nil
		}
	}
	return nil, configErrorf(ConfigNotFound, "", "label not found: "+label, nil)
}

func (d *document) encode() ([]byte, error) {
	if d.format == formatYAML {
		return yaml.Marshal(d.root)
	}
	data, err := json.MarshalIndent(d.root, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// writeDocument replaces path atomically. When the rename is refused (a
// bind-mounted single file reports EBUSY) it falls back to overwriting in place.
func writeDocument(path string, doc *document) error {
	data, err := doc.encode()
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		log.Printf("[Accounts] atomic replace of %s failed, overwriting in place: %v", path, err)
		if werr := os.WriteFile(path, data, 0o644); werr != nil {
			return fmt.Errorf("write config: %w", werr)
		}
	}
	return nil
}

// writeSecret stores a credential file readable only by the owner.
func writeSecret(path, value string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if err := atomic.WriteFile(path, strings.NewReader(strings.TrimSpace(value)+"\n")); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

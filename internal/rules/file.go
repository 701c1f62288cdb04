package rules

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/finhelper/internal/model"
)

// errMalformedFile marks a rules file that cannot be used at all.
var errMalformedFile = errors.New("malformed rules file")

// ruleDoc is the on-disk shape of a single rule.
type ruleDoc struct {
	CategoryName    string   `yaml:"category_name"`
	TransactionType string   `yaml:"transaction_type,omitempty"`
	Keywords        []string `yaml:"keywords"`
	Patterns        []string `yaml:"patterns"`
}

// skippedEntry describes a rule that was dropped while decoding.
type skippedEntry struct {
	err  error
	name string
}

// decodeRules parses a rules document, keeping the mapping order of the file.
// Entries that cannot be decoded are reported in skipped and left out.
func decodeRules(data []byte) ([]model.Rule, []skippedEntry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errMalformedFile, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil, fmt.Errorf("%w: empty document", errMalformedFile)
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("%w: top level must be a mapping of rule names", errMalformedFile)
	}

	var (
		out     []model.Rule
		skipped []skippedEntry
		seen    = make(map[string]bool, len(root.Content)/2)
	)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]
		name := keyNode.Value

		if keyNode.Kind != yaml.ScalarNode || name == "" {
			skipped = append(skipped, skippedEntry{name: name, err: errors.New("rule name must be a non-empty string")})
			continue
		}
		if seen[name] {
			skipped = append(skipped, skippedEntry{name: name, err: errors.New("duplicate rule name")})
			continue
		}
		if valNode.Kind != yaml.MappingNode {
			skipped = append(skipped, skippedEntry{name: name, err: errors.New("rule body must be a mapping")})
			continue
		}

		var rd ruleDoc
		if err := valNode.Decode(&rd); err != nil {
			skipped = append(skipped, skippedEntry{name: name, err: err})
			continue
		}

		rule := model.Rule{
			Name:         name,
			Keywords:     rd.Keywords,
			Patterns:     rd.Patterns,
			CategoryName: rd.CategoryName,
		}
		if rd.TransactionType != "" {
			txType, err := model.ParseTransactionType(rd.TransactionType)
			if err != nil {
				skipped = append(skipped, skippedEntry{name: name, err: err})
				continue
			}
			rule.TransactionType = txType
		}

		seen[name] = true
		out = append(out, rule)
	}

	return out, skipped, nil
}

// encodeRules renders rules as a YAML mapping in the given order.
func encodeRules(rules []model.Rule) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, r := range rules {
		rd := ruleDoc{
			Keywords:        nonNil(r.Keywords),
			Patterns:        nonNil(r.Patterns),
			CategoryName:    r.CategoryName,
			TransactionType: string(r.TransactionType),
		}

		var val yaml.Node
		if err := val.Encode(rd); err != nil {
			return nil, fmt.Errorf("failed to encode rule %q: %w", r.Name, err)
		}
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: r.Name}
		root.Content = append(root.Content, key, &val)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("failed to encode rules: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode rules: %w", err)
	}
	return buf.Bytes(), nil
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create rules directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".rules-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write rules: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close rules file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to set rules file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace rules file: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

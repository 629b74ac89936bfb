package watcher

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadPayload читает плоский YAML-словарь строк. Пустой файл дает пустой payload
func LoadPayload(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePayload(data)
}

// ParsePayload разбирает содержимое payload-файла. Скалярные значения
// берутся как есть, вложенные структуры отклоняются.
func ParsePayload(data []byte) (map[string]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	payload := map[string]string{}
	if len(doc.Content) == 0 {
		return payload, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: top level must be a mapping", ErrInvalidPayload, root.Line)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: line %d: key must be a scalar", ErrInvalidPayload, key.Line)
		}
		if value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: line %d: value of %q must be a scalar", ErrInvalidPayload, value.Line, key.Value)
		}
		if _, dup := payload[key.Value]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate key %q", ErrInvalidPayload, key.Line, key.Value)
		}
		if value.Tag == "!!null" {
			payload[key.Value] = ""
			continue
		}
		payload[key.Value] = value.Value
	}

	return payload, nil
}

package main

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// render emits v in the selected output format. The table callback is
// used for the default human-readable format; json and yaml marshal v
// directly.
func render(v any, table func() error) error {
	switch output {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal json: %w", err)
		}
		fmt.Println(string(data))
		return nil
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		fmt.Print(string(data))
		return nil
	default:
		return table()
	}
}

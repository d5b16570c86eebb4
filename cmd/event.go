package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// readEvent decodes an input event from a JSON or YAML file. "-" reads
// stdin.
func readEvent(path string, stdin io.Reader) (map[string]any, error) {
	if path == "" {
		return nil, errors.New("--event is required")
	}

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read event: %w", err)
	}

	event := make(map[string]any)
	if err = yaml.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if len(event) == 0 {
		return nil, fmt.Errorf("event %s is empty", path)
	}
	return event, nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quickcart/usersync/internal/usersync"
)

// readEnvelope loads a webhook-shaped event ({type, data}) from a JSON or YAML
// file. "-" reads from stdin.
func readEnvelope(path string, stdin io.Reader) (usersync.Envelope, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return usersync.Envelope{}, err
	}

	// JSON is valid YAML, so one decoder covers both. The generic tree is
	// re-encoded as JSON to reuse the payload's json tags.
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return usersync.Envelope{}, fmt.Errorf("parse event: %w", err)
	}
	if len(doc) == 0 {
		return usersync.Envelope{}, fmt.Errorf("parse event: document is empty")
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return usersync.Envelope{}, fmt.Errorf("parse event: %w", err)
	}

	var envelope usersync.Envelope
	if err := json.Unmarshal(encoded, &envelope); err != nil {
		return usersync.Envelope{}, fmt.Errorf("parse event: %w", err)
	}
	return envelope, nil
}

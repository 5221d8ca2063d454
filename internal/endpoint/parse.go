package endpoint

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/apiforge-ai/apiforge/internal/errors"
)

// ParseDocument decodes one endpoint document authored in YAML. JSON input is
// accepted too since JSON is a YAML subset. The decoded document is validated
// before it is returned.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: failed to decode document: %v", errors.ErrBadRequest, err)
	}

	if err := doc.Validate(); err != nil {
		return Document{}, err
	}

	return doc, nil
}

package id

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-uuid"
)

// New generates an ID with an optional prefix.  The ID is a random UUID with
// its dashes removed, which keeps it safe for OpenID key-value form values.
func New(optionalPrefix string) (string, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("unable to generate id: %w", err)
	}
	id = strings.ReplaceAll(id, "-", "")
	switch {
	case optionalPrefix != "":
		return fmt.Sprintf("%s_%s", optionalPrefix, id), nil
	default:
		return id, nil
	}
}

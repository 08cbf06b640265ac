package service

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/honeynil/payment-orchestrator/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed status_map.yaml
var defaultStatusMap []byte

// StatusNormalizer maps raw provider status strings onto internal states.
type StatusNormalizer struct {
	table map[string]models.StatusType
}

func NewStatusNormalizer(raw []byte) (*StatusNormalizer, error) {
	var doc map[string][]string
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse status map: %w", err)
	}

	table := make(map[string]models.StatusType)
	for target, aliases := range doc {
		status := models.StatusType(strings.ToLower(strings.TrimSpace(target)))
		if !status.IsTerminal() {
			return nil, fmt.Errorf("status map target %q is not a terminal status", target)
		}
		for _, alias := range aliases {
			key := strings.ToLower(strings.TrimSpace(alias))
			if key == "" {
				continue
			}
			if prev, ok := table[key]; ok && prev != status {
				return nil, fmt.Errorf("status %q mapped to both %s and %s", alias, prev, status)
			}
			table[key] = status
		}
	}
	return &StatusNormalizer{table: table}, nil
}

func DefaultStatusNormalizer() *StatusNormalizer {
	n, err := NewStatusNormalizer(defaultStatusMap)
	if err != nil {
		panic(err)
	}
	return n
}

func (n *StatusNormalizer) Normalize(raw string) models.StatusType {
	if s, ok := n.table[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return models.StatusPending
}

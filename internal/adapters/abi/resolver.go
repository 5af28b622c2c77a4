package abi

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
)

// Parse parses the ABI of a Foundry artifact
func Parse(artifact *models.Artifact) (*abi.ABI, error) {
	if artifact == nil || len(artifact.ABI) == 0 {
		return nil, fmt.Errorf("%w: artifact has no ABI", domain.ErrMetadataUnavailable)
	}
	parsed, err := abi.JSON(strings.NewReader(string(artifact.ABI)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return &parsed, nil
}

// FindMethod returns the method called name taking argc arguments. Overloads
// are told apart by arity only.
func FindMethod(parsed *abi.ABI, name string, argc int) (*abi.Method, error) {
	var arities []int
	for _, m := range parsed.Methods {
		if m.RawName != name {
			continue
		}
		if len(m.Inputs) == argc {
			method := m
			return &method, nil
		}
		arities = append(arities, len(m.Inputs))
	}
	if len(arities) == 0 {
		return nil, fmt.Errorf("method %s: %w", name, domain.ErrNotFound)
	}
	return nil, fmt.Errorf("method %s takes %v arguments, got %d", name, arities, argc)
}

package interactive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/sahilm/fuzzy"
	"github.com/trebuchet-org/treb-proxy/internal/domain/config"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// SelectorAdapter handles interactive selection and confirmation
type SelectorAdapter struct {
	config *config.RuntimeConfig
}

// NewSelectorAdapter creates a new selector adapter
func NewSelectorAdapter(cfg *config.RuntimeConfig) *SelectorAdapter {
	return &SelectorAdapter{config: cfg}
}

// SelectProxy selects a proxy from a list
func (s *SelectorAdapter) SelectProxy(ctx context.Context, proxies []*models.Proxy, prompt string) (*models.Proxy, error) {
	if len(proxies) == 0 {
		return nil, fmt.Errorf("no proxies provided for selection")
	}
	if len(proxies) == 1 {
		return proxies[0], nil
	}
	if s.config.NonInteractive {
		return nil, fmt.Errorf("interactive selection not available in non-interactive mode")
	}

	options := formatProxyOptions(proxies)

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "▸ {{ . | cyan }}",
		Inactive: "  {{ . | faint }}",
		Selected: "✓ {{ . | green }}",
		Help:     color.New(color.FgYellow).Sprint("Use arrow keys to navigate, Enter to select"),
	}

	promptSelect := promptui.Select{
		Label:             prompt,
		Items:             options,
		Templates:         templates,
		Size:              10,
		StartInSearchMode: true,
		Searcher:          createFuzzySearchFunc(options),
	}

	index, _, err := promptSelect.Run()
	if err != nil {
		return nil, fmt.Errorf("selection cancelled: %w", err)
	}
	return proxies[index], nil
}

// Confirm asks a yes/no question, defaulting to no
func (s *SelectorAdapter) Confirm(ctx context.Context, message string) (bool, error) {
	if s.config.NonInteractive {
		return true, nil
	}

	prompt := promptui.Prompt{
		Label:     message,
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		// promptui reports "n" as ErrAbort
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, fmt.Errorf("confirmation failed: %w", err)
	}
	return true, nil
}

// formatProxyOptions creates display strings for proxy selection
func formatProxyOptions(proxies []*models.Proxy) []string {
	options := make([]string, len(proxies))
	for i, p := range proxies {
		label := p.Label
		if label == "" {
			label = "(unlabelled)"
		}
		name := p.ContractRef
		if idx := strings.LastIndex(name, ":"); idx >= 0 {
			name = name[idx+1:]
		}
		options[i] = fmt.Sprintf("%s %s (%s)",
			color.New(color.FgWhite, color.Bold).Sprint(label),
			color.New(color.FgBlue).Sprint(name),
			p.Address.Hex())
	}
	return options
}

// createFuzzySearchFunc creates a fuzzy search function for promptui
func createFuzzySearchFunc(items []string) func(input string, index int) bool {
	return func(input string, index int) bool {
		if input == "" {
			return true
		}

		input = strings.ToLower(input)
		item := strings.ToLower(items[index])

		if strings.Contains(item, input) {
			return true
		}

		pattern := fuzzy.Find(input, []string{item})
		return len(pattern) > 0
	}
}

var (
	_ usecase.ProxySelector = (*SelectorAdapter)(nil)
	_ usecase.Confirmer     = (*SelectorAdapter)(nil)
)

package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// AcceptableElementsKey is the settings key holding extra markup elements
// allowed when rendering entry content.
const AcceptableElementsKey = "acceptable_elements"

// DefaultAcceptableElements is stored on first use.
var DefaultAcceptableElements = []string{"object", "embed", "iframe"}

// AcceptableElements loads the rendering allowlist, seeding the default when unset.
func AcceptableElements(ctx context.Context, repo SettingsRepository) ([]string, error) {
	raw, ok, err := repo.Setting(ctx, AcceptableElementsKey)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", AcceptableElementsKey, err)
	}
	if !ok {
		elements := append([]string(nil), DefaultAcceptableElements...)
		if err := SetAcceptableElements(ctx, repo, elements); err != nil {
			return nil, err
		}
		return elements, nil
	}

	var elements []string
	if err := json.Unmarshal([]byte(raw), &elements); err != nil {
		return nil, fmt.Errorf("decode %s: %w", AcceptableElementsKey, err)
	}
	return elements, nil
}

// SetAcceptableElements replaces the rendering allowlist.
func SetAcceptableElements(ctx context.Context, repo SettingsRepository, elements []string) error {
	cleaned := make([]string, 0, len(elements))
	seen := make(map[string]struct{}, len(elements))
	for _, e := range elements {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		cleaned = append(cleaned, e)
	}
	raw, err := json.Marshal(cleaned)
	if err != nil {
		return err
	}
	if err := repo.SetSetting(ctx, AcceptableElementsKey, string(raw)); err != nil {
		return fmt.Errorf("save %s: %w", AcceptableElementsKey, err)
	}
	return nil
}

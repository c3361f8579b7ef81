package session

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/conduit-lang/trident/internal/payload"
)

// LoadFixtureFile loads a fixture document into store. The format follows
// the file extension.
func LoadFixtureFile(ctx context.Context, store Store, path string) (int, error) {
	format, err := payload.FormatFromPath(path)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read fixtures: %w", err)
	}
	n, err := LoadFixtures(ctx, store, format, data)
	if err != nil {
		return n, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// LoadFixtures stores every record of a fixture document, a map from model
// name to a list of raw records. Models are loaded in sorted order and
// records in document order. It returns the number of records stored.
func LoadFixtures(ctx context.Context, store Store, format payload.Format, data []byte) (int, error) {
	doc, err := payload.Unmarshal(format, data)
	if err != nil {
		return 0, err
	}
	if doc == nil {
		return 0, nil
	}
	models, ok := doc.(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("%w: fixtures must map model names to records, got %T", ErrInvalidRecord, doc)
	}

	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)

	n := 0
	for _, model := range names {
		list, ok := models[model].([]interface{})
		if !ok {
			return n, fmt.Errorf("%w: %s fixtures must be a list, got %T", ErrInvalidRecord, model, models[model])
		}
		for i, item := range list {
			raw, ok := item.(map[string]interface{})
			if !ok {
				return n, fmt.Errorf("%w: %s[%d] is %T", ErrInvalidRecord, model, i, item)
			}
			if _, err := store.Put(ctx, model, raw); err != nil {
				return n, fmt.Errorf("%s[%d]: %w", model, i, err)
			}
			n++
		}
	}
	return n, nil
}

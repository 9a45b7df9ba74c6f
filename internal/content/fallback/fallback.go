// Package fallback holds the static dataset bundled with the binary. A replica shows it
// when the remote store is empty or unreachable.
package fallback

import (
	"embed"
	"encoding/json"
	"fmt"

	"keepsake/internal/content/domain/model"
)

//go:embed data/*.json
var files embed.FS

var datasets = map[model.Collection][]model.ContentItem{}

func init() {
	for _, c := range model.Collections {
		items, err := load(c)
		if err != nil {
			panic(err)
		}
		datasets[c] = items
	}
}

func load(c model.Collection) ([]model.ContentItem, error) {
	raw, err := files.ReadFile("data/" + string(c) + ".json")
	if err != nil {
		return nil, fmt.Errorf("fallback dataset for %s: %w", c, err)
	}
	var items []model.ContentItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("fallback dataset for %s: %w", c, err)
	}
	model.SortAscending(items)
	return items, nil
}

// Items returns a fresh copy of the bundled dataset for c, ascending by id.
// Unknown collections yield an empty slice.
func Items(c model.Collection) []model.ContentItem {
	return append([]model.ContentItem{}, datasets[c]...)
}

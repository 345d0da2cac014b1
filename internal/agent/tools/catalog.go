package tools

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-yaml"
)

//go:embed catalog.yaml
var catalogYAML []byte

// CatalogGroup is one section of the command catalog.
type CatalogGroup struct {
	Group    string         `yaml:"group"`
	Commands []CatalogEntry `yaml:"commands"`
}

// CatalogEntry is one documented command.
type CatalogEntry struct {
	Key         string `yaml:"key"`
	Description string `yaml:"description"`
}

// LoadCatalog parses the embedded catalog.
func LoadCatalog() ([]CatalogGroup, error) {
	var groups []CatalogGroup
	if err := yaml.Unmarshal(catalogYAML, &groups); err != nil {
		return nil, fmt.Errorf("parse command catalog: %w", err)
	}
	return groups, nil
}

// RenderCatalog formats groups for the terminal.
func RenderCatalog(groups []CatalogGroup) string {
	var b strings.Builder
	b.WriteString("Dostępne komendy Lyry:")
	for _, g := range groups {
		fmt.Fprintf(&b, "\n\n%s:", g.Group)
		for _, c := range g.Commands {
			fmt.Fprintf(&b, "\n- `%s`: %s", c.Key, c.Description)
		}
	}
	return b.String()
}

func commandList(context.Context, string, Shell, *slog.Logger) (string, error) {
	groups, err := LoadCatalog()
	if err != nil {
		return "", err
	}
	return RenderCatalog(groups), nil
}

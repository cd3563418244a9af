package connectors

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/skillian-ai/skillian/internal/config"
)

// Build constructs the name -> Connector table from config. The table is
// injected into the skill loader, which hands each skill the connector its
// manifest names.
func Build(cfgs []config.ConnectorConfig, logger *slog.Logger) (map[string]Connector, error) {
	table := make(map[string]Connector, len(cfgs))
	for _, cc := range cfgs {
		conn, err := buildOne(cc)
		if err != nil {
			// Close what we already opened before bailing.
			for _, c := range table {
				_ = c.Close()
			}
			return nil, fmt.Errorf("connector %s: %w", cc.Name, err)
		}
		table[cc.Name] = conn
		logger.Info("connector ready", "name", cc.Name, "type", cc.Type)
	}
	return table, nil
}

func buildOne(cc config.ConnectorConfig) (Connector, error) {
	switch cc.Type {
	case "sqlite":
		return NewSQLite(cc.Name, cc.Path)
	case "mock":
		tables := SampleTables()
		if cc.DatasetFile != "" {
			data, err := os.ReadFile(cc.DatasetFile)
			if err != nil {
				return nil, fmt.Errorf("read dataset: %w", err)
			}
			tables = make(map[string][]map[string]any)
			if err := json.Unmarshal(data, &tables); err != nil {
				return nil, fmt.Errorf("parse dataset: %w", err)
			}
		}
		return NewMock(cc.Name, tables), nil
	default:
		return nil, fmt.Errorf("unknown connector type %q", cc.Type)
	}
}

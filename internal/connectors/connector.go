// Package connectors provides the data connections skills may require.
// A connector is handed to the tool compiler as an opaque capability and is
// never exposed to the model as an argument.
package connectors

import "context"

// Connector is the execution capability behind query-template tools and
// connector-aware native implementations.
//
// Query executes a parameterized query. Parameters are passed by name and
// bound natively by the backing driver; implementations must never
// interpolate values into the query text.
type Connector interface {
	Name() string
	Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
	Ping(ctx context.Context) error
	Close() error
}

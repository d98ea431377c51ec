package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittohttp/pkg/adapter"
	httpadapter "github.com/marmos91/dittohttp/pkg/adapter/http"
	"github.com/marmos91/dittohttp/pkg/metrics"
	"github.com/marmos91/dittohttp/pkg/webroot"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Each adapter binds its listening socket here, so a busy port fails the
// start before anything is served.
//
// Parameters:
//   - cfg: The complete configuration
//   - root: Web root from CreateWebRoot
//   - httpMetrics: Optional HTTP metrics collector (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: Enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, root *webroot.Root, httpMetrics metrics.HTTPMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.HTTP.Enabled {
		httpCfg := cfg.Adapters.HTTP
		httpCfg.Root = root.Dir()

		httpAdapter, err := httpadapter.New(httpCfg, httpMetrics)
		if err != nil {
			closeAdapters(adapters)
			return nil, fmt.Errorf("failed to create HTTP adapter: %w", err)
		}
		adapters = append(adapters, httpAdapter)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}

// closeAdapters releases adapters created before a later one failed.
func closeAdapters(adapters []adapter.Adapter) {
	for _, a := range adapters {
		_ = a.Stop(context.Background())
	}
}

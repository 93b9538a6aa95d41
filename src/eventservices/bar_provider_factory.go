package eventservices

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/eventmodels"
	"github.com/fundsim/fund-backtester/src/utils"
)

// NewBarProviderFromConfig builds the provider named by the engine config's
// data source. A relative csv directory resolves under projectsDir.
func NewBarProviderFromConfig(config *eventmodels.EngineConfigYAML, projectsDir string) (models.BarProvider, error) {
	switch config.Data.Source {
	case "csv":
		dir := config.Data.CsvDir
		if !filepath.IsAbs(dir) {
			dir = path.Join(projectsDir, "fund-backtester", "src", dir)
		}
		return NewCsvBarProvider(dir), nil

	case "polygon":
		apiKey, err := utils.GetEnv("POLYGON_API_KEY")
		if err != nil {
			return nil, fmt.Errorf("$POLYGON_API_KEY not set: %v", err)
		}
		return NewCachedBarProvider(NewPolygonBarProvider(apiKey)), nil

	case "synthetic":
		return NewSyntheticBarProvider(0), nil

	default:
		return nil, fmt.Errorf("unknown data source: %s", config.Data.Source)
	}
}

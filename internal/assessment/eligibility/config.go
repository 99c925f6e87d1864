package eligibility

import (
	"math"
	"strconv"
	"strings"

	"social-support-workers/internal/common/logger"
)

const (
	DefaultIncomeThreshold     = 2000.0
	DefaultFamilySizeThreshold = 4.0
)

type Config struct {
	IncomeThreshold     float64
	FamilySizeThreshold float64
}

func DefaultConfig() Config {
	return Config{
		IncomeThreshold:     DefaultIncomeThreshold,
		FamilySizeThreshold: DefaultFamilySizeThreshold,
	}
}

// RawConfig holds the thresholds as they arrive from configuration.
type RawConfig struct {
	IncomeThreshold     string
	FamilySizeThreshold string
}

// ConfigFromRaw parses each threshold on its own; a bad value only costs that
// field its configured value.
func ConfigFromRaw(raw RawConfig, log logger.Logger) Config {
	return Config{
		IncomeThreshold:     ParseThreshold("income_threshold", raw.IncomeThreshold, DefaultIncomeThreshold, log),
		FamilySizeThreshold: ParseThreshold("family_size_threshold", raw.FamilySizeThreshold, DefaultFamilySizeThreshold, log),
	}
}

// ParseThreshold returns def for empty, unparsable, non-finite or negative input.
func ParseThreshold(name, raw string, def float64, log logger.Logger) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		log.Warn("Invalid threshold, using default", map[string]interface{}{
			"threshold": name,
			"value":     raw,
			"default":   def,
		})
		return def
	}
	return v
}

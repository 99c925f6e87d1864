package recommendation

import (
	"math"

	"social-support-workers/internal/assessment/eligibility"
	"social-support-workers/internal/common/logger"
)

type Config struct {
	DocThreshold            int
	LowIncomeThreshold      float64
	HighFamilySizeThreshold int
}

func DefaultConfig() Config {
	return Config{
		DocThreshold:            DefaultDocThreshold,
		LowIncomeThreshold:      DefaultLowIncomeThreshold,
		HighFamilySizeThreshold: DefaultHighFamilySizeThreshold,
	}
}

type RawConfig struct {
	DocThreshold            string
	LowIncomeThreshold      string
	HighFamilySizeThreshold string
}

// ConfigFromRaw falls back to the default for each field that does not parse.
// Count thresholds accept whole numbers only.
func ConfigFromRaw(raw RawConfig, log logger.Logger) Config {
	return Config{
		DocThreshold:            parseCount("doc_threshold", raw.DocThreshold, DefaultDocThreshold, log),
		LowIncomeThreshold:      eligibility.ParseThreshold("low_income_threshold", raw.LowIncomeThreshold, DefaultLowIncomeThreshold, log),
		HighFamilySizeThreshold: parseCount("high_family_size_threshold", raw.HighFamilySizeThreshold, DefaultHighFamilySizeThreshold, log),
	}
}

func parseCount(name, raw string, def int, log logger.Logger) int {
	v := eligibility.ParseThreshold(name, raw, float64(def), log)
	if v != math.Trunc(v) || v > math.MaxInt32 {
		log.Warn("Invalid threshold, using default", map[string]interface{}{
			"threshold": name,
			"value":     raw,
			"default":   def,
		})
		return def
	}
	return int(v)
}

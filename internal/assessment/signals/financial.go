package signals

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"social-support-workers/internal/assessment/extract"
	"social-support-workers/internal/common/logger"
)

var ErrNonNumericCell = errors.New("NON_NUMERIC_CELL")

type FinancialData struct {
	TotalAssets      float64 `json:"total_assets"`
	TotalLiabilities float64 `json:"total_liabilities"`
	NetWorth         float64 `json:"net_worth"`
}

// Add merges another table into f, e.g. several statements per application.
func (f FinancialData) Add(o FinancialData) FinancialData {
	assets := f.TotalAssets + o.TotalAssets
	liabilities := f.TotalLiabilities + o.TotalLiabilities
	return FinancialData{TotalAssets: assets, TotalLiabilities: liabilities, NetWorth: assets - liabilities}
}

// ParseFinancialTable sums the Assets and Liabilities columns of a CSV table
// with a header row. A missing column counts as zero; any malformed input
// zeroes the whole result and is logged.
func ParseFinancialTable(r io.Reader, log logger.Logger) FinancialData {
	data, err := sumTable(r)
	if err != nil {
		log.Warn("Financial table could not be parsed", map[string]interface{}{"error": err.Error()})
		return FinancialData{}
	}
	return data
}

// ParseFinancialWorkbook reads the first sheet of an xlsx workbook.
func ParseFinancialWorkbook(b []byte, log logger.Logger) FinancialData {
	text, err := extract.SheetCSV(b)
	if err != nil {
		log.Warn("Financial workbook could not be opened", map[string]interface{}{"error": err.Error()})
		return FinancialData{}
	}
	return ParseFinancialTable(strings.NewReader(text), log)
}

func sumTable(r io.Reader) (FinancialData, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return FinancialData{}, nil
	}
	if err != nil {
		return FinancialData{}, fmt.Errorf("read header: %w", err)
	}

	assetsCol, liabilitiesCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "assets":
			assetsCol = i
		case "liabilities":
			liabilitiesCol = i
		}
	}

	var out FinancialData
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return FinancialData{}, fmt.Errorf("line %d: %w", line, err)
		}

		a, err := cell(record, assetsCol)
		if err != nil {
			return FinancialData{}, fmt.Errorf("line %d assets: %w", line, err)
		}
		l, err := cell(record, liabilitiesCol)
		if err != nil {
			return FinancialData{}, fmt.Errorf("line %d liabilities: %w", line, err)
		}
		out.TotalAssets += a
		out.TotalLiabilities += l
	}

	out.NetWorth = out.TotalAssets - out.TotalLiabilities
	return out, nil
}

// cell parses column col of record. Out-of-range columns and blank cells are
// zero; currency symbols and thousands separators are ignored.
func cell(record []string, col int) (float64, error) {
	if col < 0 || col >= len(record) {
		return 0, nil
	}
	raw := strings.TrimSpace(record[col])
	if raw == "" {
		return 0, nil
	}

	negative := false
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") {
		negative = true
		raw = raw[1 : len(raw)-1]
	}
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', '$', '€', '£', ' ':
			return -1
		}
		return r
	}, raw)
	cleaned = strings.TrimPrefix(strings.TrimPrefix(cleaned, "AED"), "USD")

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrNonNumericCell, record[col])
	}
	if negative {
		v = -v
	}
	return v, nil
}

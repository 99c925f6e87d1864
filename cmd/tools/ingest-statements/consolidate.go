package main

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"social-support-workers/internal/assessment/extract"
	"social-support-workers/internal/common/logger"
)

var (
	ErrInputDirMissing = errors.New("INPUT_DIR_MISSING")
	ErrNoValidFiles    = errors.New("NO_VALID_FILES")
)

// table is one source file as header plus rows keyed by column name.
type table struct {
	header []string
	rows   []map[string]string
}

type summary struct {
	Files   int
	Skipped int
	Rows    int
	Columns []string
}

// consolidate reads every file in dir whose extension is in exts, unions the
// columns in first-seen order and writes the rows to output. Unreadable files
// are logged and skipped. An empty directory is not an error.
func consolidate(dir, output string, exts []string, log logger.Logger) (summary, error) {
	var sum summary

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return sum, fmt.Errorf("%w: %s", ErrInputDirMissing, dir)
	}

	files, err := listFiles(dir, exts)
	if err != nil {
		return sum, err
	}
	if len(files) == 0 {
		log.Warn("No input files found", map[string]interface{}{"dir": dir, "extensions": exts})
		return sum, nil
	}

	var tables []table
	for _, path := range files {
		log.Info("Reading file", map[string]interface{}{"file": path})
		t, err := readTable(path)
		if err != nil {
			sum.Skipped++
			log.Error("Failed to read file", map[string]interface{}{"file": path, "error": err.Error()})
			continue
		}
		tables = append(tables, t)
	}
	if len(tables) == 0 {
		return sum, fmt.Errorf("%w in %s", ErrNoValidFiles, dir)
	}

	columns := unionColumns(tables)
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return sum, fmt.Errorf("create output dir: %w", err)
	}
	out, err := os.Create(output)
	if err != nil {
		return sum, fmt.Errorf("create %s: %w", output, err)
	}
	defer out.Close()

	rows, err := writeTables(out, columns, tables)
	if err != nil {
		return sum, fmt.Errorf("write %s: %w", output, err)
	}

	sum.Files = len(tables)
	sum.Rows = rows
	sum.Columns = columns
	log.Info("Consolidated CSV written", map[string]interface{}{
		"output":  output,
		"files":   sum.Files,
		"skipped": sum.Skipped,
		"rows":    sum.Rows,
	})
	return sum, nil
}

// listFiles returns matching files sorted by name so output order is stable.
func listFiles(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range exts {
			if ext == want {
				files = append(files, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func readTable(path string) (table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return table{}, err
		}
		defer f.Close()
		return readJSONLines(f)
	case ".xlsx":
		data, err := os.ReadFile(path)
		if err != nil {
			return table{}, err
		}
		text, err := extract.SheetCSV(data)
		if err != nil {
			return table{}, err
		}
		return readCSV(strings.NewReader(text))
	default:
		f, err := os.Open(path)
		if err != nil {
			return table{}, err
		}
		defer f.Close()
		return readCSV(f)
	}
}

func readCSV(r io.Reader) (table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return table{}, nil
	}
	if err != nil {
		return table{}, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	t := table{header: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return table{}, err
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// readJSONLines reads one JSON object per line. Keys become columns in the
// order they are first seen; nested values are kept as compact JSON.
func readJSONLines(r io.Reader) (table, error) {
	var t table
	seen := map[string]bool{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		keys, err := objectKeys(raw)
		if err != nil {
			return table{}, fmt.Errorf("line %d: %w", line, err)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var obj map[string]interface{}
		if err := dec.Decode(&obj); err != nil {
			return table{}, fmt.Errorf("line %d: %w", line, err)
		}

		row := make(map[string]string, len(obj))
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				t.header = append(t.header, k)
			}
			row[k] = cellString(obj[k])
		}
		t.rows = append(t.rows, row)
	}
	if err := scanner.Err(); err != nil {
		return table{}, err
	}
	return t, nil
}

// objectKeys returns the top-level keys of a JSON object in document order.
func objectKeys(raw []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("expected a JSON object")
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		keys = append(keys, tok.(string))
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func cellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

func unionColumns(tables []table) []string {
	seen := map[string]bool{}
	var cols []string
	for _, t := range tables {
		for _, c := range t.header {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	return cols
}

func writeTables(w io.Writer, columns []string, tables []table) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return 0, err
	}
	rows := 0
	record := make([]string, len(columns))
	for _, t := range tables {
		for _, row := range t.rows {
			for i, c := range columns {
				record[i] = row[c]
			}
			if err := cw.Write(record); err != nil {
				return rows, err
			}
			rows++
		}
	}
	cw.Flush()
	return rows, cw.Error()
}

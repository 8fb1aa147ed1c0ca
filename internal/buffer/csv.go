package buffer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// timeLayout is the timestamp format of the first column of every log.
const timeLayout = time.DateTime

// barFeatures are the per-symbol columns of a bar log, in file order.
var barFeatures = []string{
	"open", "high", "low", "close",
	"base_volume", "quote_volume",
	"rolling_base_volume", "rolling_quote_volume",
	"price_change_percent", "count",
}

func barValues(b domain.Bar) []string {
	return []string{
		formatFloat(b.Open), formatFloat(b.High), formatFloat(b.Low), formatFloat(b.Close),
		formatFloat(b.BaseVolume), formatFloat(b.QuoteVolume),
		formatFloat(b.RollingBaseVolume), formatFloat(b.RollingQuoteVolume),
		formatFloat(b.PriceChangePercent), strconv.FormatInt(b.Count, 10),
	}
}

func setBarValue(b *domain.Bar, feature, raw string) error {
	if feature == "count" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		b.Count = n
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	switch feature {
	case "open":
		b.Open = v
	case "high":
		b.High = v
	case "low":
		b.Low = v
	case "close":
		b.Close = v
	case "base_volume":
		b.BaseVolume = v
	case "quote_volume":
		b.QuoteVolume = v
	case "rolling_base_volume":
		b.RollingBaseVolume = v
	case "rolling_quote_volume":
		b.RollingQuoteVolume = v
	case "price_change_percent":
		b.PriceChangePercent = v
	default:
		return fmt.Errorf("unknown feature %q", feature)
	}
	return nil
}

// BarsToCSV writes a bar dataset in wide form: one row per timestamp and a
// two-row header naming the symbol and then the feature of each column.
// Cells of symbols without a bar at a timestamp are left empty.
func BarsToCSV(ds domain.Dataset) ([]byte, error) {
	symbols := ds.Symbols()
	sort.Strings(symbols)
	col := make(map[string]int, len(symbols))
	symRow := []string{"symbol"}
	featRow := []string{"date"}
	for i, sym := range symbols {
		col[sym] = 1 + i*len(barFeatures)
		for _, f := range barFeatures {
			symRow = append(symRow, sym)
			featRow = append(featRow, f)
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(symRow); err != nil {
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}
	if err := w.Write(featRow); err != nil {
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}

	rows := make(map[int64][]string)
	for _, ts := range ds.Timestamps() {
		row := make([]string, len(featRow))
		row[0] = ts.UTC().Format(timeLayout)
		rows[ts.UnixNano()] = row
	}
	for _, b := range ds {
		row := rows[b.Time.UnixNano()]
		copy(row[col[b.Symbol]:], barValues(b))
	}
	for _, ts := range ds.Timestamps() {
		if err := w.Write(rows[ts.UnixNano()]); err != nil {
			return nil, fmt.Errorf("writing CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing CSV writer: %w", err)
	}
	return buf.Bytes(), nil
}

// BarsFromCSV parses the output of BarsToCSV. Empty cells are skipped.
func BarsFromCSV(data []byte) (domain.Dataset, error) {
	r := csv.NewReader(bytes.NewReader(data))
	symRow, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	featRow, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if len(featRow) != len(symRow) {
		return nil, fmt.Errorf("header rows differ in width: %d and %d", len(symRow), len(featRow))
	}

	var out domain.Dataset
	for line := 3; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", line, err)
		}
		ts, err := parseTime(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars := make(map[string]*domain.Bar)
		var order []string
		for c := 1; c < len(rec); c++ {
			if rec[c] == "" {
				continue
			}
			sym := symRow[c]
			b, ok := bars[sym]
			if !ok {
				b = &domain.Bar{Symbol: sym, Time: ts}
				bars[sym] = b
				order = append(order, sym)
			}
			if err := setBarValue(b, featRow[c], rec[c]); err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, c+1, err)
			}
		}
		for _, sym := range order {
			out = append(out, *bars[sym])
		}
	}
	return out, nil
}

// SnapshotsToCSV writes raw snapshot bars in long form, one row per bar.
func SnapshotsToCSV(ds domain.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := append([]string{"date", "symbol"}, barFeatures...)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}
	for _, b := range ds {
		row := append([]string{b.Time.UTC().Format(timeLayout), b.Symbol}, barValues(b)...)
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("writing CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing CSV writer: %w", err)
	}
	return buf.Bytes(), nil
}

// SnapshotsFromCSV parses the output of SnapshotsToCSV.
func SnapshotsFromCSV(data []byte) (domain.Dataset, error) {
	records, header, err := readFlat(data)
	if err != nil || header == nil {
		return nil, err
	}
	var out domain.Dataset
	for i, rec := range records {
		ts, err := parseTime(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		b := domain.Bar{Symbol: rec[1], Time: ts}
		for c := 2; c < len(rec) && c < len(header); c++ {
			if err := setBarValue(&b, header[c], rec[c]); err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", i+2, c+1, err)
			}
		}
		out = append(out, b)
	}
	return out, nil
}

var screenedHeader = []string{
	"date", "symbol", "close", "price_change_percent",
	"rolling_base_volume", "rolling_quote_volume", "count",
	"last_price_move", "last_volume_move",
}

// ScreenedToCSV writes a screened set, one row per symbol.
func ScreenedToCSV(set domain.ScreenedSet) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(screenedHeader); err != nil {
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}
	for _, s := range set {
		row := []string{
			s.Time.UTC().Format(timeLayout),
			s.Symbol,
			formatFloat(s.Close),
			formatFloat(s.PriceChangePercent),
			formatFloat(s.RollingBaseVolume),
			formatFloat(s.RollingQuoteVolume),
			strconv.FormatInt(s.Count, 10),
			formatFloat(s.LastPriceMove),
			formatFloat(s.LastVolumeMove),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("writing CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing CSV writer: %w", err)
	}
	return buf.Bytes(), nil
}

// ScreenedFromCSV parses a screened set. Columns are matched by header
// name so older logs without the move columns still load. Empty input
// yields an empty set.
func ScreenedFromCSV(data []byte) (domain.ScreenedSet, error) {
	records, header, err := readFlat(data)
	if err != nil || header == nil {
		return nil, err
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	if _, ok := idx["symbol"]; !ok {
		return nil, fmt.Errorf("missing symbol column")
	}

	out := make(domain.ScreenedSet, 0, len(records))
	for i, rec := range records {
		line := i + 2
		var row domain.ScreenedRow
		row.Symbol = rec[idx["symbol"]]
		if c, ok := idx["date"]; ok {
			ts, err := parseTime(rec[c])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			row.Time = ts
		}
		floats := []struct {
			name string
			dst  *float64
		}{
			{"close", &row.Close},
			{"price_change_percent", &row.PriceChangePercent},
			{"rolling_base_volume", &row.RollingBaseVolume},
			{"rolling_quote_volume", &row.RollingQuoteVolume},
			{"last_price_move", &row.LastPriceMove},
			{"last_volume_move", &row.LastVolumeMove},
		}
		for _, f := range floats {
			c, ok := idx[f.name]
			if !ok || rec[c] == "" {
				continue
			}
			v, err := strconv.ParseFloat(rec[c], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d %s: %w", line, f.name, err)
			}
			*f.dst = v
		}
		if c, ok := idx["count"]; ok && rec[c] != "" {
			n, err := strconv.ParseInt(rec[c], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d count: %w", line, err)
			}
			row.Count = n
		}
		out = append(out, row)
	}
	return out, nil
}

func readFlat(data []byte) ([][]string, []string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[1:], records[0], nil
}

func parseTime(s string) (time.Time, error) {
	if ts, err := time.ParseInLocation(timeLayout, s, time.UTC); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return ts.UTC(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

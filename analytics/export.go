package analytics

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ExportJSON renders all rollups for a period as indented JSON,
// sorted by key so output is stable.
func (ae *AggregationEngine) ExportJSON(period AggregationPeriod) ([]byte, error) {
	data := ae.GetAllAggregatedData(period)
	sort.Slice(data, func(i, j int) bool { return data[i].Key < data[j].Key })
	return json.MarshalIndent(data, "", "  ")
}

// ExportCSV renders all rollups for a period as CSV with a header row.
func (ae *AggregationEngine) ExportCSV(period AggregationPeriod) ([]byte, error) {
	data := ae.GetAllAggregatedData(period)
	sort.Slice(data, func(i, j int) bool { return data[i].Key < data[j].Key })

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	header := []string{"period", "key", "start_time", "end_time",
		"active_users", "points_awarded", "stamps_awarded",
		"rewards_triggered", "rewards_redeemed", "rewards_expired"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, d := range data {
		row := []string{
			string(d.Period),
			d.Key,
			d.StartTime.UTC().Format("2006-01-02T15:04:05Z"),
			d.EndTime.UTC().Format("2006-01-02T15:04:05Z"),
			strconv.Itoa(d.ActiveUsers),
			strconv.FormatInt(d.PointsAwarded, 10),
			strconv.FormatInt(d.StampsAwarded, 10),
			strconv.FormatInt(d.RewardsTriggered, 10),
			strconv.FormatInt(d.RewardsRedeemed, 10),
			strconv.FormatInt(d.RewardsExpired, 10),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// ExportToFile writes a period's rollups to disk. The format follows the
// file extension: .csv for CSV, anything else gets JSON. The write is
// atomic via a temp file rename.
func (ae *AggregationEngine) ExportToFile(period AggregationPeriod, filename string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		data, err = ae.ExportCSV(period)
	} else {
		data, err = ae.ExportJSON(period)
	}
	if err != nil {
		return err
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return os.Rename(tmp, filename)
}

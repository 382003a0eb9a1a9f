package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/vanish/internal/pipeline"
)

// formatBatchResults formats the batch processing results in the specified
// format.
func formatBatchResults(items []Item, format string) (string, error) {
	switch format {
	case "json":
		return formatJSON(items)
	case "csv":
		return formatCSV(items)
	default: // text
		return formatText(items)
	}
}

// formatJSON formats results as JSON.
func formatJSON(items []Item) (string, error) {
	type imageEntry struct {
		File     string                   `json:"file"`
		Analysis *pipeline.AnalysisResult `json:"analysis"`
		Output   string                   `json:"output,omitempty"`
		Overlay  string                   `json:"overlay,omitempty"`
		Error    string                   `json:"error,omitempty"`
	}

	batchResult := struct {
		Images []imageEntry `json:"images"`
	}{
		Images: make([]imageEntry, len(items)),
	}

	for i, item := range items {
		entry := imageEntry{
			File:     item.Path,
			Analysis: item.Analysis,
			Output:   item.OutputPath,
			Overlay:  item.OverlayPath,
		}
		if item.Err != nil {
			entry.Error = item.Err.Error()
		}
		batchResult.Images[i] = entry
	}

	bts, err := json.MarshalIndent(batchResult, "", "  ")
	return string(bts), err
}

// formatCSV formats results as CSV.
func formatCSV(items []Item) (string, error) {
	var csvData [][]string
	// Header
	csvData = append(csvData, []string{
		"file", "width", "height", "person_present", "person_count", "person_confidence",
		"regions_applied", "regions_skipped", "output", "error",
	})

	for _, item := range items {
		if item.Err != nil {
			csvData = append(csvData, []string{
				item.Path, "0", "0", "false", "0", "0.000", "0", "0", "", item.Err.Error(),
			})
			continue
		}
		res := item.Analysis
		skipped := res.Edit.SkippedDegenerate + res.Edit.SkippedNoDonor
		csvData = append(csvData, []string{
			item.Path,
			strconv.Itoa(res.Width),
			strconv.Itoa(res.Height),
			strconv.FormatBool(res.PersonPresent),
			strconv.Itoa(res.PersonCount),
			fmt.Sprintf("%.3f", res.PersonConfidence),
			strconv.Itoa(res.Edit.Applied),
			strconv.Itoa(skipped),
			item.OutputPath,
			"",
		})
	}

	var output strings.Builder
	writer := csv.NewWriter(&output)
	for _, row := range csvData {
		if err := writer.Write(row); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return output.String(), nil
}

// formatText formats results as plain text.
func formatText(items []Item) (string, error) {
	var output strings.Builder
	for i, item := range items {
		if i > 0 {
			output.WriteString("\n")
		}
		output.WriteString(fmt.Sprintf("# %s\n", item.Path))
		if item.Err != nil {
			output.WriteString(fmt.Sprintf("error: %v\n", item.Err))
			continue
		}
		res := item.Analysis
		if res == nil {
			continue
		}
		if res.PersonPresent {
			output.WriteString(fmt.Sprintf("persons: %d (confidence %.1f)\n",
				res.PersonCount, res.PersonConfidence))
		} else {
			output.WriteString("persons: none\n")
		}
		if res.PeopleRemoved {
			output.WriteString(fmt.Sprintf("regions removed: %d\n", res.Edit.Applied))
		}
		if item.OutputPath != "" {
			output.WriteString(fmt.Sprintf("output: %s\n", item.OutputPath))
		}
	}
	return output.String(), nil
}

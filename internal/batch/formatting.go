package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
)

// formatBatchResults formats the batch processing results in the specified format.
func formatBatchResults(items []Item, format string) (string, error) {
	switch format {
	case "json":
		return formatJSON(items)
	case "csv":
		return formatCSV(items)
	default: // text
		return formatText(items), nil
	}
}

type jsonItem struct {
	Item
	Error string `json:"error,omitempty"`
}

// formatJSON formats results as JSON.
func formatJSON(items []Item) (string, error) {
	batchResult := struct {
		Documents []jsonItem `json:"documents"`
	}{Documents: make([]jsonItem, len(items))}

	for i, it := range items {
		batchResult.Documents[i] = jsonItem{Item: it}
		if it.Err != nil {
			batchResult.Documents[i].Error = it.Err.Error()
		}
	}

	bts, err := json.MarshalIndent(batchResult, "", "  ")
	return string(bts), err
}

// formatCSV formats one row per extracted field.
func formatCSV(items []Item) (string, error) {
	var csvData [][]string
	csvData = append(csvData, []string{
		"file", "customer_id", "document_id", "document_type", "status", "score",
		"field", "value", "confidence", "pass", "error",
	})

	for _, it := range items {
		base := []string{it.File, it.CustomerID, "", string(it.DocumentType), "", ""}
		if it.Err != nil || it.Result == nil {
			msg := ""
			if it.Err != nil {
				msg = it.Err.Error()
			}
			csvData = append(csvData, append(base, "", "", "", "", msg))
			continue
		}
		rec := it.Result.Record
		base[2] = rec.DocumentID
		base[4] = string(rec.Status)
		base[5] = fmt.Sprintf("%.3f", rec.Score)

		results := it.Result.Analysis.Outcome.Results
		if len(results) == 0 {
			csvData = append(csvData, append(base, "", "", "", "", ""))
			continue
		}
		for _, fr := range results {
			value, conf := "", ""
			if fr.Candidate != nil {
				value = fr.Candidate.NormalizedValue
				conf = fmt.Sprintf("%.3f", fr.Candidate.Confidence)
			}
			row := append(append([]string{}, base...), string(fr.Field), value, conf, fmt.Sprint(fr.Pass), "")
			csvData = append(csvData, row)
		}
	}

	var output strings.Builder
	writer := csv.NewWriter(&output)
	if err := writer.WriteAll(csvData); err != nil {
		return "", err
	}
	return output.String(), nil
}

// formatText formats results as plain text.
func formatText(items []Item) string {
	var output strings.Builder
	for i, it := range items {
		if i > 0 {
			output.WriteString("\n")
		}
		fmt.Fprintf(&output, "# %s (%s, customer %s)\n", it.File, it.DocumentType, it.CustomerID)
		if it.Err != nil {
			fmt.Fprintf(&output, "error: %v\n", it.Err)
			continue
		}
		if it.Result == nil {
			output.WriteString("not processed\n")
			continue
		}
		rec := it.Result.Record
		fmt.Fprintf(&output, "status: %s (score %.2f)\n", rec.Status, rec.Score)
		for _, fr := range it.Result.Analysis.Outcome.Results {
			value := "<missing>"
			if fr.Candidate != nil {
				value = fr.Candidate.NormalizedValue
			}
			mark := "ok"
			if !fr.Pass {
				mark = "fail"
			}
			fmt.Fprintf(&output, "  %-16s %-30s %s\n", fr.Field, value, mark)
		}
		for _, r := range rec.Reasons {
			fmt.Fprintf(&output, "  - %s: %s\n", r.Code, r.Message)
		}
	}
	return output.String()
}

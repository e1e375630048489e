package overpass

import (
	"bytes"
	"encoding/csv"
	"encoding/json"

	"github.com/geosint/overpassmcp/pkg/geom"
	"github.com/geosint/overpassmcp/pkg/monitoring"
)

// ResultKind identifies the shape of a QueryResult. A failed query is a
// distinct kind rather than an empty success, so callers can tell
// "retry budget exhausted" apart from "zero matching elements".
type ResultKind int

const (
	// KindFailed marks a query that reached no successful response.
	KindFailed ResultKind = iota
	// KindRows holds tabular rows parsed from a CSV response.
	KindRows
	// KindRaw holds the response payload unchanged.
	KindRaw
	// KindRecords holds decoded geometry records.
	KindRecords
)

// Row is one CSV result line keyed by the header fields
type Row map[string]string

// QueryResult is the terminal outcome of one query execution. It is
// constructed fresh per execution and never mutated after return.
type QueryResult struct {
	Kind    ResultKind
	Rows    []Row
	Raw     json.RawMessage
	Records []geom.Record
	Err     error
}

// Failed reports whether the query reached no successful response
func (r QueryResult) Failed() bool {
	return r.Kind == KindFailed
}

func failedResult(err error) QueryResult {
	return QueryResult{Kind: KindFailed, Err: err}
}

// assemble shapes a successful response body into the output form the
// spec requested. The dispatch depends only on (Output, ParseGeometry),
// never on the payload content.
func (c *Client) assemble(spec QuerySpec, body []byte) QueryResult {
	switch {
	case spec.Output == OutputCSV:
		rows, err := parseRows(body)
		if err != nil {
			return failedResult(NewError(ErrParseError, "malformed CSV response: "+err.Error()))
		}
		return QueryResult{Kind: KindRows, Rows: rows}

	case spec.Output == OutputJSON && spec.ParseGeometry:
		var payload struct {
			Elements []geom.Element `json:"elements"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return failedResult(NewError(ErrParseError, "malformed JSON response: "+err.Error()))
		}
		records := c.decoder.DecodeElements(payload.Elements)
		monitoring.RecordDecode(len(records), len(payload.Elements)-len(records))
		return QueryResult{Kind: KindRecords, Records: records}

	default:
		return QueryResult{Kind: KindRaw, Raw: body}
	}
}

// parseRows reads a delimited response: the first line names the
// fields, every following line becomes a row keyed by those names.
func parseRows(body []byte) ([]Row, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1

	lines, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return []Row{}, nil
	}

	header := lines[0]
	rows := make([]Row, 0, len(lines)-1)
	for _, line := range lines[1:] {
		row := make(Row, len(header))
		for i, field := range header {
			if i < len(line) {
				row[field] = line[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

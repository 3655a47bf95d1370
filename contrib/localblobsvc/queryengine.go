package localblobsvc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/storagekit/blobcorex/blobqueryx"
)

var (
	selectRegexp = regexp.MustCompile(
		`(?is)^\s*SELECT\s+(.+?)\s+FROM\s+BlobStorage(?:\s+WHERE\s+(.+?))?\s*;?\s*$`)
	predicateRegexp = regexp.MustCompile(
		`(?s)^\s*([A-Za-z_][A-Za-z0-9_]*)\s*(<=|>=|<>|!=|=|<|>)\s*(.+?)\s*$`)
	positionalColumnRegexp = regexp.MustCompile(`^_([1-9][0-9]*)$`)
)

func invalidExpression(message string) *serviceError {
	return &serviceError{
		StatusCode: http.StatusBadRequest,
		Code:       "InvalidQueryExpression",
		Message:    message,
	}
}

type predicate struct {
	column  string
	op      string
	literal string
	number  float64
	numeric bool
}

func (p *predicate) compare(cmp int) bool {
	switch p.op {
	case "=":
		return cmp == 0
	case "<>", "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

type queryPlan struct {
	// columns is nil for SELECT *
	columns []string
	where   *predicate
}

func parseQueryExpression(expr string) (*queryPlan, *serviceError) {
	m := selectRegexp.FindStringSubmatch(expr)
	if m == nil {
		return nil, invalidExpression("Only SELECT ... FROM BlobStorage [WHERE ...] expressions are supported.")
	}

	plan := &queryPlan{}

	if projection := strings.TrimSpace(m[1]); projection != "*" {
		for _, column := range strings.Split(projection, ",") {
			column = strings.TrimSpace(column)
			if column == "" {
				return nil, invalidExpression("Empty column in projection.")
			}
			plan.columns = append(plan.columns, column)
		}
	}

	if m[2] != "" {
		pm := predicateRegexp.FindStringSubmatch(m[2])
		if pm == nil {
			return nil, invalidExpression("Unsupported WHERE clause: " + m[2])
		}

		where := &predicate{
			column: pm[1],
			op:     pm[2],
		}

		literal := pm[3]
		if len(literal) >= 2 && literal[0] == '\'' && literal[len(literal)-1] == '\'' {
			where.literal = literal[1 : len(literal)-1]
		} else {
			number, err := strconv.ParseFloat(literal, 64)
			if err != nil {
				return nil, invalidExpression("Unsupported literal: " + literal)
			}
			where.literal = literal
			where.number = number
			where.numeric = true
		}

		plan.where = where
	}

	return plan, nil
}

type textFormat struct {
	json bool

	columnSeparator byte
	fieldQuote      byte
	escapeChar      byte
	recordSeparator byte
	hasHeaders      bool
}

var defaultTextFormat = textFormat{
	columnSeparator: ',',
	fieldQuote:      '"',
	recordSeparator: '\n',
}

func firstByte(value string, fallback byte) byte {
	if value == "" {
		return fallback
	}
	return value[0]
}

func parseTextFormat(serialization *blobqueryx.QuerySerializationXml, fallback textFormat) (textFormat, *serviceError) {
	if serialization == nil {
		return fallback, nil
	}

	format := serialization.Format
	switch strings.ToLower(format.Type) {
	case "delimited":
		tf := defaultTextFormat
		if cfg := format.DelimitedTextConfiguration; cfg != nil {
			tf.columnSeparator = firstByte(cfg.ColumnSeparator, tf.columnSeparator)
			tf.fieldQuote = firstByte(cfg.FieldQuote, tf.fieldQuote)
			tf.recordSeparator = firstByte(cfg.RecordSeparator, tf.recordSeparator)
			tf.escapeChar = firstByte(cfg.EscapeChar, 0)
			tf.hasHeaders = cfg.HeadersPresent
		}
		return tf, nil

	case "json":
		tf := textFormat{json: true, recordSeparator: '\n'}
		if cfg := format.JsonTextConfiguration; cfg != nil {
			tf.recordSeparator = firstByte(cfg.RecordSeparator, tf.recordSeparator)
		}
		return tf, nil
	}

	return textFormat{}, &serviceError{
		StatusCode: http.StatusBadRequest,
		Code:       "InvalidInput",
		Message:    "Unsupported serialization type: " + format.Type,
	}
}

// splitFields splits a delimited record into its fields, honouring quoting
// and escaping.
func splitFields(record []byte, tf *textFormat) []string {
	var fields []string
	var field []byte
	inQuotes := false

	for i := 0; i < len(record); i++ {
		c := record[i]

		switch {
		case tf.escapeChar != 0 && c == tf.escapeChar && i+1 < len(record):
			i++
			field = append(field, record[i])
		case tf.fieldQuote != 0 && c == tf.fieldQuote:
			if inQuotes && i+1 < len(record) && record[i+1] == tf.fieldQuote {
				field = append(field, c)
				i++
			} else {
				inQuotes = !inQuotes
			}
		case c == tf.columnSeparator && !inQuotes:
			fields = append(fields, string(field))
			field = field[:0]
		default:
			field = append(field, c)
		}
	}

	return append(fields, string(field))
}

// nextRecordEnd returns the offset just past the record separator ending the
// record which starts at start, honouring quoted separators in delimited
// text.
func nextRecordEnd(data []byte, start int, tf *textFormat) int {
	if tf.json || tf.fieldQuote == 0 || bytes.IndexByte(data[start:], tf.fieldQuote) < 0 {
		idx := bytes.IndexByte(data[start:], tf.recordSeparator)
		if idx < 0 {
			return len(data)
		}
		return start + idx + 1
	}

	inQuotes := false
	for i := start; i < len(data); i++ {
		c := data[i]
		switch {
		case tf.escapeChar != 0 && c == tf.escapeChar:
			i++
		case c == tf.fieldQuote:
			inQuotes = !inQuotes
		case c == tf.recordSeparator && !inQuotes:
			return i + 1
		}
	}
	return len(data)
}

type queryField struct {
	name  string
	value string
	// raw JSON encoding of the value, when the input was JSON
	raw json.RawMessage
}

type queryEngine struct {
	plan   *queryPlan
	input  textFormat
	output textFormat

	headers    []string
	headerSeen bool
}

type recordResult struct {
	output   []byte
	queryErr *blobqueryx.QueryError
}

func (e *queryEngine) resolveColumn(name string) (int, bool) {
	if m := positionalColumnRegexp.FindStringSubmatch(name); m != nil {
		idx, _ := strconv.Atoi(m[1])
		return idx - 1, true
	}

	for idx, header := range e.headers {
		if strings.EqualFold(header, name) {
			return idx, true
		}
	}

	return 0, false
}

func (e *queryEngine) validate() *serviceError {
	if e.input.json {
		return nil
	}

	columns := e.plan.columns
	if e.plan.where != nil {
		columns = append(columns[:len(columns):len(columns)], e.plan.where.column)
	}

	for _, column := range columns {
		if positionalColumnRegexp.MatchString(column) {
			continue
		}
		if !e.input.hasHeaders {
			return invalidExpression("Unknown column " + column + ", only positional columns are available without headers.")
		}
	}

	return nil
}

// processRecord evaluates one record.  record excludes the separator and
// offset is its position in the blob.
func (e *queryEngine) processRecord(record []byte, offset int) recordResult {
	if len(bytes.TrimSpace(record)) == 0 {
		return recordResult{}
	}

	if e.input.json {
		return e.processJsonRecord(record, offset)
	}

	values := splitFields(record, &e.input)
	if e.input.hasHeaders && !e.headerSeen {
		e.headerSeen = true
		e.headers = values
		return recordResult{}
	}

	if where := e.plan.where; where != nil {
		idx, ok := e.resolveColumn(where.column)
		if !ok || idx >= len(values) {
			return recordResult{}
		}

		matched, queryErr := e.evaluate(where, values[idx], offset)
		if queryErr != nil || !matched {
			return recordResult{queryErr: queryErr}
		}
	}

	if e.plan.columns == nil && !e.output.json && e.output == e.input {
		out := make([]byte, 0, len(record)+1)
		out = append(out, record...)
		return recordResult{output: append(out, e.output.recordSeparator)}
	}

	var fields []queryField
	if e.plan.columns == nil {
		for idx, value := range values {
			fields = append(fields, queryField{name: e.columnName(idx, idx), value: value})
		}
	} else {
		for projIdx, column := range e.plan.columns {
			field := queryField{name: e.columnName(-1, projIdx)}
			if idx, ok := e.resolveColumn(column); ok && idx < len(values) {
				field.value = values[idx]
				if !positionalColumnRegexp.MatchString(column) {
					field.name = column
				}
			}
			fields = append(fields, field)
		}
	}

	return recordResult{output: e.formatRecord(fields)}
}

// columnName names an output field.  Input header names win, anything else is
// numbered by its position in the output.
func (e *queryEngine) columnName(inputIdx, outputIdx int) string {
	if inputIdx >= 0 && inputIdx < len(e.headers) {
		return e.headers[inputIdx]
	}
	return "_" + strconv.Itoa(outputIdx+1)
}

func (e *queryEngine) evaluate(where *predicate, value string, offset int) (bool, *blobqueryx.QueryError) {
	if !where.numeric {
		return where.compare(strings.Compare(value, where.literal)), nil
	}

	number, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return false, &blobqueryx.QueryError{
			IsFatal:     false,
			Name:        "InvalidTypeConversion",
			Description: "Invalid type conversion.",
			Position:    uint64(offset),
		}
	}

	switch {
	case number < where.number:
		return where.compare(-1), nil
	case number > where.number:
		return where.compare(1), nil
	}
	return where.compare(0), nil
}

func (e *queryEngine) processJsonRecord(record []byte, offset int) recordResult {
	dec := json.NewDecoder(bytes.NewReader(record))
	dec.UseNumber()

	tok, err := dec.Token()
	if delim, ok := tok.(json.Delim); err != nil || !ok || (delim != '{' && delim != '[') {
		return recordResult{queryErr: jsonParseError(record, dec, err, offset)}
	}

	var object map[string]json.RawMessage
	err = json.Unmarshal(record, &object)
	if err != nil {
		return recordResult{queryErr: &blobqueryx.QueryError{
			IsFatal:     true,
			Name:        "ParseError",
			Description: err.Error(),
			Position:    uint64(offset),
		}}
	}

	if where := e.plan.where; where != nil {
		raw, ok := object[where.column]
		if !ok {
			return recordResult{}
		}

		matched, queryErr := e.evaluate(where, jsonScalarString(raw), offset)
		if queryErr != nil || !matched {
			return recordResult{queryErr: queryErr}
		}
	}

	if e.plan.columns == nil && e.output.json {
		out := make([]byte, 0, len(record)+1)
		out = append(out, bytes.TrimSpace(record)...)
		return recordResult{output: append(out, e.output.recordSeparator)}
	}

	var fields []queryField
	if e.plan.columns == nil {
		for _, key := range jsonObjectKeys(record) {
			raw := object[key]
			fields = append(fields, queryField{name: key, value: jsonScalarString(raw), raw: raw})
		}
	} else {
		for _, column := range e.plan.columns {
			raw := object[column]
			fields = append(fields, queryField{name: column, value: jsonScalarString(raw), raw: raw})
		}
	}

	return recordResult{output: e.formatRecord(fields)}
}

// jsonParseError describes the first token of record which cannot start a
// JSON document.
func jsonParseError(record []byte, dec *json.Decoder, tokErr error, offset int) *blobqueryx.QueryError {
	pos := 0
	if tokErr == nil {
		pos = int(dec.InputOffset())
	}
	for pos < len(record) && (record[pos] == ' ' || record[pos] == '\t' || record[pos] == '\r') {
		pos++
	}

	token := "EOF"
	if pos < len(record) {
		token = string(record[pos])
	}

	return &blobqueryx.QueryError{
		IsFatal:     true,
		Name:        "ParseError",
		Description: fmt.Sprintf("Unexpected token '%s' at [byte: %d]. Expecting tokens '{', or '['.", token, offset+pos),
		Position:    uint64(offset),
	}
}

func jsonScalarString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// jsonObjectKeys returns the top level keys of a JSON object in document
// order.
func jsonObjectKeys(record []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(record))
	if _, err := dec.Token(); err != nil {
		return nil
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}

		key, ok := tok.(string)
		if !ok {
			return keys
		}
		keys = append(keys, key)

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return keys
		}
	}
	return keys
}

func (e *queryEngine) formatRecord(fields []queryField) []byte {
	var buf bytes.Buffer

	if e.output.json {
		buf.WriteByte('{')
		for idx, field := range fields {
			if idx > 0 {
				buf.WriteByte(',')
			}
			name, _ := json.Marshal(field.name)
			buf.Write(name)
			buf.WriteByte(':')
			if field.raw != nil {
				buf.Write(field.raw)
			} else {
				value, _ := json.Marshal(field.value)
				buf.Write(value)
			}
		}
		buf.WriteByte('}')
		buf.WriteByte(e.output.recordSeparator)
		return buf.Bytes()
	}

	for idx, field := range fields {
		if idx > 0 {
			buf.WriteByte(e.output.columnSeparator)
		}
		buf.WriteString(e.quoteField(field.value))
	}
	buf.WriteByte(e.output.recordSeparator)
	return buf.Bytes()
}

func (e *queryEngine) quoteField(value string) string {
	tf := &e.output
	if tf.fieldQuote == 0 || !strings.ContainsAny(value, string([]byte{tf.columnSeparator, tf.recordSeparator, tf.fieldQuote})) {
		return value
	}

	quote := string(tf.fieldQuote)
	return quote + strings.ReplaceAll(value, quote, quote+quote) + quote
}

// queryRunOptions controls how results are batched into frames.
type queryRunOptions struct {
	ProgressInterval int
	MaxDataFrameLen  int
}

// run evaluates the query over data, emitting frames as it goes.  The blob is
// processed in chunks of about ProgressInterval bytes, rounded up to a record
// boundary, each followed by a progress frame.  A fatal query error stops the
// run without an end frame.
func (e *queryEngine) run(data []byte, w *blobqueryx.FrameWriter, flush func(), opts *queryRunOptions) error {
	var pending []byte

	flushData := func() error {
		for len(pending) > 0 {
			n := len(pending)
			if n > opts.MaxDataFrameLen {
				n = opts.MaxDataFrameLen
			}

			err := w.WriteFrame(&blobqueryx.Frame{
				Type: blobqueryx.FrameTypeData,
				Data: pending[:n],
			})
			if err != nil {
				return err
			}
			pending = pending[n:]
		}
		pending = nil
		return nil
	}

	total := uint64(len(data))
	chunkStart := 0
	for chunkStart < len(data) {
		chunkEnd := chunkStart + opts.ProgressInterval
		if chunkEnd > len(data) {
			chunkEnd = len(data)
		}

		recordStart := chunkStart
		for recordStart < chunkEnd {
			recordEnd := nextRecordEnd(data, recordStart, &e.input)

			record := data[recordStart:recordEnd]
			if recordEnd > recordStart && data[recordEnd-1] == e.input.recordSeparator {
				record = record[:len(record)-1]
			}

			result := e.processRecord(record, recordStart)
			pending = append(pending, result.output...)

			if result.queryErr != nil {
				err := flushData()
				if err != nil {
					return err
				}

				err = w.WriteFrame(&blobqueryx.Frame{
					Type:  blobqueryx.FrameTypeError,
					Error: *result.queryErr,
				})
				if err != nil {
					return err
				}

				if result.queryErr.IsFatal {
					flush()
					return nil
				}
			}

			recordStart = recordEnd
		}
		chunkEnd = recordStart

		err := flushData()
		if err != nil {
			return err
		}

		err = w.WriteFrame(&blobqueryx.Frame{
			Type:         blobqueryx.FrameTypeProgress,
			BytesScanned: uint64(chunkEnd),
			TotalBytes:   total,
		})
		if err != nil {
			return err
		}
		flush()

		chunkStart = chunkEnd
	}

	err := w.WriteFrame(&blobqueryx.Frame{
		Type:       blobqueryx.FrameTypeEnd,
		TotalBytes: total,
	})
	if err != nil {
		return err
	}
	flush()

	return nil
}

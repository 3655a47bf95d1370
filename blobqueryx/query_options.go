package blobqueryx

import (
	"encoding/xml"
	"net/url"
	"strings"
	"time"

	querystring "github.com/google/go-querystring/query"
	"github.com/storagekit/blobcorex/blobhttpx"
)

type RequestConditions = blobhttpx.RequestConditions

// TextConfiguration describes how records are laid out in the blob or in the
// query output.  It is implemented by *CsvTextConfiguration and
// *JsonTextConfiguration.
type TextConfiguration interface {
	encodeToXml() *QueryFormatXml
	validate() error
}

type CsvTextConfiguration struct {
	ColumnSeparator rune
	FieldQuote      rune
	EscapeCharacter rune
	RecordSeparator rune
	HasHeaders      bool
}

func runeString(r rune) string {
	if r == 0 {
		return ""
	}
	return string(r)
}

func (c *CsvTextConfiguration) encodeToXml() *QueryFormatXml {
	if c == nil {
		c = &CsvTextConfiguration{}
	}

	return &QueryFormatXml{
		Type: "delimited",
		DelimitedTextConfiguration: &DelimitedTextConfigurationXml{
			ColumnSeparator: runeString(c.ColumnSeparator),
			FieldQuote:      runeString(c.FieldQuote),
			RecordSeparator: runeString(c.RecordSeparator),
			EscapeChar:      runeString(c.EscapeCharacter),
			HeadersPresent:  c.HasHeaders,
		},
	}
}

func (c *CsvTextConfiguration) validate() error {
	if c == nil {
		return &InvalidArgumentError{Message: "csv text configuration must not be nil"}
	}

	chars := []struct {
		name  string
		value rune
	}{
		{"column separator", c.ColumnSeparator},
		{"field quote", c.FieldQuote},
		{"escape character", c.EscapeCharacter},
		{"record separator", c.RecordSeparator},
	}

	for i := range chars {
		for j := i + 1; j < len(chars); j++ {
			if chars[i].value != 0 && chars[i].value == chars[j].value {
				return &InvalidArgumentError{
					Message: "csv " + chars[i].name + " and " + chars[j].name + " must differ",
				}
			}
		}
	}

	return nil
}

type JsonTextConfiguration struct {
	RecordSeparator rune
}

func (c *JsonTextConfiguration) encodeToXml() *QueryFormatXml {
	if c == nil {
		c = &JsonTextConfiguration{}
	}

	return &QueryFormatXml{
		Type: "json",
		JsonTextConfiguration: &JsonTextConfigurationXml{
			RecordSeparator: runeString(c.RecordSeparator),
		},
	}
}

func (c *JsonTextConfiguration) validate() error {
	if c == nil {
		return &InvalidArgumentError{Message: "json text configuration must not be nil"}
	}

	return nil
}

type QueryOptions struct {
	ContainerName string
	BlobName      string
	Snapshot      string
	VersionID     string

	Expression              string
	InputTextConfiguration  TextConfiguration
	OutputTextConfiguration TextConfiguration
	Conditions              *RequestConditions

	ProgressReceiver ProgressReceiver
	ErrorReceiver    ErrorReceiver

	ClientRequestID string
	ServerTimeout   time.Duration
}

func (o *QueryOptions) Validate() error {
	if o.ContainerName == "" {
		return &InvalidArgumentError{Message: "container name must be specified"}
	}

	if o.BlobName == "" {
		return &InvalidArgumentError{Message: "blob name must be specified"}
	}

	if strings.TrimSpace(o.Expression) == "" {
		return &InvalidArgumentError{Message: "query expression must be specified"}
	}

	if o.Snapshot != "" && o.VersionID != "" {
		return &InvalidArgumentError{Message: "snapshot and version id cannot both be specified"}
	}

	if o.ServerTimeout < 0 {
		return &InvalidArgumentError{Message: "server timeout cannot be negative"}
	}

	if o.InputTextConfiguration != nil {
		err := o.InputTextConfiguration.validate()
		if err != nil {
			return err
		}
	}

	if o.OutputTextConfiguration != nil {
		err := o.OutputTextConfiguration.validate()
		if err != nil {
			return err
		}
	}

	return nil
}

type queryParams struct {
	Comp      string `url:"comp"`
	Snapshot  string `url:"snapshot,omitempty"`
	VersionID string `url:"versionid,omitempty"`
	Timeout   int    `url:"timeout,omitempty"`
}

func (o *QueryOptions) encodeQueryParams() (url.Values, error) {
	return querystring.Values(queryParams{
		Comp:      "query",
		Snapshot:  o.Snapshot,
		VersionID: o.VersionID,
		Timeout:   int(o.ServerTimeout / time.Second),
	})
}

func (o *QueryOptions) encodeToXml() ([]byte, error) {
	req := QueryRequestXml{
		QueryType:  "SQL",
		Expression: o.Expression,
	}

	if o.InputTextConfiguration != nil {
		req.InputSerialization = &QuerySerializationXml{
			Format: *o.InputTextConfiguration.encodeToXml(),
		}
	}

	if o.OutputTextConfiguration != nil {
		req.OutputSerialization = &QuerySerializationXml{
			Format: *o.OutputTextConfiguration.encodeToXml(),
		}
	}

	body, err := xml.Marshal(req)
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), body...), nil
}

package blobqueryx

import "encoding/xml"

type QueryRequestXml struct {
	XMLName             xml.Name               `xml:"QueryRequest"`
	QueryType           string                 `xml:"QueryType"`
	Expression          string                 `xml:"Expression"`
	InputSerialization  *QuerySerializationXml `xml:"InputSerialization,omitempty"`
	OutputSerialization *QuerySerializationXml `xml:"OutputSerialization,omitempty"`
}

type QuerySerializationXml struct {
	Format QueryFormatXml `xml:"Format"`
}

type QueryFormatXml struct {
	Type                       string                         `xml:"Type"`
	DelimitedTextConfiguration *DelimitedTextConfigurationXml `xml:"DelimitedTextConfiguration,omitempty"`
	JsonTextConfiguration      *JsonTextConfigurationXml      `xml:"JsonTextConfiguration,omitempty"`
}

type DelimitedTextConfigurationXml struct {
	ColumnSeparator string `xml:"ColumnSeparator,omitempty"`
	FieldQuote      string `xml:"FieldQuote,omitempty"`
	RecordSeparator string `xml:"RecordSeparator,omitempty"`
	EscapeChar      string `xml:"EscapeChar,omitempty"`
	HeadersPresent  bool   `xml:"HasHeaders"`
}

type JsonTextConfigurationXml struct {
	RecordSeparator string `xml:"RecordSeparator,omitempty"`
}

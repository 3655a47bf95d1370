package blobqueryx

import (
	"encoding/json"
	"strings"
)

type FrameType int

const (
	FrameTypeData FrameType = iota
	FrameTypeProgress
	FrameTypeError
	FrameTypeEnd
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeData:
		return "data"
	case FrameTypeProgress:
		return "progress"
	case FrameTypeError:
		return "error"
	case FrameTypeEnd:
		return "end"
	}
	return "unknown"
}

// Frame is a single record of a quick query response.  Which fields are
// meaningful depends on Type.
type Frame struct {
	Type FrameType

	// Data is set for FrameTypeData.
	Data []byte

	// BytesScanned is set for FrameTypeProgress.
	BytesScanned uint64

	// TotalBytes is set for FrameTypeProgress and FrameTypeEnd.
	TotalBytes uint64

	// Error is set for FrameTypeError.
	Error QueryError
}

const frameSchemaNamespace = "com.microsoft.azure.storage.queryBlobContents"

// FrameSchema is the record schema the service embeds in query responses.
const FrameSchema = `[` +
	`{"type":"record","name":"com.microsoft.azure.storage.queryBlobContents.resultData",` +
	`"fields":[{"name":"data","type":"bytes"}]},` +
	`{"type":"record","name":"com.microsoft.azure.storage.queryBlobContents.error",` +
	`"fields":[{"name":"fatal","type":"boolean"},{"name":"name","type":"string"},` +
	`{"name":"description","type":"string"},{"name":"position","type":"long"}]},` +
	`{"type":"record","name":"com.microsoft.azure.storage.queryBlobContents.progress",` +
	`"fields":[{"name":"bytesScanned","type":"long"},{"name":"totalBytes","type":"long"}]},` +
	`{"type":"record","name":"com.microsoft.azure.storage.queryBlobContents.end",` +
	`"fields":[{"name":"totalBytes","type":"long"}]}` +
	`]`

type frameSchemaRecordJson struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

// parseFrameSchema maps each union branch of the schema to the frame type it
// carries.  Branches are matched by record name rather than position.
func parseFrameSchema(schema []byte) ([]FrameType, error) {
	var records []frameSchemaRecordJson
	err := json.Unmarshal(schema, &records)
	if err != nil {
		return nil, &DecodeError{Message: "invalid response schema", Cause: err}
	}

	if len(records) == 0 {
		return nil, &DecodeError{Message: "response schema has no records"}
	}

	branches := make([]FrameType, len(records))
	for recordIdx, record := range records {
		if record.Type != "record" {
			return nil, &DecodeError{Message: "response schema branch is not a record: " + record.Type}
		}

		namespace := record.Namespace
		name := record.Name
		if dotIdx := strings.LastIndexByte(name, '.'); dotIdx >= 0 {
			namespace = name[:dotIdx]
			name = name[dotIdx+1:]
		}

		if namespace != "" && namespace != frameSchemaNamespace {
			return nil, &DecodeError{Message: "unexpected response schema namespace: " + namespace}
		}

		switch name {
		case "resultData":
			branches[recordIdx] = FrameTypeData
		case "progress":
			branches[recordIdx] = FrameTypeProgress
		case "error":
			branches[recordIdx] = FrameTypeError
		case "end":
			branches[recordIdx] = FrameTypeEnd
		default:
			return nil, &DecodeError{Message: "unexpected response schema record: " + record.Name}
		}
	}

	return branches, nil
}

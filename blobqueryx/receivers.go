package blobqueryx

// QueryError describes an error the service hit while executing a query.
// Non-fatal errors mean a record was skipped, fatal ones end the query.
type QueryError struct {
	IsFatal     bool
	Name        string
	Description string
	Position    uint64
}

// ProgressReceiver is told the cumulative number of bytes of the blob which
// the service has scanned so far.
type ProgressReceiver interface {
	OnProgress(bytesScanned uint64)
}

// ErrorReceiver is told about every error record of the response, in order,
// before any later data is made available.
type ErrorReceiver interface {
	OnError(err QueryError)
}

type ProgressReceiverFunc func(bytesScanned uint64)

func (f ProgressReceiverFunc) OnProgress(bytesScanned uint64) {
	f(bytesScanned)
}

type ErrorReceiverFunc func(err QueryError)

func (f ErrorReceiverFunc) OnError(err QueryError) {
	f(err)
}

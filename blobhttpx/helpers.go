package blobhttpx

import (
	"encoding/xml"
	"io"
	"net/http"
)

type serviceErrorXml struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

// DecodeServiceError consumes and closes the body of a non-success response
// and returns the matching *RequestFailedError.
func DecodeServiceError(resp *http.Response) *RequestFailedError {
	errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	_ = resp.Body.Close()

	errorCode := resp.Header.Get("x-ms-error-code")

	var errJson serviceErrorXml
	var message string
	if len(errBody) > 0 && xml.Unmarshal(errBody, &errJson) == nil {
		if errorCode == "" {
			errorCode = errJson.Code
		}
		message = errJson.Message
	}

	// the service answers failed read conditions with a bare 304
	if errorCode == "" && resp.StatusCode == 304 {
		errorCode = "ConditionNotMet"
	}

	return &RequestFailedError{
		Cause:      errorFromCode(resp.StatusCode, errorCode),
		StatusCode: resp.StatusCode,
		ErrorCode:  errorCode,
		Message:    message,
		RequestID:  resp.Header.Get("x-ms-request-id"),
	}
}

// EncodeServiceError writes an error response in the service's format.
func EncodeServiceError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	body, _ := xml.Marshal(serviceErrorXml{
		Code:    errorCode,
		Message: message,
	})

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("x-ms-error-code", errorCode)
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
}

func DiscardAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64*1024))
	_ = r.Close()
}

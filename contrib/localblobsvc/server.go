// Package localblobsvc implements an in-memory blob service speaking enough
// of the storage REST protocol to stage blobs and run quick queries against
// them.  It backs the tests and the serve command.
package localblobsvc

import (
	"encoding/xml"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/storagekit/blobcorex/blobhttpx"
	"github.com/storagekit/blobcorex/blobqueryx"
	"github.com/storagekit/blobcorex/zaputils"
	"go.uber.org/zap"
)

const (
	DefaultProgressInterval = 4 * 1024 * 1024
	DefaultMaxDataFrameLen  = 1024 * 1024

	maxUploadLen = 256 * 1024 * 1024
)

type ServerOptions struct {
	Logger *zap.Logger
	Store  *Store

	// ProgressInterval is roughly how many bytes of a blob are scanned between
	// progress frames.
	ProgressInterval int
	MaxDataFrameLen  int

	// Codec and Schema are passed to the frame writer of query responses.
	Codec  string
	Schema string

	// SasSignature, when set, must be presented as the sig query parameter of
	// every request.
	SasSignature string
}

type Server struct {
	logger           *zap.Logger
	store            *Store
	progressInterval int
	maxDataFrameLen  int
	codec            string
	schema           string
	sasSignature     string
}

var _ http.Handler = (*Server)(nil)

func NewServer(opts *ServerOptions) *Server {
	if opts == nil {
		opts = &ServerOptions{}
	}

	s := &Server{
		logger:           opts.Logger,
		store:            opts.Store,
		progressInterval: opts.ProgressInterval,
		maxDataFrameLen:  opts.MaxDataFrameLen,
		codec:            opts.Codec,
		schema:           opts.Schema,
		sasSignature:     opts.SasSignature,
	}

	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.store == nil {
		s.store = NewStore()
	}
	if s.progressInterval <= 0 {
		s.progressInterval = DefaultProgressInterval
	}
	if s.maxDataFrameLen <= 0 {
		s.maxDataFrameLen = DefaultMaxDataFrameLen
	}

	return s
}

func (s *Server) Store() *Store {
	return s.store
}

func splitPath(path string) (string, string) {
	path = strings.TrimPrefix(path, "/")
	container, blob, _ := strings.Cut(path, "/")
	return container, blob
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var svcErr *serviceError
	if !errors.As(err, &svcErr) {
		s.logger.Warn("internal error handling request", zap.Error(err))
		svcErr = &serviceError{
			StatusCode: http.StatusInternalServerError,
			Code:       "InternalError",
			Message:    "The server encountered an internal error.",
		}
	}

	blobhttpx.EncodeServiceError(w, svcErr.StatusCode, svcErr.Code, svcErr.Message)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("x-ms-request-id", uuid.NewString())
	w.Header().Set("x-ms-version", blobhttpx.ServiceVersion)
	if clientRequestID := r.Header.Get("x-ms-client-request-id"); clientRequestID != "" {
		w.Header().Set("x-ms-client-request-id", clientRequestID)
	}

	query := r.URL.Query()

	s.logger.Debug("handling request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("comp", query.Get("comp")))

	if s.sasSignature != "" && query.Get("sig") != s.sasSignature {
		s.writeError(w, &serviceError{
			StatusCode: http.StatusForbidden,
			Code:       "AuthenticationFailed",
			Message:    "Server failed to authenticate the request.",
		})
		return
	}

	container, blob := splitPath(r.URL.Path)
	if container == "" {
		s.writeError(w, &serviceError{http.StatusBadRequest, "InvalidUri", "The requested URI does not represent any resource on the server."})
		return
	}

	if blob == "" {
		if query.Get("restype") != "container" {
			s.writeError(w, &serviceError{http.StatusBadRequest, "InvalidQueryParameterValue", "restype must be container."})
			return
		}

		switch r.Method {
		case http.MethodPut:
			s.handleCreateContainer(w, container)
		case http.MethodDelete:
			s.handleDeleteContainer(w, container)
		default:
			s.writeError(w, &serviceError{http.StatusMethodNotAllowed, "UnsupportedHttpVerb", "The resource doesn't support the specified HTTP verb."})
		}
		return
	}

	switch {
	case r.Method == http.MethodPost && query.Get("comp") == "query":
		s.handleQuery(w, r, container, blob)
	case r.Method == http.MethodPut && query.Get("comp") == "snapshot":
		s.handleSnapshot(w, container, blob)
	case r.Method == http.MethodPut && query.Get("comp") == "lease":
		s.handleLease(w, r, container, blob)
	case r.Method == http.MethodPut && query.Get("comp") == "":
		s.handlePutBlob(w, r, container, blob)
	case r.Method == http.MethodGet && query.Get("comp") == "":
		s.handleGetBlob(w, r, container, blob, true)
	case r.Method == http.MethodHead:
		s.handleGetBlob(w, r, container, blob, false)
	case r.Method == http.MethodDelete:
		s.handleDeleteBlob(w, container, blob)
	default:
		s.writeError(w, &serviceError{http.StatusBadRequest, "UnsupportedQueryParameter", "The operation is not supported."})
	}
}

func (s *Server) handleCreateContainer(w http.ResponseWriter, container string) {
	err := s.store.CreateContainer(container)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDeleteContainer(w http.ResponseWriter, container string) {
	err := s.store.DeleteContainer(container)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func writePropertyHeaders(w http.ResponseWriter, props *BlobProperties) {
	h := w.Header()
	h.Set("ETag", props.ETag)
	h.Set("Last-Modified", props.LastModified.Format(http.TimeFormat))
	h.Set("x-ms-blob-type", "BlockBlob")
	h.Set("x-ms-lease-state", props.LeaseState)
	h.Set("x-ms-lease-status", props.LeaseStatus)
	if props.LeaseDuration != "" {
		h.Set("x-ms-lease-duration", props.LeaseDuration)
	}
	h.Set("x-ms-server-encrypted", "true")
	h.Set("x-ms-tag-count", strconv.Itoa(len(props.Tags)))
}

func (s *Server) handlePutBlob(w http.ResponseWriter, r *http.Request, container, blob string) {
	if blobType := r.Header.Get("x-ms-blob-type"); blobType != "BlockBlob" {
		s.writeError(w, &serviceError{http.StatusBadRequest, "InvalidHeaderValue", "Only BlockBlob uploads are supported."})
		return
	}

	tags, err := parseTags(r.Header.Get("x-ms-tags"))
	if err != nil {
		s.writeError(w, &serviceError{http.StatusBadRequest, "InvalidTag", "The tags specified are invalid."})
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadLen+1))
	if err != nil {
		s.writeError(w, errors.Wrap(err, "reading upload body"))
		return
	}
	if len(data) > maxUploadLen {
		s.writeError(w, &serviceError{http.StatusRequestEntityTooLarge, "RequestBodyTooLarge", "The request body is too large."})
		return
	}

	props, err := s.store.PutBlob(container, blob, data, r.Header.Get("x-ms-blob-content-type"), tags,
		func(current *BlobView) error {
			if svcErr := checkWriteConditions(r, current); svcErr != nil {
				return svcErr
			}
			return nil
		})
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("ETag", props.ETag)
	w.Header().Set("Last-Modified", props.LastModified.Format(http.TimeFormat))
	w.Header().Set("x-ms-request-server-encrypted", "true")
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request, container, blob string, withBody bool) {
	view, err := s.store.GetBlob(container, blob, r.URL.Query().Get("snapshot"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	if svcErr := checkConditions(r, view); svcErr != nil {
		s.writeError(w, svcErr)
		return
	}

	writePropertyHeaders(w, view.Properties)
	w.Header().Set("Content-Type", view.Properties.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(view.Data)))
	w.WriteHeader(http.StatusOK)

	if withBody {
		_, _ = w.Write(view.Data)
	}
}

func (s *Server) handleDeleteBlob(w http.ResponseWriter, container, blob string) {
	err := s.store.DeleteBlob(container, blob)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, container, blob string) {
	snapshot, props, err := s.store.CreateSnapshot(container, blob)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("x-ms-snapshot", snapshot)
	w.Header().Set("ETag", props.ETag)
	w.Header().Set("Last-Modified", props.LastModified.Format(http.TimeFormat))
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleLease(w http.ResponseWriter, r *http.Request, container, blob string) {
	switch action := r.Header.Get("x-ms-lease-action"); action {
	case "acquire":
		duration, err := strconv.Atoi(r.Header.Get("x-ms-lease-duration"))
		if err != nil {
			s.writeError(w, errInvalidLeaseDur)
			return
		}

		leaseID, err := s.store.AcquireLease(container, blob, r.Header.Get("x-ms-proposed-lease-id"), duration)
		if err != nil {
			s.writeError(w, err)
			return
		}

		w.Header().Set("x-ms-lease-id", leaseID)
		w.WriteHeader(http.StatusCreated)

	case "release":
		err := s.store.ReleaseLease(container, blob, r.Header.Get("x-ms-lease-id"))
		if err != nil {
			s.writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusOK)

	default:
		s.writeError(w, &serviceError{http.StatusBadRequest, "InvalidHeaderValue", "Unsupported lease action: " + action})
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, container, blob string) {
	reqBody, err := io.ReadAll(io.LimitReader(r.Body, 1024*1024))
	if err != nil {
		s.writeError(w, errors.Wrap(err, "reading query request body"))
		return
	}

	var req blobqueryx.QueryRequestXml
	err = xml.Unmarshal(reqBody, &req)
	if err != nil {
		s.writeError(w, &serviceError{http.StatusBadRequest, "InvalidXmlDocument", "XML specified is not syntactically valid."})
		return
	}

	if !strings.EqualFold(req.QueryType, "SQL") {
		s.writeError(w, &serviceError{http.StatusBadRequest, "InvalidQueryText", "QueryType must be SQL."})
		return
	}

	plan, svcErr := parseQueryExpression(req.Expression)
	if svcErr != nil {
		s.writeError(w, svcErr)
		return
	}

	input, svcErr := parseTextFormat(req.InputSerialization, defaultTextFormat)
	if svcErr != nil {
		s.writeError(w, svcErr)
		return
	}

	output, svcErr := parseTextFormat(req.OutputSerialization, input)
	if svcErr != nil {
		s.writeError(w, svcErr)
		return
	}

	engine := &queryEngine{
		plan:   plan,
		input:  input,
		output: output,
	}
	if svcErr := engine.validate(); svcErr != nil {
		s.writeError(w, svcErr)
		return
	}

	snapshot := r.URL.Query().Get("snapshot")
	if snapshot == "" {
		snapshot = r.URL.Query().Get("versionid")
	}

	view, err := s.store.GetBlob(container, blob, snapshot)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if svcErr := checkConditions(r, view); svcErr != nil {
		s.writeError(w, svcErr)
		return
	}

	fw, err := blobqueryx.NewFrameWriter(w, &blobqueryx.FrameWriterOptions{
		Codec:  s.codec,
		Schema: s.schema,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writePropertyHeaders(w, view.Properties)
	w.Header().Set("Content-Type", "avro/binary")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	err = engine.run(view.Data, fw, flush, &queryRunOptions{
		ProgressInterval: s.progressInterval,
		MaxDataFrameLen:  s.maxDataFrameLen,
	})
	if err != nil {
		// the status line is gone, all we can do is cut the stream short
		s.logger.Debug("query response aborted",
			zaputils.BlobPath("blob", container, blob, ""),
			zap.Error(err))
	}
}

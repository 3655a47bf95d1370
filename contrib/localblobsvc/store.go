package localblobsvc

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

const snapshotTimeFormat = "2006-01-02T15:04:05.0000000Z"

type serviceError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *serviceError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

var (
	errContainerNotFound = &serviceError{http.StatusNotFound, "ContainerNotFound", "The specified container does not exist."}
	errContainerExists   = &serviceError{http.StatusConflict, "ContainerAlreadyExists", "The specified container already exists."}
	errBlobNotFound      = &serviceError{http.StatusNotFound, "BlobNotFound", "The specified blob does not exist."}
	errConditionNotMet   = &serviceError{http.StatusPreconditionFailed, "ConditionNotMet", "The condition specified using HTTP conditional header(s) is not met."}
	errLeaseIdMissing    = &serviceError{http.StatusPreconditionFailed, "LeaseIdMissing", "There is currently a lease on the blob and no lease ID was specified in the request."}
	errLeaseMismatch     = &serviceError{http.StatusPreconditionFailed, "LeaseIdMismatchWithBlobOperation", "The lease ID specified did not match the lease ID for the blob."}
	errLeaseNotPresent   = &serviceError{http.StatusPreconditionFailed, "LeaseNotPresentWithBlobOperation", "There is currently no lease on the blob."}
	errLeasePresent      = &serviceError{http.StatusConflict, "LeaseAlreadyPresent", "There is already a lease present."}
	errLeaseOpMismatch   = &serviceError{http.StatusConflict, "LeaseIdMismatchWithLeaseOperation", "The lease ID specified did not match the lease ID for the blob."}
	errLeaseOpNotPresent = &serviceError{http.StatusConflict, "LeaseNotPresentWithLeaseOperation", "There is currently no lease on the blob."}
	errInvalidLeaseDur   = &serviceError{http.StatusBadRequest, "InvalidHeaderValue", "The lease duration must be -1 or between 15 and 60 seconds."}
)

// BlobProperties are the system properties of a stored blob or snapshot.
type BlobProperties struct {
	ETag          string
	LastModified  time.Time
	ContentType   string
	ContentLength int64
	LeaseState    string
	LeaseStatus   string
	LeaseDuration string
	Tags          map[string]string
}

type blobVersion struct {
	data         []byte
	etag         string
	lastModified time.Time
	contentType  string
	tags         map[string]string
}

type blobEntry struct {
	blobVersion

	leaseID       string
	leaseInfinite bool
	leaseExpiry   time.Time

	snapshots map[string]*blobVersion
}

func (b *blobEntry) leaseActive(now time.Time) bool {
	if b.leaseID == "" {
		return false
	}
	return b.leaseInfinite || now.Before(b.leaseExpiry)
}

type containerEntry struct {
	blobs        map[string]*blobEntry
	etag         string
	lastModified time.Time
}

// Store is the in-memory state of the emulated service.  It is safe for
// concurrent use.
type Store struct {
	// Now is used for all timestamps, tests replace it to control time.
	Now func() time.Time

	lock       sync.RWMutex
	containers map[string]*containerEntry
	etagSeq    atomic.Uint64
}

func NewStore() *Store {
	return &Store{
		Now:        time.Now,
		containers: make(map[string]*containerEntry),
	}
}

func (s *Store) now() time.Time {
	// last modified times only have second precision on the wire
	return s.Now().UTC().Truncate(time.Second)
}

func (s *Store) nextETag() string {
	return fmt.Sprintf("\"0x%X\"", 0x8D000000000000+s.etagSeq.Inc())
}

func (s *Store) CreateContainer(name string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.containers[name]; ok {
		return errContainerExists
	}

	s.containers[name] = &containerEntry{
		blobs:        make(map[string]*blobEntry),
		etag:         s.nextETag(),
		lastModified: s.now(),
	}
	return nil
}

func (s *Store) DeleteContainer(name string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.containers[name]; !ok {
		return errContainerNotFound
	}

	delete(s.containers, name)
	return nil
}

func (s *Store) ListContainers() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()

	names := make([]string, 0, len(s.containers))
	for name := range s.containers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) lookupLocked(container, blob string) (*blobEntry, error) {
	c, ok := s.containers[container]
	if !ok {
		return nil, errContainerNotFound
	}

	b, ok := c.blobs[blob]
	if !ok {
		return nil, errBlobNotFound
	}

	return b, nil
}

func (s *Store) propertiesLocked(b *blobEntry, v *blobVersion) *BlobProperties {
	props := &BlobProperties{
		ETag:          v.etag,
		LastModified:  v.lastModified,
		ContentType:   v.contentType,
		ContentLength: int64(len(v.data)),
		LeaseState:    "available",
		LeaseStatus:   "unlocked",
		Tags:          v.tags,
	}

	if b != nil && b.leaseActive(s.now()) {
		props.LeaseState = "leased"
		props.LeaseStatus = "locked"
		if b.leaseInfinite {
			props.LeaseDuration = "infinite"
		} else {
			props.LeaseDuration = "fixed"
		}
	} else if b != nil && b.leaseID != "" {
		props.LeaseState = "expired"
	}

	return props
}

// PutBlob creates or replaces a block blob.  check is called with the current
// blob, if any, and can veto the write.
func (s *Store) PutBlob(
	container, blob string,
	data []byte, contentType string, tags map[string]string,
	check func(current *BlobView) error,
) (*BlobProperties, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	c, ok := s.containers[container]
	if !ok {
		return nil, errContainerNotFound
	}

	b := c.blobs[blob]
	if b != nil && check != nil {
		err := check(s.viewLocked(b, &b.blobVersion))
		if err != nil {
			return nil, err
		}
	}

	if b == nil {
		b = &blobEntry{
			snapshots: make(map[string]*blobVersion),
		}
		c.blobs[blob] = b
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	b.blobVersion = blobVersion{
		data:         data,
		etag:         s.nextETag(),
		lastModified: s.now(),
		contentType:  contentType,
		tags:         tags,
	}

	return s.propertiesLocked(b, &b.blobVersion), nil
}

func (s *Store) DeleteBlob(container, blob string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, err := s.lookupLocked(container, blob)
	if err != nil {
		return err
	}

	delete(s.containers[container].blobs, blob)
	return nil
}

// BlobView is a consistent copy of a blob's state at one point in time.
type BlobView struct {
	Data        []byte
	Properties  *BlobProperties
	LeaseID     string
	LeaseActive bool
}

func (s *Store) viewLocked(b *blobEntry, v *blobVersion) *BlobView {
	view := &BlobView{
		Data:       v.data,
		Properties: s.propertiesLocked(b, v),
	}
	if b != nil {
		view.LeaseID = b.leaseID
		view.LeaseActive = b.leaseActive(s.now())
	}
	return view
}

// GetBlob returns the content and properties of a blob, or of one of its
// snapshots when snapshot is not empty.  Blob data is never modified in
// place so the returned slice stays valid.
func (s *Store) GetBlob(container, blob, snapshot string) (*BlobView, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	b, err := s.lookupLocked(container, blob)
	if err != nil {
		return nil, err
	}

	if snapshot != "" {
		v, ok := b.snapshots[snapshot]
		if !ok {
			return nil, errBlobNotFound
		}
		return s.viewLocked(nil, v), nil
	}

	return s.viewLocked(b, &b.blobVersion), nil
}

func (s *Store) CreateSnapshot(container, blob string) (string, *BlobProperties, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	b, err := s.lookupLocked(container, blob)
	if err != nil {
		return "", nil, err
	}

	snapTime := s.Now().UTC()
	snapshot := snapTime.Format(snapshotTimeFormat)
	for b.snapshots[snapshot] != nil {
		snapTime = snapTime.Add(100 * time.Nanosecond)
		snapshot = snapTime.Format(snapshotTimeFormat)
	}

	v := b.blobVersion
	b.snapshots[snapshot] = &v

	return snapshot, s.propertiesLocked(nil, &v), nil
}

// AcquireLease takes a lease of duration seconds, or an infinite one when
// duration is -1.  Acquiring again with the active lease id renews it.
func (s *Store) AcquireLease(container, blob, proposedID string, duration int) (string, error) {
	if duration != -1 && (duration < 15 || duration > 60) {
		return "", errInvalidLeaseDur
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	b, err := s.lookupLocked(container, blob)
	if err != nil {
		return "", err
	}

	now := s.Now()
	if b.leaseActive(now) && !strings.EqualFold(b.leaseID, proposedID) {
		return "", errLeasePresent
	}

	leaseID := proposedID
	if leaseID == "" {
		leaseID = uuid.NewString()
	}

	b.leaseID = leaseID
	b.leaseInfinite = duration == -1
	b.leaseExpiry = now.Add(time.Duration(duration) * time.Second)

	return leaseID, nil
}

func (s *Store) ReleaseLease(container, blob, leaseID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	b, err := s.lookupLocked(container, blob)
	if err != nil {
		return err
	}

	if b.leaseID == "" {
		return errLeaseOpNotPresent
	}

	if !strings.EqualFold(b.leaseID, leaseID) {
		return errLeaseOpMismatch
	}

	b.leaseID = ""
	b.leaseInfinite = false
	b.leaseExpiry = time.Time{}
	return nil
}

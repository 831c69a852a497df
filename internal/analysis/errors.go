package analysis

import "errors"

var (
	// ErrAllSegmentsFailed is returned by a batch run when every candidate
	// segment failed, as opposed to a partial success.
	ErrAllSegmentsFailed = errors.New("all segment analyses failed")

	errNoResolvableURLs = errors.New("no screenshot url could be resolved")
)

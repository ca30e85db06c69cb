package dwn

import (
	"errors"
	"io"

	"github.com/onnwee/dwnd/internal/dwnerr"
	"github.com/onnwee/dwnd/internal/dwnmodel"
)

// Status is the outcome of one operation: an HTTP-style code per spec
// §4.9's reply table plus a human-readable detail on failure.
type Status struct {
	Code   int
	Detail string
}

// RecordEntry is one record surfaced by Read/Query: its descriptor plus a
// lazily openable data stream. Data is nil when the record's payload was
// not requested or does not exist for this descriptor kind (e.g. a
// RecordsDelete entry in a query's results).
type RecordEntry struct {
	Descriptor dwnmodel.Descriptor
	RecordID   string
	MessageCID string
	Data       io.ReadCloser
}

// Reply is the uniform return shape for every handler method. Entries is
// populated by RecordsQuery and ProtocolsQuery; Record by RecordsRead and
// by PermissionsGrant (the stored grant); both are nil for the other
// write-shaped operations, which report outcome through Status alone.
type Reply struct {
	Status  Status
	Record  *RecordEntry
	Entries []*RecordEntry
	Cursor  string
}

// errorReply builds a Reply carrying only a failure Status, classifying
// err through dwnerr the same way every handler stage does.
func errorReply(err error) *Reply {
	return &Reply{Status: statusFromError(err)}
}

func statusFromError(err error) Status {
	if err == nil {
		return Status{Code: 200}
	}
	var de *dwnerr.Error
	if errors.As(err, &de) {
		return Status{Code: de.StatusCode(), Detail: de.Error()}
	}
	kind := dwnerr.Classify(err)
	return Status{Code: dwnerr.StatusCode(kind), Detail: err.Error()}
}

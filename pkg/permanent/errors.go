package permanent

import (
	"errors"

	"github.com/marshallshelly/pebble-permanent/pkg/runtime"
)

var (
	// ErrSlicedOperation is returned when Delete, Restore or Update is called
	// on a query with LIMIT, OFFSET, a column projection or DISTINCT.
	ErrSlicedOperation = errors.New("permanent: cannot delete, restore or update a sliced or projected query")

	// ErrNotSoftDeletable is returned when restoring a model without a
	// soft-delete column.
	ErrNotSoftDeletable = errors.New("permanent: model is not soft-deletable")

	// ErrMultipleRows is returned by Get when more than one row matches.
	ErrMultipleRows = errors.New("permanent: query returned more than one row")

	// ErrNotFound is returned when no row matches.
	ErrNotFound = runtime.ErrNotFound

	// ErrNoPrimaryKey is returned for records whose table has no primary key,
	// or whose primary key is unset.
	ErrNoPrimaryKey = runtime.ErrNoPrimaryKey
)

package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/rowsync/internal/row"
)

var (
	// ErrPassNotFinished is returned by Commit for a pass that failed or
	// never ran to completion.
	ErrPassNotFinished = errors.New("pass did not finish")

	// ErrWatermarkRegression is returned by Commit when the last written
	// row's last-updated value is older than the pass's start watermark.
	ErrWatermarkRegression = errors.New("watermark would move backwards")

	// ErrPassInProgress is returned by Run and Commit while another pass on
	// the same Engine is running.
	ErrPassInProgress = errors.New("another pass is in progress")
)

// PassError reports the row that stopped a pass.
//
// Err is the reconciler's error unchanged; errors.Is and errors.As see
// through PassError to the driver or mapping error beneath.
type PassError struct {
	// PassID identifies the failed pass.
	PassID string

	// Table is the source table.
	Table string

	// RowIndex is the zero-based position of the row in the pass.
	RowIndex int

	// Row is the source row that could not be reconciled.
	Row row.Row

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *PassError) Error() string {
	return fmt.Sprintf("pass %s: %s row %d: %v", e.PassID, e.Table, e.RowIndex, e.Err)
}

// Unwrap returns the underlying failure.
func (e *PassError) Unwrap() error {
	return e.Err
}

// FailedRow returns the row that stopped a pass, if err carries one.
// Uses errors.As to handle wrapped errors.
func FailedRow(err error) (row.Row, bool) {
	var pe *PassError
	if errors.As(err, &pe) {
		return pe.Row, true
	}
	return nil, false
}

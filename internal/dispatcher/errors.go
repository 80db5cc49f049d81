package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/local/pagemerge/internal/pages"
)

var (
	ErrBusy        = errors.New("a merge is already running for this session")
	ErrQueueFull   = errors.New("merge queue is full")
	ErrJobNotFound = errors.New("job not found")
	ErrJobFinished = errors.New("job already finished")
	ErrStopped     = errors.New("dispatcher stopped")
)

// Outcomes used as job results and metric labels.
const (
	outcomeSuccess   = "success"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
)

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, context.Canceled):
		return outcomeCancelled
	default:
		return outcomeFailed
	}
}

// FailureMessage turns a merge error into the message stored on a failed job.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	var inv *pages.InvalidDocumentError
	if errors.As(err, &inv) {
		if inv.Name == "" || inv.Name == "merge" {
			return "Nothing to merge: " + inv.Reason
		}
		return fmt.Sprintf("Could not read %s: %s", inv.Name, inv.Reason)
	}
	var enc *pages.EncodingError
	if errors.As(err, &enc) {
		if enc.PageID == "" {
			return fmt.Sprintf("Could not build the merged document (%s failed)", enc.Stage)
		}
		return fmt.Sprintf("Could not process page %s (%s failed)", enc.PageID, enc.Stage)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Merge timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "Merge cancelled"
	}
	return "Merge failed: " + err.Error()
}

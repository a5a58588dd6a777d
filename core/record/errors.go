package record

import (
	"errors"
	"fmt"
)

var ErrEmptyRecordID = errors.New("record does not have an ID")

type NotFoundError struct {
	RecordID   string
	RecordHash string
}

func (err NotFoundError) Error() string {
	if err.RecordHash != "" {
		return fmt.Sprintf("no revision found for record %q hash %q", err.RecordID, err.RecordHash)
	}
	return fmt.Sprintf("no such record: %q", err.RecordID)
}

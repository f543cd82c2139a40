package transaction

import (
	stderrors "errors"
	"io/fs"
	"time"

	"github.com/google/uuid"
)

// IDLayout formats install ids. Ids sort in time order.
const IDLayout = "20060102T150405.000000Z"

// NewInstallID returns the install id for t.
func NewInstallID(t time.Time) string {
	return t.UTC().Format(IDLayout)
}

// NewRunID returns a random id correlating the log lines of one run.
func NewRunID() string {
	return uuid.NewString()
}

func isNotExist(err error) bool {
	return stderrors.Is(err, fs.ErrNotExist)
}

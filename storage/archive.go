package storage

import (
	"bytes"
	"context"
	"fmt"
)

const snapshotContentType = "application/json"

// SnapshotArchive stores encoded round trees of closed rounds.
type SnapshotArchive struct {
	uploader FileUploader
}

func NewSnapshotArchive(uploader FileUploader) *SnapshotArchive {
	return &SnapshotArchive{uploader: uploader}
}

func SnapshotKey(fractalID, level int) string {
	return fmt.Sprintf("fractals/%d/rounds/%d.json", fractalID, level)
}

// Store uploads payload and returns its public URL.
func (a *SnapshotArchive) Store(ctx context.Context, fractalID, level int, payload []byte) (string, error) {
	res, err := a.uploader.Upload(ctx, SnapshotKey(fractalID, level), snapshotContentType, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	return res.Location, nil
}

package export

import (
	"context"
	"errors"
)

// DisabledStorage replaces MinioStorage when object storage is not
// configured. Uploads fail, which pushes report delivery onto the
// direct path.
type DisabledStorage struct {
	reason string
}

func NewDisabledStorage(reason string) *DisabledStorage {
	if reason == "" {
		reason = "object storage not configured"
	}
	return &DisabledStorage{reason: reason}
}

func (s *DisabledStorage) Upload(ctx context.Context, userID string, data []byte) (string, error) {
	return "", errors.New(s.reason)
}

func (s *DisabledStorage) URLFor(object string) string {
	return ""
}

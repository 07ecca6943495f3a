package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/optionscout/internal/domain"
)

type fakeUploader struct {
	lastInput *s3.PutObjectInput
	err       error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.lastInput = input
	if f.err != nil {
		return nil, f.err
	}
	return &manager.UploadOutput{}, nil
}

func newTestArchiver(up Uploader, prefix string) *SnapshotArchiver {
	return &SnapshotArchiver{
		uploader: up,
		bucket:   "scan-archive",
		prefix:   prefix,
		log:      zerolog.Nop(),
	}
}

func TestArchiveSnapshotUploadsDateLayoutKey(t *testing.T) {
	up := &fakeUploader{}
	a := newTestArchiver(up, "scans")
	scannedAt := time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC)

	err := a.ArchiveSnapshot(context.Background(), domain.FilterModeStrict, scannedAt, []byte(`{"opportunities":[]}`))

	require.NoError(t, err)
	require.NotNil(t, up.lastInput)
	assert.Equal(t, "scan-archive", *up.lastInput.Bucket)
	assert.Equal(t, "scans/2026/08/26/strict-20260826T143000Z.json", *up.lastInput.Key)
	assert.Equal(t, "application/json", *up.lastInput.ContentType)

	body, err := io.ReadAll(up.lastInput.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"opportunities":[]}`, string(body))
}

func TestArchiveSnapshotNoPrefix(t *testing.T) {
	up := &fakeUploader{}
	a := newTestArchiver(up, "")

	err := a.ArchiveSnapshot(context.Background(), domain.FilterModeRelaxed,
		time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), []byte("{}"))

	require.NoError(t, err)
	assert.Equal(t, "2026/01/02/relaxed-20260102T030405Z.json", *up.lastInput.Key)
}

func TestArchiveSnapshotUploadFailure(t *testing.T) {
	up := &fakeUploader{err: errors.New("access denied")}
	a := newTestArchiver(up, "scans")

	err := a.ArchiveSnapshot(context.Background(), domain.FilterModeStrict, time.Now(), []byte("{}"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{}, zerolog.Nop())
	assert.Error(t, err)
}

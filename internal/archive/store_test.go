package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type putCall struct {
	bucket      string
	key         string
	contentType string
	body        []byte
}

// mockS3Client records PutObject calls for testing.
type mockS3Client struct {
	putCalls []putCall
	err      error
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	body, _ := io.ReadAll(input.Body)
	m.putCalls = append(m.putCalls, putCall{
		bucket:      *input.Bucket,
		key:         *input.Key,
		contentType: *input.ContentType,
		body:        body,
	})
	return &s3.PutObjectOutput{}, nil
}

func writeLog(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "call_log.csv")
	require.NoError(t, os.WriteFile(p, []byte("timestamp,name\n2026-10-18T14:05:00Z,Asha\n"), 0o644))
	return p
}

func TestStore_ArchiveLog(t *testing.T) {
	mock := &mockS3Client{}
	store := NewStore(mock, "logs-bucket", "call-logs", nil)
	store.now = func() time.Time { return time.Date(2026, 10, 18, 14, 5, 0, 0, time.UTC) }

	key, err := store.ArchiveLog(context.Background(), "run-1", writeLog(t), map[string]int{"total": 1})
	require.NoError(t, err)
	assert.Equal(t, "call-logs/2026/10/18/run-1-call_log.csv", key)

	require.Len(t, mock.putCalls, 2)
	assert.Equal(t, "logs-bucket", mock.putCalls[0].bucket)
	assert.Equal(t, "text/csv", mock.putCalls[0].contentType)
	assert.Contains(t, string(mock.putCalls[0].body), "Asha")

	assert.Equal(t, key+".summary.json", mock.putCalls[1].key)
	var decoded map[string]int
	require.NoError(t, json.Unmarshal(mock.putCalls[1].body, &decoded))
	assert.Equal(t, 1, decoded["total"])
}

func TestStore_Disabled(t *testing.T) {
	store := NewStore(&mockS3Client{}, "", "x", nil)
	assert.False(t, store.Enabled())
	key, err := store.ArchiveLog(context.Background(), "run", "/does/not/matter", nil)
	assert.NoError(t, err)
	assert.Empty(t, key)

	var nilStore *Store
	assert.False(t, nilStore.Enabled())
}

func TestStore_PutError(t *testing.T) {
	store := NewStore(&mockS3Client{err: errors.New("access denied")}, "b", "", nil)
	_, err := store.ArchiveLog(context.Background(), "run", writeLog(t), nil)
	assert.ErrorContains(t, err, "access denied")
}

func TestStore_MissingFile(t *testing.T) {
	store := NewStore(&mockS3Client{}, "b", "", nil)
	_, err := store.ArchiveLog(context.Background(), "run", filepath.Join(t.TempDir(), "nope.csv"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

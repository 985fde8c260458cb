package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mforney/docpipe/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BlobStore is content-addressable storage for conversion artifacts. Every
// blob id embeds its format as a prefix ("<format>.<sequence>"); the prefix
// routes the object to a format-specific key space inside the bucket.
// Sequence numbers come from a per-format counter row and are never reused.
type BlobStore struct {
	objects ObjectStorage
	db      *gorm.DB
}

// BlobDescriptor describes a stored blob.
type BlobDescriptor struct {
	BlobID      domain.BlobID `json:"blob_id"`
	FileName    string        `json:"file_name"`
	ContentType string        `json:"content_type"`
	Size        int64         `json:"size"`
	Hash        string        `json:"hash"`
}

// NewBlobStore creates a BlobStore over an object store and the sequence
// counter database.
func NewBlobStore(objects ObjectStorage, db *gorm.DB) *BlobStore {
	return &BlobStore{objects: objects, db: db}
}

// Upload stores a new blob for the given format and returns its id. The
// logical file name travels with the job and stream event, not the key, so
// object keys stay deterministic: "<format>/<blob id>".
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - format: logical format of the artifact.
//   - reader: blob content.
//   - size: content length in bytes.
//   - contentType: MIME type of the content.
// Returns:
//   - domain.BlobID: allocated blob id.
//   - error: non-nil if sequence allocation or the upload fails.
func (s *BlobStore) Upload(ctx context.Context, format domain.DocumentFormat, reader io.Reader, size int64, contentType string) (domain.BlobID, error) {
	seq, err := s.nextSequence(ctx, format)
	if err != nil {
		return domain.BlobIDNull, err
	}
	blobID := domain.NewBlobID(format, seq)
	if err := s.objects.Upload(ctx, objectKey(blobID), reader, size, contentType); err != nil {
		return domain.BlobIDNull, fmt.Errorf("failed to upload blob %s: %w", blobID, err)
	}
	return blobID, nil
}

// Download opens a blob for reading.
func (s *BlobStore) Download(ctx context.Context, blobID domain.BlobID) (io.ReadCloser, error) {
	if blobID.IsNull() {
		return nil, fmt.Errorf("cannot download null blob")
	}
	return s.objects.Download(ctx, objectKey(blobID))
}

// DownloadTo materializes a blob into a local folder and returns the path.
// fileName is the logical name carried by the job; its extension is
// preserved so converters can rely on it. When empty, the blob id is used.
func (s *BlobStore) DownloadTo(ctx context.Context, blobID domain.BlobID, folder, fileName string) (string, error) {
	body, err := s.Download(ctx, blobID)
	if err != nil {
		return "", err
	}
	defer body.Close()

	if err := os.MkdirAll(folder, 0755); err != nil {
		return "", fmt.Errorf("failed to create download folder: %w", err)
	}
	name := sanitizeFileName(fileName)
	if name == "" {
		name = blobID.String()
	}
	localPath := filepath.Join(folder, name)
	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to create local file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, body); err != nil {
		return "", fmt.Errorf("failed to write local file: %w", err)
	}
	return localPath, nil
}

// GetDescriptor returns metadata for a stored blob.
func (s *BlobStore) GetDescriptor(ctx context.Context, blobID domain.BlobID) (*BlobDescriptor, error) {
	if blobID.IsNull() {
		return nil, fmt.Errorf("cannot describe null blob")
	}
	info, err := s.objects.Stat(ctx, objectKey(blobID))
	if err != nil {
		return nil, err
	}
	return &BlobDescriptor{
		BlobID:      blobID,
		ContentType: info.ContentType,
		Size:        info.Size,
		Hash:        info.Hash,
	}, nil
}

// Delete removes a blob from storage.
func (s *BlobStore) Delete(ctx context.Context, blobID domain.BlobID) error {
	if blobID.IsNull() {
		return fmt.Errorf("cannot delete null blob")
	}
	return s.objects.Delete(ctx, objectKey(blobID))
}

// nextSequence atomically increments and returns the per-format counter.
// Increment and read are one UPDATE ... RETURNING statement: two concurrent
// uploads each see their own value, never a shared one. The insert race on
// first use is absorbed by the primary-key conflict.
func (s *BlobStore) nextSequence(ctx context.Context, format domain.DocumentFormat) (int64, error) {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.BlobSequence{Format: format, Last: 0}).Error; err != nil {
		return 0, fmt.Errorf("failed to seed sequence for format %s: %w", format, err)
	}
	row := domain.BlobSequence{Format: format}
	res := s.db.WithContext(ctx).
		Model(&row).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "last"}}}).
		Where("format = ?", format).
		Update("last", gorm.Expr("last + 1"))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to advance sequence for format %s: %w", format, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("sequence row for format %s disappeared", format)
	}
	return row.Last, nil
}

// objectKey maps a blob id to its bucket key. The format prefix becomes the
// leading path segment so per-format lifecycle rules can be applied at the
// bucket level.
func objectKey(blobID domain.BlobID) string {
	return fmt.Sprintf("%s/%s", blobID.Format(), blobID)
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mforney/docpipe/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type memObject struct {
	data        []byte
	contentType string
}

// memObjectStorage is an in-memory ObjectStorage for tests.
type memObjectStorage struct {
	mu      sync.Mutex
	objects map[string]memObject
}

func newMemObjectStorage() *memObjectStorage {
	return &memObjectStorage{objects: make(map[string]memObject)}
}

func (m *memObjectStorage) Upload(_ context.Context, key string, reader io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{data: data, contentType: contentType}
	return nil
}

func (m *memObjectStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *memObjectStorage) Stat(_ context.Context, key string) (*ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return &ObjectInfo{
		ContentType: obj.contentType,
		Size:        int64(len(obj.data)),
		Hash:        fmt.Sprintf("%x", md5.Sum(obj.data)),
	}, nil
}

func (m *memObjectStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memObjectStorage) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memObjectStorage) GetURL(key string) string {
	return "mem://" + key
}

func (m *memObjectStorage) EnsureBucket(_ context.Context) error { return nil }

func testBlobStore(t *testing.T) (*BlobStore, *memObjectStorage) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "blobs.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&domain.BlobSequence{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	objects := newMemObjectStorage()
	return NewBlobStore(objects, db), objects
}

func TestUploadAllocatesFormatPrefixedIDs(t *testing.T) {
	store, _ := testBlobStore(t)
	ctx := context.Background()

	first, err := store.Upload(ctx, domain.FormatPdf, bytes.NewReader([]byte("one")), 3, "application/pdf")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	second, err := store.Upload(ctx, domain.FormatPdf, bytes.NewReader([]byte("two")), 3, "application/pdf")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	other, err := store.Upload(ctx, domain.FormatTika, bytes.NewReader([]byte("txt")), 3, "text/plain")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if first != "pdf.1" || second != "pdf.2" {
		t.Errorf("pdf blob ids = %s, %s, want pdf.1, pdf.2", first, second)
	}
	if other != "tika.1" {
		t.Errorf("tika blob id = %s, want tika.1 (counters are per format)", other)
	}
}

func TestUploadAllocatesUniqueIDsConcurrently(t *testing.T) {
	store, _ := testBlobStore(t)
	ctx := context.Background()

	const uploads = 16
	var mu sync.Mutex
	seen := make(map[domain.BlobID]int)
	var wg sync.WaitGroup
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			blobID, err := store.Upload(ctx, domain.FormatPdf, bytes.NewReader([]byte("x")), 1, "application/pdf")
			if err != nil {
				t.Errorf("Upload failed: %v", err)
				return
			}
			mu.Lock()
			seen[blobID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != uploads {
		t.Errorf("allocated %d distinct blob ids for %d uploads", len(seen), uploads)
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("blob id %s handed out %d times, objects would overwrite", id, n)
		}
	}
}

func TestDownloadRoundTrip(t *testing.T) {
	store, _ := testBlobStore(t)
	ctx := context.Background()

	content := []byte("hello blob")
	blobID, err := store.Upload(ctx, domain.FormatOriginal, bytes.NewReader(content), int64(len(content)), "text/plain")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	body, err := store.Download(ctx, blobID)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	defer body.Close()
	got, err := io.ReadAll(body)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("downloaded %q, want %q", got, content)
	}

	desc, err := store.GetDescriptor(ctx, blobID)
	if err != nil {
		t.Fatalf("GetDescriptor failed: %v", err)
	}
	if desc.Size != int64(len(content)) || desc.ContentType != "text/plain" {
		t.Errorf("descriptor = %+v, want size %d and text/plain", desc, len(content))
	}
}

func TestDownloadToPreservesExtension(t *testing.T) {
	store, _ := testBlobStore(t)
	ctx := context.Background()

	blobID, err := store.Upload(ctx, domain.FormatOriginal, bytes.NewReader([]byte("doc")), 3, "application/octet-stream")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	folder := t.TempDir()
	path, err := store.DownloadTo(ctx, blobID, folder, "../report.docx")
	if err != nil {
		t.Fatalf("DownloadTo failed: %v", err)
	}
	if filepath.Base(path) != "report.docx" {
		t.Errorf("local file = %s, want traversal stripped to report.docx", path)
	}
	if filepath.Dir(path) != folder {
		t.Errorf("file written to %s, want %s", filepath.Dir(path), folder)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("downloaded file missing: %v", err)
	}
}

func TestNullBlobOperationsRejected(t *testing.T) {
	store, _ := testBlobStore(t)
	ctx := context.Background()

	if _, err := store.Download(ctx, domain.BlobIDNull); err == nil {
		t.Error("Download of null blob succeeded, want error")
	}
	if _, err := store.GetDescriptor(ctx, domain.BlobIDNull); err == nil {
		t.Error("GetDescriptor of null blob succeeded, want error")
	}
	if err := store.Delete(ctx, domain.BlobIDNull); err == nil {
		t.Error("Delete of null blob succeeded, want error")
	}
}

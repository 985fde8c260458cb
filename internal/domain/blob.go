package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// BlobID is the handle of one physical stored artifact, encoded as
// "<format>.<sequence>". The format prefix routes the blob to its
// format-specific bucket; the sequence is unique per format and never reused.
type BlobID string

// BlobIDNull is the sentinel for "no blob".
const BlobIDNull BlobID = "null"

// NewBlobID builds a blob id from a format and a per-format sequence number.
func NewBlobID(format DocumentFormat, sequence int64) BlobID {
	return BlobID(fmt.Sprintf("%s.%d", strings.ToLower(string(format)), sequence))
}

// ParseBlobID validates and normalizes an encoded blob id.
// Parameters:
//   - s: encoded blob id ("<format>.<sequence>" or "null").
// Returns:
//   - BlobID: normalized blob id.
//   - error: non-nil if the encoding is invalid.
func ParseBlobID(s string) (BlobID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == string(BlobIDNull) {
		return BlobIDNull, nil
	}
	dot := strings.LastIndex(s, ".")
	if dot <= 0 || dot == len(s)-1 {
		return BlobIDNull, fmt.Errorf("invalid blob id %q: missing format prefix", s)
	}
	if _, err := strconv.ParseInt(s[dot+1:], 10, 64); err != nil {
		return BlobIDNull, fmt.Errorf("invalid blob id %q: bad sequence: %w", s, err)
	}
	return BlobID(s), nil
}

// Format extracts the format prefix of the blob id.
func (b BlobID) Format() DocumentFormat {
	dot := strings.LastIndex(string(b), ".")
	if dot <= 0 {
		return ""
	}
	return DocumentFormat(string(b)[:dot])
}

// Sequence extracts the per-format sequence number; 0 for the null blob.
func (b BlobID) Sequence() int64 {
	dot := strings.LastIndex(string(b), ".")
	if dot <= 0 {
		return 0
	}
	n, _ := strconv.ParseInt(string(b)[dot+1:], 10, 64)
	return n
}

// IsNull reports whether the id is the null sentinel or empty.
func (b BlobID) IsNull() bool {
	return b == "" || b == BlobIDNull
}

func (b BlobID) String() string {
	return string(b)
}

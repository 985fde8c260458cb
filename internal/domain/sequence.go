package domain

// BlobSequence is the per-format monotonic counter backing blob id
// allocation. Incremented atomically; values are never reused.
type BlobSequence struct {
	Format DocumentFormat `gorm:"type:text;primaryKey" json:"format"`
	Last   int64          `gorm:"not null;default:0" json:"last"`
}

// TableName returns the database table name for BlobSequence.
func (BlobSequence) TableName() string {
	return "blob_sequences"
}

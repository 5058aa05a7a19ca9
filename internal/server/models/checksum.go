package models

import "time"

// FirstPartIndex is the number of the first part of a multipart object.
const FirstPartIndex = 1

// JobStatus is the persisted state of a checksum job.
type JobStatus string

const (
	JobAccumulating JobStatus = "accumulating"
	JobFinalizing   JobStatus = "finalizing"
)

// ChecksumJob holds the rolling hash state of one object while its parts
// are being folded. State is the marshaled digest after NextPartIndex-1
// parts.
type ChecksumJob struct {
	ObjectKey     string
	VaultID       string
	NextPartIndex int
	State         []byte
	BytesFolded   int64
	ContentType   string
	Status        JobStatus
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

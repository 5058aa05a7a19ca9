package models

// PartCompleted is emitted by the bulk-transfer runner after one part of an
// object has been written to the blob store.
type PartCompleted struct {
	ObjectKey       string `json:"object_key"`
	VaultID         string `json:"vault_id"`
	DestinationPath string `json:"destination_path"`
	FileName        string `json:"file_name"`
	PartIndex       int    `json:"part_index"`
	IsFinalPart     bool   `json:"is_final_part"`
	SizeBytes       int64  `json:"size_bytes"`
	ExecutionID     string `json:"execution_id"`
}

// ObjectCreated is emitted once an object is complete in the blob store.
// VersionID is empty when the bucket is unversioned.
type ObjectCreated struct {
	ObjectKey       string `json:"object_key"`
	VersionID       string `json:"version_id,omitempty"`
	VaultID         string `json:"vault_id"`
	DestinationPath string `json:"destination_path"`
	FileName        string `json:"file_name"`
	SizeBytes       int64  `json:"size_bytes"`
	ExecutionID     string `json:"execution_id"`
}

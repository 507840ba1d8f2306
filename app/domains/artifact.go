package domains

// Artifact type tags understood by the coordinator
const (
	ArtifactHeapDump   = "heap_dump"
	ArtifactThreadDump = "thread_dump"
)

// Artifact is a locally written diagnostic file awaiting upload
type Artifact struct {
	Path     string
	FileName string
	TypeTag  string
	Size     int64
}

// UploadReceipt is what the artifact store returns for an accepted upload
type UploadReceipt struct {
	FileID      string `json:"fileId"`
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
	FileType    string `json:"fileType"`
	Compression string `json:"-"`
}

package artifacts

import (
	"context"
	"fmt"

	"diag-agent/app/domains"
)

// Transport moves a local artifact to the artifact store
type Transport interface {
	Upload(ctx context.Context, artifact domains.Artifact) (domains.UploadReceipt, error)
}

// FileUploader is the wire-level upload call of the coordinator client
type FileUploader interface {
	UploadFile(ctx context.Context, agentID, path, fileName, fileType string) (domains.UploadReceipt, error)
}

// HTTPTransport uploads artifacts through the coordinator's file endpoint
type HTTPTransport struct {
	uploader FileUploader
	agentID  string
}

// NewHTTPTransport creates a transport bound to one agent id
func NewHTTPTransport(uploader FileUploader, agentID string) *HTTPTransport {
	return &HTTPTransport{uploader: uploader, agentID: agentID}
}

// Upload sends the artifact once. Failures are returned to the caller unchanged.
func (t *HTTPTransport) Upload(ctx context.Context, artifact domains.Artifact) (domains.UploadReceipt, error) {
	receipt, err := t.uploader.UploadFile(ctx, t.agentID, artifact.Path, artifact.FileName, artifact.TypeTag)
	if err != nil {
		return domains.UploadReceipt{}, fmt.Errorf("upload %s: %w", artifact.FileName, err)
	}
	if receipt.FileSize == 0 {
		receipt.FileSize = artifact.Size
	}
	if receipt.FileType == "" {
		receipt.FileType = artifact.TypeTag
	}
	return receipt, nil
}

package dto

import "github.com/noah-isme/scholar-admissions-api/internal/models"

// ExportRequest captures POST /exports payload.
type ExportRequest struct {
	Faculty       string              `json:"faculty" validate:"required"`
	Department    string              `json:"department"`
	PublishedOnly bool                `json:"publishedOnly"`
	Format        models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ExportStatusResponse exposes job progress metadata.
type ExportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ExportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	Error     *string             `json:"error,omitempty"`
}

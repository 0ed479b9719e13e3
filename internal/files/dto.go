package files

import "time"

// UploadResponse is returned by the upload endpoint.
type UploadResponse struct {
	Success    bool      `json:"success"`
	FileID     string    `json:"fileId"`
	URL        string    `json:"url"`
	FileName   string    `json:"fileName"`
	FileSize   int64     `json:"fileSize"`
	MimeType   string    `json:"mimeType"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// FileResponse is the outward-facing representation of a FileRecord.
type FileResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ParentID   *string   `json:"parentId"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType"`
	URL        string    `json:"url"`
	IsFavorite bool      `json:"isFavorite"`
	IsDeleted  bool      `json:"isDeleted"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type updateFileRequest struct {
	Name       *string `json:"name"`
	IsFavorite *bool   `json:"isFavorite"`
}

func (s *Service) toUploadResponse(rec FileRecord) UploadResponse {
	return UploadResponse{
		Success:    true,
		FileID:     rec.ID,
		URL:        s.RetrievalURL(rec.ID),
		FileName:   rec.Name,
		FileSize:   rec.Size,
		MimeType:   rec.MimeType,
		UploadedAt: rec.CreatedAt,
	}
}

func (s *Service) toResponse(rec FileRecord) FileResponse {
	return FileResponse{
		ID:         rec.ID,
		Name:       rec.Name,
		ParentID:   rec.ParentID,
		Size:       rec.Size,
		MimeType:   rec.MimeType,
		URL:        s.RetrievalURL(rec.ID),
		IsFavorite: rec.IsFavorite,
		IsDeleted:  rec.IsDeleted,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}

package files

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"cloudvault-backend/internal/shared/server/middleware"
	"cloudvault-backend/internal/shared/server/respond"
	"cloudvault-backend/internal/shared/telemetry"
)

// multipart framing allowance on top of the file itself
const formOverheadBytes = 1 << 20

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches file routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/files", h.list)
	rg.POST("/files/upload", h.upload)
	rg.GET("/files/retrieve", h.retrieve)
	rg.GET("/files/:id", h.get)
	rg.PATCH("/files/:id", h.update)
	rg.DELETE("/files/:id", h.remove)
	rg.POST("/files/:id/restore", h.restore)
	rg.PUT("/files/:id/content", h.replace)
}

func (h *Handler) upload(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		respond.Failure(c, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.Svc.maxUpload()+formOverheadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.Failure(c, http.StatusBadRequest, "payload_too_large", "file exceeds maximum upload size")
			return
		}
		respond.Failure(c, http.StatusBadRequest, "validation_error", "file is required")
		return
	}
	userID := strings.TrimSpace(c.PostForm("userId"))
	if userID == "" {
		respond.Failure(c, http.StatusBadRequest, "validation_error", "userId is required")
		return
	}
	if userID != principal.UserID {
		respond.Failure(c, http.StatusUnauthorized, "unauthorized", "session does not match userId")
		return
	}
	if fileHeader.Size > h.Svc.maxUpload() {
		respond.Failure(c, http.StatusBadRequest, "payload_too_large", "file exceeds maximum upload size")
		return
	}

	var parentID *string
	if p := strings.TrimSpace(c.PostForm("parentId")); p != "" {
		parentID = &p
	}

	rec, err := h.ingestForm(c, fileHeader, func(req IngestRequest) (FileRecord, error) {
		req.OwnerID = principal.UserID
		req.ParentID = parentID
		return h.Svc.Ingest(requestContext(c), req)
	})
	if err != nil {
		h.uploadError(c, err)
		return
	}
	c.Set(middleware.FileIDKey, rec.ID)
	respond.Created(c, h.Svc.toUploadResponse(rec))
}

func (h *Handler) replace(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		respond.Failure(c, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.Svc.maxUpload()+formOverheadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.Failure(c, http.StatusBadRequest, "payload_too_large", "file exceeds maximum upload size")
			return
		}
		respond.Failure(c, http.StatusBadRequest, "validation_error", "file is required")
		return
	}
	if fileHeader.Size > h.Svc.maxUpload() {
		respond.Failure(c, http.StatusBadRequest, "payload_too_large", "file exceeds maximum upload size")
		return
	}

	id := c.Param("id")
	name := strings.TrimSpace(c.PostForm("fileName"))
	rec, err := h.ingestForm(c, fileHeader, func(req IngestRequest) (FileRecord, error) {
		req.FileName = name
		return h.Svc.Replace(requestContext(c), principal.UserID, id, req)
	})
	if err != nil {
		h.uploadError(c, err)
		return
	}
	c.Set(middleware.FileIDKey, rec.ID)
	respond.OK(c, h.Svc.toUploadResponse(rec))
}

func (h *Handler) ingestForm(c *gin.Context, fh *multipart.FileHeader, run func(IngestRequest) (FileRecord, error)) (FileRecord, error) {
	file, err := fh.Open()
	if err != nil {
		return FileRecord{}, ErrInvalidInput
	}
	defer file.Close()

	return run(IngestRequest{
		FileName:         fh.Filename,
		DeclaredMimeType: fh.Header.Get("Content-Type"),
		Size:             fh.Size,
		Body:             file,
	})
}

func (h *Handler) uploadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Failure(c, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, ErrNotFound):
		respond.Failure(c, http.StatusNotFound, "not_found", "file not found")
	case errors.Is(err, ErrPayloadTooLarge):
		respond.Failure(c, http.StatusBadRequest, "payload_too_large", "file exceeds maximum upload size")
	case errors.Is(err, ErrQuotaExceeded):
		respond.Failure(c, http.StatusForbidden, "quota_exceeded", "storage quota exceeded")
	case errors.Is(err, ErrStorageWriteFailed):
		respond.Failure(c, http.StatusInternalServerError, "storage_write_failed", "failed to store file")
	case errors.Is(err, ErrMetadataWriteFailed):
		respond.Failure(c, http.StatusInternalServerError, "metadata_write_failed", "failed to record file")
	default:
		telemetry.Error("files.upload_failed", map[string]any{"err": err, "request_id": middleware.RequestIDFromContext(c)})
		respond.Failure(c, http.StatusInternalServerError, "internal_error", "upload failed")
	}
}

func (h *Handler) retrieve(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	fileID := strings.TrimSpace(c.Query("fileId"))
	if fileID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "fileId is required", nil)
		return
	}
	c.Set(middleware.FileIDKey, fileID)

	dl, err := h.Svc.Retrieve(requestContext(c), principal.UserID, fileID, c.Query("inline") == "1")
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "file not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", "fileId is required", nil)
		default:
			telemetry.Error("files.retrieve_failed", map[string]any{"file_id": fileID, "err": err})
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to retrieve file", nil)
		}
		return
	}
	defer dl.Body.Close()

	c.DataFromReader(http.StatusOK, dl.Size, dl.ContentType, dl.Body, map[string]string{
		"Content-Disposition":    dl.ContentDisposition,
		"X-Content-Type-Options": "nosniff",
		"Cache-Control":          "private, max-age=0",
	})
}

func (h *Handler) list(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}

	filter := ListFilter{
		OwnerID:        principal.UserID,
		FavoritesOnly:  c.Query("favorites") == "1",
		IncludeDeleted: c.Query("includeDeleted") == "1",
		Limit:          queryInt(c, "limit", 50),
		Offset:         queryInt(c, "offset", 0),
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if p := strings.TrimSpace(c.Query("parentId")); p != "" {
		filter.ParentID = &p
	}

	recs, err := h.Svc.List(c.Request.Context(), filter)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list files", nil)
		return
	}
	out := make([]FileResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, h.Svc.toResponse(rec))
	}
	respond.OK(c, gin.H{"files": out})
}

func (h *Handler) get(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	rec, err := h.Svc.Get(c.Request.Context(), principal.UserID, c.Param("id"))
	if err != nil || rec.IsDeleted {
		h.manageError(c, errOrNotFound(err))
		return
	}
	respond.OK(c, h.Svc.toResponse(rec))
}

func (h *Handler) update(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	var req updateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.Name == nil && req.IsFavorite == nil) {
		respond.Error(c, http.StatusBadRequest, "validation_error", "name or isFavorite is required", nil)
		return
	}

	id := c.Param("id")
	c.Set(middleware.FileIDKey, id)
	var (
		rec FileRecord
		err error
	)
	if req.Name != nil {
		if rec, err = h.Svc.Rename(c.Request.Context(), principal.UserID, id, *req.Name); err != nil {
			h.manageError(c, err)
			return
		}
	}
	if req.IsFavorite != nil {
		if rec, err = h.Svc.SetFavorite(c.Request.Context(), principal.UserID, id, *req.IsFavorite); err != nil {
			h.manageError(c, err)
			return
		}
	}
	respond.OK(c, h.Svc.toResponse(rec))
}

func (h *Handler) remove(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	id := c.Param("id")
	c.Set(middleware.FileIDKey, id)

	if c.Query("permanent") == "1" {
		if err := h.Svc.HardDelete(requestContext(c), principal.UserID, id); err != nil {
			h.manageError(c, err)
			return
		}
		respond.NoContent(c)
		return
	}
	rec, err := h.Svc.SoftDelete(c.Request.Context(), principal.UserID, id)
	if err != nil {
		h.manageError(c, err)
		return
	}
	respond.OK(c, h.Svc.toResponse(rec))
}

func (h *Handler) restore(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	id := c.Param("id")
	c.Set(middleware.FileIDKey, id)
	rec, err := h.Svc.Restore(c.Request.Context(), principal.UserID, id)
	if err != nil {
		h.manageError(c, err)
		return
	}
	respond.OK(c, h.Svc.toResponse(rec))
}

func (h *Handler) manageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "file not found", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		telemetry.Error("files.manage_failed", map[string]any{"err": err, "request_id": middleware.RequestIDFromContext(c)})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "file operation failed", nil)
	}
}

func requestContext(c *gin.Context) context.Context {
	return WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
}

func errOrNotFound(err error) error {
	if err == nil {
		return ErrNotFound
	}
	return err
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

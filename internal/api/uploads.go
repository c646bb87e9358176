package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"videobox/internal/storage"
)

var allowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type imageUpload struct {
	Data        []byte
	ContentType string
	Extension   string
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// parseMultipart bounds the whole request body before parsing the form.
func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request, files int) error {
	limit := h.maxUploadBytes()*int64(files) + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(h.maxUploadBytes()); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return RequestError{Status: http.StatusRequestEntityTooLarge, Message: "upload too large"}
		}
		return badRequest("invalid multipart form")
	}
	return nil
}

// readImage returns the named image from a parsed multipart form, or nil when
// the field is absent. The content type is sniffed, not trusted.
func (h *Handler) readImage(r *http.Request, field string) (*imageUpload, error) {
	file, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, badRequest(fmt.Sprintf("invalid %s upload", field))
	}
	defer file.Close()

	limit := h.maxUploadBytes()
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s upload: %w", field, err)
	}
	if int64(len(data)) > limit {
		return nil, RequestError{Status: http.StatusRequestEntityTooLarge, Message: field + " exceeds the upload limit"}
	}
	if len(data) == 0 {
		return nil, badRequest(field + " file is empty")
	}
	contentType := http.DetectContentType(data)
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return nil, badRequest(fmt.Sprintf("%s must be a png, jpeg, gif or webp image", field))
	}
	return &imageUpload{Data: data, ContentType: contentType, Extension: ext}, nil
}

func (h *Handler) storeImage(ctx context.Context, folder string, img *imageUpload) (storage.ObjectReference, error) {
	key := strings.Trim(folder, "/") + "/" + uuid.NewString() + img.Extension
	return h.objectStorage().Upload(ctx, key, img.ContentType, img.Data)
}

// discardImage removes an object that is no longer referenced. Failures are
// logged only.
func (h *Handler) discardImage(ctx context.Context, objectURL string) {
	if objectURL == "" {
		return
	}
	if err := h.objectStorage().Delete(ctx, objectURL); err != nil {
		h.logger(ctx).Warn("failed to delete replaced image", "url", objectURL, "error", err)
	}
}

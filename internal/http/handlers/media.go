package handlers

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/threadline/dialoguecore/internal/coreerr"
	"github.com/threadline/dialoguecore/internal/http/response"
	"github.com/threadline/dialoguecore/internal/media"
)

type MediaHandler struct {
	store *media.Store
}

func NewMediaHandler(store *media.Store) *MediaHandler {
	return &MediaHandler{store: store}
}

type uploadResponse struct {
	Category string `json:"category"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// Upload serves POST /api/media/upload (multipart/form-data: file, category).
func (h *MediaHandler) Upload(c *gin.Context) {
	category := c.PostForm("category")
	if category == "" {
		category = "attachments"
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, coreerr.InvalidInput, err)
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, coreerr.InvalidInput, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, coreerr.StorageFailure, err)
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	h.respondSaved(c, category, extFromMime(mimeType, fileHeader.Filename), mimeType, data)
}

type uploadBase64Request struct {
	Category   string `json:"category"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mime_type"`
	DataBase64 string `json:"data_base64" binding:"required"`
}

// UploadBase64 serves POST /api/media/upload/base64, for callers (such as
// the mobile client or internal tooling) that prefer a JSON envelope over
// multipart encoding.
func (h *MediaHandler) UploadBase64(c *gin.Context) {
	var req uploadBase64Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, coreerr.InvalidInput, err)
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.DataBase64)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, coreerr.InvalidInput, err)
		return
	}
	category := req.Category
	if category == "" {
		category = "attachments"
	}
	h.respondSaved(c, category, extFromMime(req.MimeType, req.Filename), req.MimeType, data)
}

func (h *MediaHandler) respondSaved(c *gin.Context, category, ext, mimeType string, data []byte) {
	filename, err := h.store.Save(category, ext, data)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, coreerr.StorageFailure, err)
		return
	}
	response.RespondOK(c, uploadResponse{
		Category: category,
		Filename: filename,
		URL:      "/media/" + category + "/" + filename,
		MimeType: mimeType,
	})
}

// Serve serves GET /media/{category}/{filename}.
func (h *MediaHandler) Serve(c *gin.Context) {
	category := c.Param("category")
	filename := c.Param("filename")
	path := h.store.Path(category, filename)
	c.File(path)
}

func extFromMime(mimeType, filename string) string {
	if idx := strings.LastIndex(filename, "."); idx != -1 {
		return filename[idx:]
	}
	switch {
	case strings.Contains(mimeType, "jpeg"):
		return ".jpg"
	case strings.Contains(mimeType, "png"):
		return ".png"
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return ".mp3"
	default:
		return ""
	}
}

package handler

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/TaskRoom/internal/service"
)

type FileHandler struct {
	fileService service.IFileService
}

func NewFileHandler(fileService service.IFileService) *FileHandler {
	return &FileHandler{
		fileService: fileService,
	}
}

// Upload 上传一个尚未归属的文件，之后可在发送消息时通过 fileIds 引用
func (h *FileHandler) Upload(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
		return
	}
	defer f.Close()

	file, err := h.fileService.Upload(c.Request.Context(), userID, service.Upload{
		Filename: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Content:  f,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, file)
}

// Download streams the file content after the owner-based access check.
func (h *FileHandler) Download(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	file, content, err := h.fileService.Open(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer content.Close()

	c.DataFromReader(http.StatusOK, file.Length, file.MimeType, content, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(file.Filename)),
	})
}

func (h *FileHandler) Metadata(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	file, err := h.fileService.Metadata(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, file)
}

package handler

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/TaskRoom/internal/service"
)

type TaskHandler struct {
	taskService service.ITaskService
}

func NewTaskHandler(taskService service.ITaskService) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
	}
}

// CreateTask accepts either a JSON body or a multipart form whose "files"
// parts are uploaded together with the task.
func (h *TaskHandler) CreateTask(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req service.CreateTaskInput
	closers, ok := bindTaskForm(c, &req, &req.Files)
	defer closeAll(closers)
	if !ok {
		return
	}

	task, err := h.taskService.CreateTask(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, task)
}

// UpdateTask 仅主持人可修改；multipart 表单中的 files 作为新文件追加
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req service.UpdateTaskInput
	closers, ok := bindTaskForm(c, &req, &req.Files)
	defer closeAll(closers)
	if !ok {
		return
	}

	task, err := h.taskService.UpdateTask(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// bindTaskForm binds a JSON body, or a multipart form plus its "files"
// parts. On failure it has already written the response.
func bindTaskForm(c *gin.Context, req any, uploads *[]service.Upload) ([]io.Closer, bool) {
	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		if err := c.ShouldBindJSON(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
		return nil, true
	}

	if err := c.ShouldBind(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	closers, err := openUploads(form.File["files"], uploads)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
		return closers, false
	}
	return closers, true
}

func openUploads(headers []*multipart.FileHeader, uploads *[]service.Upload) ([]io.Closer, error) {
	closers := make([]io.Closer, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return closers, err
		}
		closers = append(closers, f)
		*uploads = append(*uploads, service.Upload{
			Filename: fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Content:  f,
		})
	}
	return closers, nil
}

func closeAll(closers []io.Closer) {
	for _, f := range closers {
		f.Close()
	}
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	task, err := h.taskService.GetTask(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// DeleteTask 仅任务负责人可删除；子任务提升到上一级
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	report, err := h.taskService.DeleteTask(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

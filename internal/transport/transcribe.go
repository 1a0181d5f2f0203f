package transport

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fmueller/voxrelay/internal/relay"
	"github.com/fmueller/voxrelay/internal/whisper"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultMaxUploadBytes = 512 << 20

type TranscribeHandler struct {
	NewRelay       RelayFactory
	Logger         *zap.Logger
	DefaultModel   string
	MaxUploadBytes int64
}

func (h *TranscribeHandler) Handle(c *gin.Context) {
	log := h.log().With(zap.String("request", uuid.NewString()))

	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	upload, err := c.FormFile("audio_file")
	if err != nil {
		failRequest(c, http.StatusBadRequest, errors.New("audio_file upload is required"))
		return
	}

	opts := whisper.Options{"language": strings.ToLower(strings.TrimSpace(c.DefaultPostForm("language", "auto")))}
	if task := strings.TrimSpace(c.PostForm("task")); task != "" {
		opts["task"] = task
	}
	if raw := strings.TrimSpace(c.PostForm("timestamps")); raw != "" {
		timestamps, err := strconv.ParseBool(raw)
		if err != nil {
			failRequest(c, http.StatusBadRequest, errors.New("timestamps must be a boolean"))
			return
		}
		opts["return_timestamps"] = timestamps
	}

	model := strings.TrimSpace(c.PostForm("model"))
	if model == "" {
		model = h.DefaultModel
	}
	if model == "" {
		model = whisper.DefaultModel
	}

	dir, err := os.MkdirTemp("", "voxrelay-upload-*")
	if err != nil {
		failRequest(c, http.StatusInternalServerError, err)
		return
	}
	defer os.RemoveAll(dir)

	audioPath := filepath.Join(dir, "audio"+filepath.Ext(filepath.Base(upload.Filename)))
	if err := c.SaveUploadedFile(upload, audioPath); err != nil {
		failRequest(c, http.StatusInternalServerError, err)
		return
	}

	var result any
	target, err := h.NewRelay(func(event relay.Event) {
		if event.Type == relay.EventResult {
			result = event.Result
		}
	}, log)
	if err != nil {
		failRequest(c, http.StatusInternalServerError, err)
		return
	}

	ctx := c.Request.Context()
	if err := target.Handle(ctx, relay.Load(model)); err != nil {
		failRequest(c, http.StatusInternalServerError, err)
		return
	}
	if err := target.Handle(ctx, relay.Transcribe(audioPath, opts)); err != nil {
		failRequest(c, http.StatusInternalServerError, err)
		return
	}

	log.Info("upload transcribed", zap.String("model", model), zap.String("file", upload.Filename), zap.Int64("bytes", upload.Size))
	c.JSON(http.StatusOK, gin.H{"status": "success", "result": result})
}

func failRequest(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"status": "error", "message": err.Error()})
}

func (h *TranscribeHandler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

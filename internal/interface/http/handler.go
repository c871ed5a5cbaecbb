package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/smart-notes/internal/domain/catalog"
	"github.com/yanqian/smart-notes/internal/domain/notes"
	"github.com/yanqian/smart-notes/internal/domain/provider"
	"github.com/yanqian/smart-notes/internal/domain/settings"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

const maxBatchNotes = 500

// Handler wires the HTTP transport to domain services.
type Handler struct {
	router   provider.Router
	notesSvc notes.Service
	settings settings.Service
	media    notes.MediaStorage
	logger   *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(router provider.Router, notesSvc notes.Service, settingsSvc settings.Service, media notes.MediaStorage, logger *slog.Logger) *Handler {
	return &Handler{
		router:   router,
		notesSvc: notesSvc,
		settings: settingsSvc,
		media:    media,
		logger:   logger.With("component", "http.handler"),
	}
}

type chatResponse struct {
	Messages []string `json:"messages"`
	provider.ChatResponse
}

type batchRequest struct {
	Notes     []notes.Note `json:"notes"`
	Overwrite bool         `json:"overwrite"`
}

type modelsResponse struct {
	Kind     catalog.Kind `json:"kind"`
	Provider string       `json:"provider"`
	Models   []string     `json:"models"`
}

type streamFrame struct {
	Delta string                 `json:"delta,omitempty"`
	Done  bool                   `json:"done,omitempty"`
	Error string                 `json:"error,omitempty"`
	Final *provider.ChatResponse `json:"response,omitempty"`
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Chat answers one prompt. An empty completion yields an empty messages list.
func (h *Handler) Chat(c *gin.Context) {
	var req provider.ChatRequest
	if !bindJSON(c, &req) {
		return
	}
	resp, err := h.router.Respond(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	out := chatResponse{Messages: []string{}, ChatResponse: resp}
	if resp.Message != "" {
		out.Messages = append(out.Messages, resp.Message)
	}
	c.JSON(http.StatusOK, out)
}

// ChatStream streams completion deltas using Server-Sent Events.
func (h *Handler) ChatStream(c *gin.Context) {
	var req provider.ChatRequest
	if !bindJSON(c, &req) {
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "stream_unsupported", "streaming not supported", nil))
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.WriteHeader(http.StatusOK)
	}
	send := func(frame streamFrame) error {
		payload, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		start()
		if _, err := c.Writer.Write([]byte("data: ")); err != nil {
			return err
		}
		if _, err := c.Writer.Write(payload); err != nil {
			return err
		}
		if _, err := c.Writer.Write([]byte("\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	resp, err := h.router.RespondStream(c.Request.Context(), req, func(delta string) error {
		return send(streamFrame{Delta: delta})
	})
	if err != nil {
		if !started {
			abortWithError(c, fromAppError(err))
			return
		}
		h.logger.Warn("chat stream failed", "error", err)
		_ = send(streamFrame{Done: true, Error: errMessage(err)})
		return
	}
	if err := send(streamFrame{Done: true, Final: &resp}); err != nil {
		h.logger.Warn("write final frame failed", "error", err)
	}
}

// Speak returns synthesized audio bytes.
func (h *Handler) Speak(c *gin.Context) {
	var req provider.TTSRequest
	if !bindJSON(c, &req) {
		return
	}
	audio, err := h.router.Speak(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(audio), audio)
}

// Image returns generated image bytes.
func (h *Handler) Image(c *gin.Context) {
	var req provider.ImageRequest
	if !bindJSON(c, &req) {
		return
	}
	img, err := h.router.Generate(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(img), img)
}

// GenerateNote fills the smart fields of one note.
func (h *Handler) GenerateNote(c *gin.Context) {
	var req notes.GenerateRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.notesSvc.GenerateNote(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

// GenerateBatch fills the smart fields of many notes with bounded concurrency.
func (h *Handler) GenerateBatch(c *gin.Context) {
	var req batchRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Notes) == 0 {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, apperrors.CodeInvalidInput, "notes cannot be empty", nil))
		return
	}
	if len(req.Notes) > maxBatchNotes {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, apperrors.CodeInvalidInput, "too many notes in one batch", nil))
		return
	}
	result, err := h.notesSvc.GenerateBatch(c.Request.Context(), req.Notes, req.Overwrite)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

// NoteHistory lists recent generation attempts for a note.
func (h *Handler) NoteHistory(c *gin.Context) {
	noteID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, apperrors.CodeInvalidInput, "note id must be an integer", err))
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, apperrors.CodeInvalidInput, "limit must be a positive integer", err))
			return
		}
	}
	entries, err := h.notesSvc.History(c.Request.Context(), noteID, limit)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// GetSettings returns the settings with API keys masked.
func (h *Handler) GetSettings(c *gin.Context) {
	current, err := h.settings.Get(c.Request.Context())
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, current.Redacted())
}

// PatchSettings updates scalar settings.
func (h *Handler) PatchSettings(c *gin.Context) {
	var patch settings.Patch
	if !bindJSON(c, &patch) {
		return
	}
	updated, err := h.settings.Update(c.Request.Context(), patch)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, updated.Redacted())
}

// PutPrompt creates or replaces a smart field.
func (h *Handler) PutPrompt(c *gin.Context) {
	var update settings.PromptUpdate
	if !bindJSON(c, &update) {
		return
	}
	updated, err := h.settings.SetPrompt(c.Request.Context(), update)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, updated.Redacted())
}

// DeletePrompt removes a smart field addressed by query parameters.
func (h *Handler) DeletePrompt(c *gin.Context) {
	updated, err := h.settings.RemovePrompt(c.Request.Context(), c.Query("noteType"), c.Query("deckId"), c.Query("field"))
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, updated.Redacted())
}

// Models lists the models of a provider. Without a provider the configured
// one for the kind is used.
func (h *Handler) Models(c *gin.Context) {
	kind := catalog.Kind(strings.ToLower(c.DefaultQuery("kind", string(catalog.KindChat))))
	name := c.Query("provider")
	if name == "" {
		current, err := h.settings.Get(c.Request.Context())
		if err != nil {
			abortWithError(c, fromAppError(err))
			return
		}
		name = configuredProvider(current, kind)
	}
	refresh, _ := strconv.ParseBool(c.Query("refresh"))
	models, err := h.router.Models(c.Request.Context(), kind, name, refresh)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, modelsResponse{Kind: kind, Provider: name, Models: models})
}

// OllamaModels lists the models of the configured Ollama server.
func (h *Handler) OllamaModels(c *gin.Context) {
	models, err := h.router.OllamaModels(c.Request.Context())
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

// Media streams a stored media object.
func (h *Handler) Media(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, apperrors.CodeInvalidInput, "media key is required", nil))
		return
	}
	body, info, err := h.media.Get(c.Request.Context(), key)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	defer body.Close()
	if info.ETag != "" {
		etag := `"` + strings.Trim(info.ETag, `"`) + `"`
		c.Header("ETag", etag)
		if c.GetHeader("If-None-Match") == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}
	c.DataFromReader(http.StatusOK, info.Size, info.MimeType, body, nil)
}

func configuredProvider(s settings.Settings, kind catalog.Kind) string {
	switch kind {
	case catalog.KindTTS:
		return s.TTSProvider
	case catalog.KindImage:
		return s.ImageProvider
	default:
		return s.ChatProvider
	}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if err == io.EOF {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, apperrors.CodeInvalidInput, "request body is required", err))
			return false
		}
		abortWithError(c, NewHTTPError(http.StatusBadRequest, apperrors.CodeInvalidInput, errMessage(err), err))
		return false
	}
	return true
}

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/scribelabs/scribe-live/internal/audio"
	"github.com/scribelabs/scribe-live/internal/batch"
	"github.com/scribelabs/scribe-live/internal/config"
	"github.com/scribelabs/scribe-live/internal/export"
	"github.com/scribelabs/scribe-live/internal/live"
	"github.com/scribelabs/scribe-live/internal/storage/sqlite"
	"github.com/scribelabs/scribe-live/internal/transcript"
	"github.com/scribelabs/scribe-live/pkg/logger"
)

// Handler contains the API handlers
type Handler struct {
	liveManager       *live.Manager
	assembler         *transcript.Assembler
	generator         *batch.Generator
	transcriptStorage *sqlite.TranscriptStorage
	subtitleStorage   *sqlite.SubtitleStorage
	config            *config.Config
	logger            *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	liveManager *live.Manager,
	assembler *transcript.Assembler,
	generator *batch.Generator,
	transcriptStorage *sqlite.TranscriptStorage,
	subtitleStorage *sqlite.SubtitleStorage,
	cfg *config.Config,
	log *logger.Logger,
) *Handler {
	return &Handler{
		liveManager:       liveManager,
		assembler:         assembler,
		generator:         generator,
		transcriptStorage: transcriptStorage,
		subtitleStorage:   subtitleStorage,
		config:            cfg,
		logger:            log.Named("api-handler"),
	}
}

// StartLiveSession starts live microphone transcription
func (h *Handler) StartLiveSession(w http.ResponseWriter, r *http.Request) {
	err := h.liveManager.Start(r.Context())
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, map[string]any{
			"status": "started",
		})

	case errors.Is(err, live.ErrAlreadyActive):
		WriteJSON(w, http.StatusConflict, map[string]any{
			"error": err.Error(),
		})

	case errors.Is(err, live.ErrLiveDisabled):
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": err.Error(),
		})

	case errors.Is(err, audio.ErrDeviceUnavailable):
		h.logger.Error("Failed to open audio device", logger.Error(err))
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": err.Error(),
		})

	default:
		h.logger.Error("Failed to start live session", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error": err.Error(),
		})
	}
}

// StopLiveSession stops the active live transcription session
func (h *Handler) StopLiveSession(w http.ResponseWriter, r *http.Request) {
	h.liveManager.Stop()
	WriteJSON(w, http.StatusOK, map[string]any{
		"status": "stopped",
	})
}

// GetTranscripts returns committed transcript entries with pagination
func (h *Handler) GetTranscripts(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)

	var (
		records []*sqlite.TranscriptRecord
		err     error
	)

	// Optional time range filter
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")
	if startStr != "" && endStr != "" {
		startTime, startErr := time.Parse(time.RFC3339, startStr)
		endTime, endErr := time.Parse(time.RFC3339, endStr)
		if startErr != nil || endErr != nil {
			WriteJSON(w, http.StatusBadRequest, map[string]any{
				"error": "start and end must be RFC3339 timestamps",
			})
			return
		}
		records, err = h.transcriptStorage.GetTranscriptsByTimeRange(startTime, endTime, limit, offset)
	} else {
		records, err = h.transcriptStorage.GetTranscripts(limit, offset)
	}

	if err != nil {
		h.logger.Error("Failed to get transcripts", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "failed to get transcripts",
		})
		return
	}

	if records == nil {
		records = []*sqlite.TranscriptRecord{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"transcripts": records,
		"count":       len(records),
		"pending":     h.assembler.Pending(),
	})
}

// ClearTranscripts wipes the committed transcript log
func (h *Handler) ClearTranscripts(w http.ResponseWriter, r *http.Request) {
	if err := h.assembler.OnClear(); err != nil {
		WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "failed to clear transcripts",
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"status": "cleared",
	})
}

// GenerateSubtitles accepts a media file upload and generates timed subtitles
func (h *Handler) GenerateSubtitles(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(h.config.Batch.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error": "invalid upload: " + err.Error(),
		})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error": "missing file field",
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read upload", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "failed to read upload",
		})
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	h.logger.Info("Received subtitle generation request",
		logger.String("filename", header.Filename),
		logger.String("mime_type", mimeType),
		logger.Int("size_bytes", len(data)))

	segments, err := h.generator.GenerateSubtitles(r.Context(), data, mimeType)
	if err != nil {
		h.logger.Error("Subtitle generation failed", logger.Error(err))
		WriteJSON(w, http.StatusBadGateway, map[string]any{
			"error": err.Error(),
		})
		return
	}

	// Persist the segments, replacing any previous job
	jobID := uuid.New().String()
	records := make([]*sqlite.SubtitleRecord, 0, len(segments))
	for i, seg := range segments {
		records = append(records, &sqlite.SubtitleRecord{
			JobID:    jobID,
			Seq:      i,
			StartSec: seg.Start,
			EndSec:   seg.End,
			Content:  seg.Text,
		})
	}
	if err := h.subtitleStorage.ReplaceSegments(records); err != nil {
		h.logger.Error("Failed to store subtitle segments", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "failed to store subtitles",
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"job_id":   jobID,
		"segments": segments,
		"count":    len(segments),
	})
}

// GetSubtitles returns the stored subtitle segments
func (h *Handler) GetSubtitles(w http.ResponseWriter, r *http.Request) {
	records, err := h.subtitleStorage.GetSegments()
	if err != nil {
		h.logger.Error("Failed to get subtitle segments", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "failed to get subtitles",
		})
		return
	}

	if records == nil {
		records = []*sqlite.SubtitleRecord{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"segments": records,
		"count":    len(records),
	})
}

// ExportSubtitles returns the stored subtitles as a downloadable .srt file
func (h *Handler) ExportSubtitles(w http.ResponseWriter, r *http.Request) {
	records, err := h.subtitleStorage.GetSegments()
	if err != nil {
		h.logger.Error("Failed to get subtitle segments", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "failed to get subtitles",
		})
		return
	}

	if len(records) == 0 {
		WriteJSON(w, http.StatusNotFound, map[string]any{
			"error": "no subtitles available",
		})
		return
	}

	segments := make([]batch.Segment, 0, len(records))
	for _, rec := range records {
		segments = append(segments, batch.Segment{
			Start: rec.StartSec,
			End:   rec.EndSec,
			Text:  rec.Content,
		})
	}

	w.Header().Set("Content-Type", "application/x-subrip")
	w.Header().Set("Content-Disposition", `attachment; filename="subtitles.srt"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(export.FormatSRT(segments)))
}

// GetStatus returns the live session state
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"live_active":   h.liveManager.Active(),
		"session_state": h.liveManager.State().String(),
		"server_time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// parsePaginationParams extracts limit and offset query parameters
func parsePaginationParams(r *http.Request) (int, int) {
	limit := 500
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	return limit, offset
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

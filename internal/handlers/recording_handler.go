package handlers

import (
	"errors"
	"io"
	"time"

	"github.com/casevault/casevault/internal/dto"
	"github.com/casevault/casevault/internal/middleware"
	"github.com/casevault/casevault/internal/models"
	"github.com/casevault/casevault/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type RecordingHandler struct {
	caseService          *services.CaseService
	audioService         *services.AudioService
	transcriptionService *services.TranscriptionService
	summarizationService *services.SummarizationService
	auditService         *services.AuditService
}

func NewRecordingHandler(
	caseService *services.CaseService,
	audioService *services.AudioService,
	transcriptionService *services.TranscriptionService,
	summarizationService *services.SummarizationService,
	auditService *services.AuditService,
) *RecordingHandler {
	return &RecordingHandler{
		caseService:          caseService,
		audioService:         audioService,
		transcriptionService: transcriptionService,
		summarizationService: summarizationService,
		auditService:         auditService,
	}
}

// Upload accepts a multipart audio payload plus recording metadata, encrypts
// and stores the audio, and registers the recording in pending state.
func (h *RecordingHandler) Upload(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	caseID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid case id",
		})
	}

	// The case must exist and belong to the caller before anything is
	// written to disk.
	if _, err := h.caseService.GetByID(caseID, userID, isAdmin(c)); err != nil {
		return caseError(c, err)
	}

	fileHeader, err := c.FormFile("audio")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Audio file is required",
		})
	}

	f, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to read audio file",
		})
	}
	defer f.Close()

	audio, err := io.ReadAll(f)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to read audio file",
		})
	}
	if len(audio) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Audio file is empty",
		})
	}

	recordingDate := time.Now().UTC()
	if raw := c.FormValue("recording_date"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: "recording_date must be RFC3339",
			})
		}
		recordingDate = parsed
	}

	stored, err := h.audioService.Store(audio, caseID, userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to store audio",
		})
	}

	rec, err := h.caseService.CreateRecording(caseID, userID, services.NewRecording{
		RecordingDate:   recordingDate,
		RecordingType:   c.FormValue("recording_type"),
		FilePath:        stored.FilePath,
		FileSize:        stored.FileSize,
		DurationSeconds: stored.DurationSeconds,
		AdditionalNotes: c.FormValue("additional_notes"),
		Tags:            c.FormValue("tags"),
	})
	if err != nil {
		// The registration failed, so the ciphertext on disk is orphaned.
		_ = h.audioService.Delete(stored.FilePath)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(rec)
}

func (h *RecordingHandler) Get(c *fiber.Ctx) error {
	rec, ok := h.loadRecording(c)
	if !ok {
		return nil
	}
	return c.JSON(rec)
}

// Audio decrypts and returns the raw payload. Every access is audited.
func (h *RecordingHandler) Audio(c *fiber.Ctx) error {
	rec, ok := h.loadRecording(c)
	if !ok {
		return nil
	}

	userID, _ := middleware.CurrentUserID(c)
	audio, err := h.audioService.Retrieve(rec.FilePath)
	if err != nil {
		if errors.Is(err, services.ErrAudioDecrypt) {
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
				Error: true, Message: "Audio payload could not be decrypted",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to read audio",
		})
	}

	h.auditService.RecordAsync(services.AuditEntry{
		UserID:     userID,
		Action:     models.AuditAudioAccessed,
		TargetType: "recording",
		TargetID:   &rec.ID,
		IPAddress:  c.IP(),
	})

	c.Set(fiber.HeaderContentType, "audio/wav")
	return c.Send(audio)
}

func (h *RecordingHandler) Transcribe(c *fiber.Ctx) error {
	rec, ok := h.loadRecording(c)
	if !ok {
		return nil
	}
	userID, _ := middleware.CurrentUserID(c)

	updated, err := h.transcriptionService.Transcribe(c.Context(), rec.ID, userID, c.QueryBool("force", false))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAlreadyProcessing):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		case errors.Is(err, services.ErrInvalidTransition):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		// Collaborator and storage failures: the recording is in failed
		// state and the caller may retry.
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(),
		})
	}

	return c.JSON(updated)
}

func (h *RecordingHandler) Summarize(c *fiber.Ctx) error {
	rec, ok := h.loadRecording(c)
	if !ok {
		return nil
	}
	userID, _ := middleware.CurrentUserID(c)

	var req dto.SummarizeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: "Invalid request body",
			})
		}
	}

	updated, err := h.summarizationService.Summarize(c.Context(), rec.ID, userID, req.Instructions)
	if err != nil {
		if errors.Is(err, services.ErrNoTranscript) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(),
		})
	}

	return c.JSON(updated)
}

func (h *RecordingHandler) Edit(c *fiber.Ctx) error {
	rec, ok := h.loadRecording(c)
	if !ok {
		return nil
	}
	userID, _ := middleware.CurrentUserID(c)

	var req dto.EditRecordingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	updated, err := h.caseService.EditRecording(rec.ID, userID, isAdmin(c), services.RecordingEdit{
		AdditionalNotes: req.AdditionalNotes,
		Tags:            req.Tags,
		SummaryText:     req.SummaryText,
	})
	if err != nil {
		if errors.Is(err, services.ErrNoTranscript) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to update recording",
		})
	}

	return c.JSON(updated)
}

// loadRecording resolves the :id param and enforces ownership. On failure it
// writes the error response and returns ok=false.
func (h *RecordingHandler) loadRecording(c *fiber.Ctx) (*models.Recording, bool) {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		_ = c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
		return nil, false
	}

	recordingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid recording id",
		})
		return nil, false
	}

	rec, err := h.caseService.GetRecording(recordingID, userID, isAdmin(c))
	if err != nil {
		_ = caseError(c, err)
		return nil, false
	}
	return rec, true
}

func caseError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrCaseNotFound), errors.Is(err, services.ErrRecordingNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(),
		})
	case errors.Is(err, services.ErrNotCaseOwner):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(),
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
		Error: true, Message: "Internal server error",
	})
}

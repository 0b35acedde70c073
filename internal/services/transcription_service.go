package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/casevault/casevault/internal/config"
	"github.com/casevault/casevault/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrAlreadyProcessing = errors.New("recording is already being processed")
	ErrInvalidTransition = errors.New("recording is not in a transcribable state")
	ErrTranscription     = errors.New("transcription failed")
)

// TranscriptSegment is one timed piece of a transcript.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	Text  string  `json:"text"`
}

// TranscriptResult is what a Transcriber collaborator returns.
type TranscriptResult struct {
	Text     string
	Segments []TranscriptSegment
}

// Transcriber is the external speech-to-text capability the pipeline
// depends on but does not implement.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (*TranscriptResult, error)
}

// TranscriptionService drives a recording from pending through processing to
// completed or failed. Status transitions are compare-and-set updates so
// concurrent calls cannot both claim the same recording.
type TranscriptionService struct {
	db          *gorm.DB
	vault       *AudioService
	transcriber Transcriber
	audit       *AuditService
	timeout     time.Duration
}

func NewTranscriptionService(db *gorm.DB, vault *AudioService, transcriber Transcriber, audit *AuditService, timeout time.Duration) *TranscriptionService {
	return &TranscriptionService{
		db:          db,
		vault:       vault,
		transcriber: transcriber,
		audit:       audit,
		timeout:     timeout,
	}
}

// Transcribe claims the recording, decrypts its payload, invokes the
// collaborator and persists the outcome. A failing run always lands the
// recording in failed, never stuck in processing. force additionally allows
// re-running a completed recording, overwriting its transcript.
func (s *TranscriptionService) Transcribe(ctx context.Context, recordingID, actorID uuid.UUID, force bool) (*models.Recording, error) {
	var rec models.Recording
	if err := s.db.First(&rec, "id = ?", recordingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordingNotFound
		}
		return nil, err
	}

	fromStates := []string{models.StatusPending, models.StatusFailed}
	if force {
		fromStates = append(fromStates, models.StatusCompleted)
	}

	now := time.Now().UTC()
	res := s.db.Model(&models.Recording{}).
		Where("id = ? AND transcription_status IN ?", recordingID, fromStates).
		Updates(map[string]interface{}{
			"transcription_status":     models.StatusProcessing,
			"transcription_started_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Someone else holds the recording, or it is completed and force
		// was not given.
		if rec.TranscriptionStatus == models.StatusProcessing {
			return nil, ErrAlreadyProcessing
		}
		return nil, fmt.Errorf("%w: status is %s", ErrInvalidTransition, rec.TranscriptionStatus)
	}

	slog.Info("transcription started", "recording_id", recordingID.String())

	audio, err := s.vault.Retrieve(rec.FilePath)
	if err != nil {
		return nil, s.fail(recordingID, actorID, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.transcriber.Transcribe(callCtx, audio)
	if err != nil {
		return nil, s.fail(recordingID, actorID, fmt.Errorf("%w: %v", ErrTranscription, err))
	}

	transcript := FormatTranscript(result)

	completedAt := time.Now().UTC()
	res = s.db.Model(&models.Recording{}).
		Where("id = ? AND transcription_status = ?", recordingID, models.StatusProcessing).
		Updates(map[string]interface{}{
			"transcription_status":       models.StatusCompleted,
			"transcript_text":            transcript,
			"transcription_completed_at": completedAt,
		})
	if res.Error != nil {
		return nil, s.fail(recordingID, actorID, res.Error)
	}

	s.audit.RecordAsync(AuditEntry{
		UserID:     actorID,
		Action:     models.AuditTranscriptionCompleted,
		TargetType: "recording",
		TargetID:   &recordingID,
		Details:    map[string]interface{}{"transcript_chars": len(transcript)},
	})
	slog.Info("transcription completed", "recording_id", recordingID.String(), "chars", len(transcript))

	var updated models.Recording
	if err := s.db.First(&updated, "id = ?", recordingID).Error; err != nil {
		return nil, err
	}
	return &updated, nil
}

// fail moves a processing recording to failed and returns the original
// error as the caller's result. No transcript is recorded.
func (s *TranscriptionService) fail(recordingID, actorID uuid.UUID, cause error) error {
	res := s.db.Model(&models.Recording{}).
		Where("id = ? AND transcription_status = ?", recordingID, models.StatusProcessing).
		Update("transcription_status", models.StatusFailed)
	if res.Error != nil {
		slog.Error("failed to mark recording failed", "recording_id", recordingID.String(), "error", res.Error)
	}

	s.audit.RecordAsync(AuditEntry{
		UserID:     actorID,
		Action:     models.AuditTranscriptionFailed,
		TargetType: "recording",
		TargetID:   &recordingID,
		Details:    map[string]interface{}{"error": cause.Error()},
	})
	slog.Error("transcription failed", "recording_id", recordingID.String(), "error", cause)
	return cause
}

// FormatTranscript renders a transcript as one "[MM:SS] text" line per
// segment when timing is available, falling back to plain text.
func FormatTranscript(r *TranscriptResult) string {
	if len(r.Segments) == 0 {
		return r.Text
	}

	lines := make([]string, 0, len(r.Segments))
	for _, seg := range r.Segments {
		lines = append(lines, fmt.Sprintf("[%s] %s", formatTimestamp(seg.Start), strings.TrimSpace(seg.Text)))
	}
	return strings.Join(lines, "\n\n")
}

func formatTimestamp(seconds float64) string {
	mins := int(seconds) / 60
	secs := int(seconds) % 60
	return fmt.Sprintf("%02d:%02d", mins, secs)
}

// --- Whisper client ---

// WhisperTranscriber calls an OpenAI-compatible audio transcription endpoint.
type WhisperTranscriber struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewWhisperTranscriber(cfg *config.Config) *WhisperTranscriber {
	return &WhisperTranscriber{
		apiKey:     cfg.OpenAIAPIKey,
		baseURL:    strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		model:      cfg.TranscriptionModel,
		httpClient: &http.Client{Timeout: cfg.AITimeout},
	}
}

type whisperResponse struct {
	Text     string              `json:"text"`
	Segments []TranscriptSegment `json:"segments"`
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte) (*TranscriptResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, err
	}
	if err := writer.WriteField("model", t.model); err != nil {
		return nil, err
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, err
	}
	if err := writer.WriteField("timestamp_granularities[]", "segment"); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("transcription API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var wr whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("malformed transcription response: %w", err)
	}
	if wr.Text == "" && len(wr.Segments) == 0 {
		return nil, errors.New("transcription response contained no text")
	}

	return &TranscriptResult{Text: wr.Text, Segments: wr.Segments}, nil
}

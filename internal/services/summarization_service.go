package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/casevault/casevault/internal/config"
	"github.com/casevault/casevault/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNoTranscript  = errors.New("recording has no transcript to summarize")
	ErrSummarization = errors.New("summarization failed")
)

// Summarizer is the external case-note generation capability.
type Summarizer interface {
	Summarize(ctx context.Context, transcript, recordingType, instructions string) (string, error)
}

// SummarizationService generates case-note summaries from transcripts.
// Summarization never touches transcription status; its failures are
// reported independently and are retryable without re-transcribing.
type SummarizationService struct {
	db         *gorm.DB
	summarizer Summarizer
	audit      *AuditService
	timeout    time.Duration
}

func NewSummarizationService(db *gorm.DB, summarizer Summarizer, audit *AuditService, timeout time.Duration) *SummarizationService {
	return &SummarizationService{
		db:         db,
		summarizer: summarizer,
		audit:      audit,
		timeout:    timeout,
	}
}

// Summarize generates (or regenerates) the summary for a recording. The
// transcript must already exist; that is checked before any external call.
// Custom instructions, when present, are merged into the generation request.
// Each successful run overwrites the prior summary.
func (s *SummarizationService) Summarize(ctx context.Context, recordingID, actorID uuid.UUID, instructions string) (*models.Recording, error) {
	var rec models.Recording
	if err := s.db.First(&rec, "id = ?", recordingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordingNotFound
		}
		return nil, err
	}

	if rec.TranscriptText == nil || *rec.TranscriptText == "" {
		return nil, ErrNoTranscript
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	summary, err := s.summarizer.Summarize(callCtx, *rec.TranscriptText, rec.RecordingType, instructions)
	if err != nil {
		slog.Error("summarization failed", "recording_id", recordingID.String(), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSummarization, err)
	}

	if err := s.db.Model(&models.Recording{}).Where("id = ?", recordingID).
		Update("summary_text", summary).Error; err != nil {
		return nil, err
	}

	s.audit.RecordAsync(AuditEntry{
		UserID:     actorID,
		Action:     models.AuditSummaryGenerated,
		TargetType: "recording",
		TargetID:   &recordingID,
		Details:    map[string]interface{}{"summary_chars": len(summary), "regenerated": rec.SummaryText != nil},
	})
	slog.Info("summary generated", "recording_id", recordingID.String(), "chars", len(summary))

	rec.SummaryText = &summary
	return &rec, nil
}

// --- prompts ---

const caseNoteSystemPrompt = `You are an expert social worker assistant specializing in writing professional case notes.

Your task is to generate clear, concise, and professional case notes from conversation transcripts.

Guidelines:
- Write in third person, professional tone
- Use clear, objective language
- Focus on facts and observations
- Organize information logically
- Include relevant context
- Highlight key points and action items
- Keep notes concise but comprehensive
- Use appropriate social work terminology

Structure your case notes with these sections:
1. **Overview**: Brief summary of the interaction
2. **Key Discussion Points**: Main topics covered
3. **Client Situation**: Current circumstances and concerns
4. **Decisions/Agreements**: What was decided or agreed upon
5. **Action Items**: Next steps and follow-up needed
6. **Risk Assessment** (if applicable): Any concerns or risks identified

Write professional case notes suitable for official records.`

// interactionLabel maps a recording type to the phrasing used in the prompt.
func interactionLabel(recordingType string) string {
	switch recordingType {
	case models.RecordingTypePhone:
		return "phone call"
	case models.RecordingTypeHomeVisit:
		return "home visit"
	case models.RecordingTypeOffice:
		return "office meeting"
	}
	return "interaction"
}

// buildUserPrompt assembles the generation request, merging in custom
// instructions when the caller supplied any.
func buildUserPrompt(transcript, recordingType, instructions string) string {
	if instructions != "" {
		return fmt.Sprintf(`Please generate a professional case note from this %s transcript.

CUSTOM INSTRUCTIONS: %s

---
TRANSCRIPT:
%s
---

Generate the case note following the system instructions and custom instructions provided.`,
			interactionLabel(recordingType), instructions, transcript)
	}

	return fmt.Sprintf(`Please generate a professional case note from this %s transcript:

---
TRANSCRIPT:
%s
---

Generate a structured case note following the format specified in the system prompt.`,
		interactionLabel(recordingType), transcript)
}

// --- chat-completions client ---

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ChatSummarizer calls an OpenAI-compatible chat-completions endpoint with
// the fixed case-note prompt.
type ChatSummarizer struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

func NewChatSummarizer(cfg *config.Config) *ChatSummarizer {
	return &ChatSummarizer{
		apiKey:      cfg.OpenAIAPIKey,
		baseURL:     strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		model:       cfg.SummaryModel,
		maxTokens:   cfg.SummaryMaxTokens,
		temperature: cfg.SummaryTemperature,
		httpClient:  &http.Client{Timeout: cfg.AITimeout},
	}
}

func (c *ChatSummarizer) Summarize(ctx context.Context, transcript, recordingType, instructions string) (string, error) {
	reqBody := openAIChatRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: caseNoteSystemPrompt},
			{Role: "user", Content: buildUserPrompt(transcript, recordingType, instructions)},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("summarization API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var chatResp openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("malformed summarization response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", errors.New("summarization response contained no choices")
	}

	summary := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if summary == "" {
		return "", errors.New("summarization response was empty")
	}
	return summary, nil
}

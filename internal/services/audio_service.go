package services

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/casevault/casevault/internal/config"
	"github.com/casevault/casevault/internal/cryptox"
	"github.com/google/uuid"
)

var ErrAudioDecrypt = errors.New("failed to decrypt audio payload")

// Fallback bitrate assumption for payloads without a recognizable WAV
// header: 16 kHz, 16-bit, mono.
const fallbackBytesPerSecond = 32000

const wavHeaderSize = 44

// StoredAudio describes an encrypted payload written to disk. FilePath is
// relative to the data directory so the deployment can be relocated.
type StoredAudio struct {
	FilePath        string
	FileSize        int64
	DurationSeconds float64
}

// AudioService encrypts audio payloads on write and decrypts on read. All
// files on disk are ciphertext; decryption fails closed on tampering or key
// mismatch.
type AudioService struct {
	dataDir  string
	audioDir string
	key      []byte
}

func NewAudioService(cfg *config.Config) (*AudioService, error) {
	if err := os.MkdirAll(cfg.AudioDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}

	key, err := cryptox.LoadOrCreateKey(filepath.Join(cfg.DataDir, "audio_encryption.key"))
	if err != nil {
		return nil, fmt.Errorf("failed to load encryption key: %w", err)
	}

	return &AudioService{
		dataDir:  cfg.DataDir,
		audioDir: cfg.AudioDir,
		key:      key,
	}, nil
}

// Store encrypts the payload and writes it under a per-call unique filename
// derived from case, uploader and a second-resolution timestamp.
func (s *AudioService) Store(audio []byte, caseID, userID uuid.UUID) (*StoredAudio, error) {
	encrypted, err := cryptox.Seal(audio, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt audio: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	base := fmt.Sprintf("case_%s_user_%s_%s", caseID, userID, stamp)

	var fullPath string
	for i := 0; ; i++ {
		name := base + ".enc"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.enc", base, i)
		}
		fullPath = filepath.Join(s.audioDir, name)

		f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to write audio file: %w", err)
		}
		_, werr := f.Write(encrypted)
		cerr := f.Close()
		if werr != nil {
			return nil, fmt.Errorf("failed to write audio file: %w", werr)
		}
		if cerr != nil {
			return nil, fmt.Errorf("failed to write audio file: %w", cerr)
		}
		break
	}

	rel, err := filepath.Rel(s.dataDir, fullPath)
	if err != nil {
		return nil, fmt.Errorf("audio directory is outside the data directory: %w", err)
	}

	return &StoredAudio{
		FilePath:        rel,
		FileSize:        int64(len(encrypted)),
		DurationSeconds: EstimateDuration(audio),
	}, nil
}

// Retrieve reads and decrypts a stored payload. Corrupted ciphertext or a
// wrong key yields an error, never garbled audio.
func (s *AudioService) Retrieve(relPath string) ([]byte, error) {
	encrypted, err := os.ReadFile(filepath.Join(s.dataDir, relPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}

	audio, err := cryptox.Open(encrypted, s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAudioDecrypt, err)
	}
	return audio, nil
}

func (s *AudioService) Delete(relPath string) error {
	err := os.Remove(filepath.Join(s.dataDir, relPath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// EstimateDuration returns the payload duration in seconds, rounded to two
// decimals. WAV payloads are computed from the header byte rate; anything
// else is estimated from size at the fallback bitrate. A value is always
// produced.
func EstimateDuration(audio []byte) float64 {
	if len(audio) >= wavHeaderSize &&
		string(audio[0:4]) == "RIFF" && string(audio[8:12]) == "WAVE" {
		byteRate := binary.LittleEndian.Uint32(audio[28:32])
		if byteRate > 0 {
			return round2(float64(len(audio)-wavHeaderSize) / float64(byteRate))
		}
	}
	return round2(float64(len(audio)) / fallbackBytesPerSecond)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package services

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wavPayload(byteRate uint32, dataLen int) []byte {
	buf := make([]byte, wavHeaderSize+dataLen)
	copy(buf[0:4], "RIFF")
	copy(buf[8:12], "WAVE")
	binary.LittleEndian.PutUint32(buf[28:32], byteRate)
	return buf
}

func TestAudioService_StoreRetrieveRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	svc, err := NewAudioService(cfg)
	require.NoError(t, err)

	// Key file is created on first use.
	_, err = os.Stat(filepath.Join(cfg.DataDir, "audio_encryption.key"))
	require.NoError(t, err)

	payload := wavPayload(32000, 64000)
	caseID, userID := uuid.New(), uuid.New()

	stored, err := svc.Store(payload, caseID, userID)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stored.FilePath, "audio"+string(filepath.Separator)),
		"path must be relative to the data dir: %s", stored.FilePath)
	assert.Contains(t, stored.FilePath, "case_"+caseID.String())
	assert.Contains(t, stored.FilePath, "user_"+userID.String())
	assert.True(t, strings.HasSuffix(stored.FilePath, ".enc"))
	assert.Greater(t, stored.FileSize, int64(len(payload)), "stored size is the ciphertext size")
	assert.InDelta(t, 2.0, stored.DurationSeconds, 0.01)

	// On-disk bytes are ciphertext, not the payload.
	onDisk, err := os.ReadFile(filepath.Join(cfg.DataDir, stored.FilePath))
	require.NoError(t, err)
	assert.NotEqual(t, payload, onDisk)
	assert.NotContains(t, string(onDisk), "WAVE")

	got, err := svc.Retrieve(stored.FilePath)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestAudioService_UniqueFilenames(t *testing.T) {
	svc, err := NewAudioService(testConfig(t))
	require.NoError(t, err)

	caseID, userID := uuid.New(), uuid.New()
	a, err := svc.Store([]byte("first"), caseID, userID)
	require.NoError(t, err)
	b, err := svc.Store([]byte("second"), caseID, userID)
	require.NoError(t, err)

	// Same case, user and second-resolution timestamp must still not collide.
	assert.NotEqual(t, a.FilePath, b.FilePath)

	gotA, err := svc.Retrieve(a.FilePath)
	require.NoError(t, err)
	gotB, err := svc.Retrieve(b.FilePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), gotA)
	assert.Equal(t, []byte("second"), gotB)
}

func TestAudioService_TamperedFileFailsClosed(t *testing.T) {
	cfg := testConfig(t)
	svc, err := NewAudioService(cfg)
	require.NoError(t, err)

	stored, err := svc.Store([]byte("sensitive audio"), uuid.New(), uuid.New())
	require.NoError(t, err)

	full := filepath.Join(cfg.DataDir, stored.FilePath)
	raw, err := os.ReadFile(full)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(full, raw, 0o600))

	_, err = svc.Retrieve(stored.FilePath)
	assert.ErrorIs(t, err, ErrAudioDecrypt)
}

func TestAudioService_SharedKeyAcrossInstances(t *testing.T) {
	cfg := testConfig(t)
	first, err := NewAudioService(cfg)
	require.NoError(t, err)

	stored, err := first.Store([]byte("payload"), uuid.New(), uuid.New())
	require.NoError(t, err)

	// A second instance over the same data dir loads the persisted key.
	second, err := NewAudioService(cfg)
	require.NoError(t, err)

	got, err := second.Retrieve(stored.FilePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestAudioService_Delete(t *testing.T) {
	cfg := testConfig(t)
	svc, err := NewAudioService(cfg)
	require.NoError(t, err)

	stored, err := svc.Store([]byte("payload"), uuid.New(), uuid.New())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(stored.FilePath))
	_, err = os.Stat(filepath.Join(cfg.DataDir, stored.FilePath))
	assert.True(t, os.IsNotExist(err))

	// Deleting an already-gone file is not an error.
	assert.NoError(t, svc.Delete(stored.FilePath))
}

func TestEstimateDuration(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    float64
	}{
		{"wav header byte rate", wavPayload(32000, 320000), 10.0},
		{"wav header other rate", wavPayload(176400, 882000), 5.0},
		{"wav zero byte rate falls back", wavPayload(0, 16000), 0.5 + float64(wavHeaderSize)/32000},
		{"non-wav uses fallback rate", make([]byte, 160000), 5.0},
		{"tiny payload", make([]byte, 10), 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EstimateDuration(tt.payload), 0.011)
		})
	}
}

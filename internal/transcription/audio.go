package transcription

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// NormalizeAudio converts an uploaded recording to 16kHz mono WAV so the
// speech service gets a consistent input regardless of the classroom device
// that produced it. The normalized file is written into tempDir. When ffmpeg
// is not installed the original file is used as-is; the speech service
// accepts the raw upload formats too.
func NormalizeAudio(inputPath, tempDir string) (string, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return inputPath, nil
	}

	outputPath := filepath.Join(tempDir, fmt.Sprintf("normalized_%s.wav", uuid.New().String()))

	cmd := exec.Command("ffmpeg",
		"-i", inputPath,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-y",
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg failed: %v\nOutput: %s", err, string(output))
	}

	return outputPath, nil
}

// ValidateAudioFormat checks if the file format is supported
func ValidateAudioFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	supportedFormats := []string{".wav", ".mp3", ".m4a", ".flac", ".ogg", ".wma", ".aac"}

	for _, format := range supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

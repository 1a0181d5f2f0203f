package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fmueller/voxrelay/internal/whisper"
)

const blankAudioToken = "[BLANK_AUDIO]"

func isBlankTranscript(transcript string) bool {
	trimmed := strings.TrimSpace(transcript)
	if trimmed == "" {
		return true
	}

	return strings.EqualFold(trimmed, blankAudioToken)
}

func noSpeechHint() string {
	return "No speech detected. Check that the audio file is not silent and the language matches, then try again."
}

func transcriptText(payload any) (text string, ok bool) {
	switch v := payload.(type) {
	case whisper.Result:
		return v.Text, true
	case *whisper.Result:
		if v == nil {
			return "", false
		}
		return v.Text, true
	case map[string]any:
		text, ok := v["text"].(string)
		return text, ok
	case string:
		return v, true
	default:
		return "", false
	}
}

func writeResult(w io.Writer, payload any, format string) error {
	switch format {
	case outputText:
		if text, ok := transcriptText(payload); ok {
			_, err := fmt.Fprintln(w, strings.TrimSpace(text))
			return err
		}
		// Payloads without text are still worth showing.
		fallthrough
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	default:
		return fmt.Errorf("unsupported output format %q (use %s or %s)", format, outputText, outputJSON)
	}
}

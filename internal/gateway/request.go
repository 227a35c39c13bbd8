package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/lexiqai/tts-gateway/internal/config"
	"github.com/lexiqai/tts-gateway/internal/tts"
)

const voiceSettingsField = "voice_settings"

// Defaults fill in optional request fields
type Defaults struct {
	VoiceID         string
	ModelID         string
	Stability       float64
	SimilarityBoost float64
}

// DefaultsFromConfig reads the configured synthesis defaults
func DefaultsFromConfig(cfg *config.Config) Defaults {
	return Defaults{
		VoiceID:         cfg.DefaultVoiceID,
		ModelID:         cfg.DefaultModelID,
		Stability:       cfg.DefaultStability,
		SimilarityBoost: cfg.DefaultSimilarityBoost,
	}
}

// parseBody decodes a JSON or form-encoded body into generic fields.
// Other content types yield no fields.
func parseBody(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &MalformedPayloadError{Err: err, TooLarge: true}
		}
		return nil, &MalformedPayloadError{Err: err}
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return parseJSON(data)
	case mediaType == "application/x-www-form-urlencoded":
		return parseForm(data)
	}
	return map[string]any{}, nil
}

func parseJSON(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, &MalformedPayloadError{Err: err}
	}
	if dec.More() {
		return nil, &MalformedPayloadError{Err: errors.New("trailing data after JSON value")}
	}

	// Only objects and arrays are accepted at the top level; an array carries no fields
	switch v := value.(type) {
	case map[string]any:
		return v, nil
	case []any:
		return map[string]any{}, nil
	}
	return nil, &MalformedPayloadError{Err: fmt.Errorf("top-level JSON value must be an object or array, got %T", value)}
}

// parseForm maps url-encoded fields, expanding voice_settings[key]=value into a nested object
func parseForm(data []byte) (map[string]any, error) {
	values, err := url.ParseQuery(string(data))
	if err != nil {
		return nil, &MalformedPayloadError{Err: err}
	}

	fields := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}

		if inner, ok := bracketKey(key, voiceSettingsField); ok {
			settings, _ := fields[voiceSettingsField].(map[string]any)
			if settings == nil {
				settings = make(map[string]any)
				fields[voiceSettingsField] = settings
			}
			settings[inner] = vals[0]
			continue
		}
		fields[key] = vals[0]
	}
	return fields, nil
}

func bracketKey(key, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(key, prefix+"[")
	if !ok {
		return "", false
	}
	inner, ok := strings.CutSuffix(rest, "]")
	if !ok || inner == "" {
		return "", false
	}
	return inner, true
}

// resolveRequest validates the fields and applies defaults
func resolveRequest(fields map[string]any, defaults Defaults) (tts.Request, error) {
	text, err := resolveText(fields["text"])
	if err != nil {
		return tts.Request{}, err
	}

	voice, err := resolveIdentifier("voice", fields["voice"], defaults.VoiceID)
	if err != nil {
		return tts.Request{}, err
	}
	model, err := resolveIdentifier("model", fields["model"], defaults.ModelID)
	if err != nil {
		return tts.Request{}, err
	}
	settings, err := resolveVoiceSettings(fields[voiceSettingsField], defaults)
	if err != nil {
		return tts.Request{}, err
	}

	return tts.Request{
		Text:          text,
		VoiceID:       voice,
		ModelID:       model,
		VoiceSettings: settings,
	}, nil
}

// resolveText returns the text with every double quote removed
func resolveText(value any) (string, error) {
	text, ok := value.(string)
	if !ok {
		if isUnset(value) {
			return "", &ValidationError{Field: "text", Message: msgTextRequired}
		}
		return "", &ValidationError{Field: "text", Message: "Text must be a string."}
	}

	text = strings.ReplaceAll(text, `"`, "")
	if text == "" {
		return "", &ValidationError{Field: "text", Message: msgTextRequired}
	}
	return text, nil
}

// isUnset reports whether an optional field should fall back to its default.
// Besides absence this accepts the values older clients send for "not set":
// null, false, empty or whitespace strings, 0 and "0".
func isUnset(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case bool:
		return !v
	case string:
		s := strings.TrimSpace(v)
		return s == "" || s == "0"
	case json.Number:
		f, err := v.Float64()
		return err == nil && f == 0
	}
	return false
}

func resolveIdentifier(field string, value any, fallback string) (string, error) {
	if isUnset(value) {
		return fallback, nil
	}
	s, ok := value.(string)
	if !ok {
		return "", &ValidationError{Field: field, Message: fmt.Sprintf("%s must be a string.", capitalize(field))}
	}
	return strings.TrimSpace(s), nil
}

func resolveVoiceSettings(value any, defaults Defaults) (tts.VoiceSettings, error) {
	settings := tts.VoiceSettings{
		Stability:       defaults.Stability,
		SimilarityBoost: defaults.SimilarityBoost,
	}
	if isUnset(value) {
		return settings, nil
	}

	fields, ok := value.(map[string]any)
	if !ok {
		return settings, &ValidationError{Field: voiceSettingsField, Message: "Voice settings must be an object."}
	}

	if v, ok := fields["stability"]; ok && v != nil {
		f, err := toFloat("stability", v)
		if err != nil {
			return settings, err
		}
		settings.Stability = f
	}
	if v, ok := fields["similarity_boost"]; ok && v != nil {
		f, err := toFloat("similarity_boost", v)
		if err != nil {
			return settings, err
		}
		settings.SimilarityBoost = f
	}
	if v, ok := fields["style"]; ok && v != nil {
		f, err := toFloat("style", v)
		if err != nil {
			return settings, err
		}
		settings.Style = &f
	}
	if v, ok := fields["use_speaker_boost"]; ok && v != nil {
		b, err := toBool("use_speaker_boost", v)
		if err != nil {
			return settings, err
		}
		settings.UseSpeakerBoost = &b
	}

	return settings, nil
}

// toFloat accepts JSON numbers and numeric strings, the latter being all a form can carry
func toFloat(field string, value any) (float64, error) {
	var (
		f   float64
		err error
	)
	switch v := value.(type) {
	case json.Number:
		f, err = v.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		err = errors.New("not a number")
	}
	if err != nil {
		return 0, &ValidationError{
			Field:   voiceSettingsField + "." + field,
			Message: fmt.Sprintf("voice_settings.%s must be a number.", field),
		}
	}
	return f, nil
}

func toBool(field string, value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b, nil
		}
	}
	return false, &ValidationError{
		Field:   voiceSettingsField + "." + field,
		Message: fmt.Sprintf("voice_settings.%s must be a boolean.", field),
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

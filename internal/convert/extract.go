package convert

import (
	"encoding/json"
	"fmt"
	"strings"
)

// assetPointerTypes are multimodal parts that reference uploaded media rather
// than carrying text.
var assetPointerTypes = map[string]bool{
	"image_asset_pointer":                      true,
	"audio_asset_pointer":                      true,
	"real_time_user_audio_video_asset_pointer": true,
	"video_container_asset_pointer":            true,
}

// bestEffortKeys is the priority order for pulling text out of content
// variants that have no dedicated extraction rule.
var bestEffortKeys = []string{
	"text",
	"content",
	"summary",
	"title",
	"name",
	"user_instructions",
	"user_profile",
}

// ExtractText renders a message content object as plain text. The export
// format grows new content_type variants over time, so unknown types degrade
// to best-effort extraction with a bracketed placeholder rather than failing
// the conversion.
func ExtractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var content map[string]any
	if err := json.Unmarshal(raw, &content); err != nil || content == nil {
		return ""
	}

	contentType := "unknown"
	if v, ok := content["content_type"].(string); ok && v != "" {
		contentType = v
	}

	switch contentType {
	case "text":
		if parts, ok := content["parts"].([]any); ok {
			var strs []string
			for _, part := range parts {
				if s, ok := part.(string); ok && strings.TrimSpace(s) != "" {
					strs = append(strs, s)
				}
			}
			if len(strs) > 0 {
				return strings.TrimSpace(strings.Join(strs, "\n"))
			}
		}
		if text, ok := content["text"].(string); ok {
			return strings.TrimSpace(text)
		}
		return ""

	case "code":
		text, _ := content["text"].(string)
		language, _ := content["language"].(string)
		text = strings.TrimSpace(text)
		if text == "" {
			return "[code]"
		}
		if language = strings.TrimSpace(language); language != "" {
			return fmt.Sprintf("```%s\n%s\n```", language, text)
		}
		return text

	case "multimodal_text":
		return multimodalText(content["parts"])

	default:
		if text := bestEffortText(content); text != "" {
			return text
		}
		return "[" + contentType + "]"
	}
}

// multimodalText renders multimodal parts one per line. Media parts become
// bracketed tags carrying the asset pointer when present.
func multimodalText(parts any) string {
	list, ok := parts.([]any)
	if !ok {
		return "[multimodal_text]"
	}

	var out []string
	for _, part := range list {
		if s, ok := part.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}

		obj, ok := part.(map[string]any)
		if !ok {
			continue
		}

		contentType := "unknown"
		if v, ok := obj["content_type"].(string); ok && v != "" {
			contentType = v
		}

		switch {
		case contentType == "audio_transcription":
			text, _ := obj["text"].(string)
			if strings.TrimSpace(text) == "" {
				text, _ = obj["transcript"].(string)
			}
			if text = strings.TrimSpace(text); text != "" {
				out = append(out, text)
			}

		case assetPointerTypes[contentType]:
			pointer, _ := obj["asset_pointer"].(string)
			if pointer = strings.TrimSpace(pointer); pointer != "" {
				out = append(out, fmt.Sprintf("[%s: %s]", contentType, pointer))
			} else {
				out = append(out, "["+contentType+"]")
			}

		default:
			if text := bestEffortText(obj); text != "" {
				out = append(out, text)
			} else {
				out = append(out, "["+contentType+"]")
			}
		}
	}

	joined := strings.TrimSpace(strings.Join(out, "\n"))
	if joined == "" {
		return "[multimodal_text]"
	}
	return joined
}

// bestEffortText scans the candidate keys of an arbitrary object and collects
// whatever non-empty text it finds, recursing into nested objects.
func bestEffortText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return ""
	}

	var pieces []string
	for _, key := range bestEffortKeys {
		switch value := obj[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				pieces = append(pieces, trimmed)
			}
		case []any:
			if joined := joinStringParts(value); joined != "" {
				pieces = append(pieces, joined)
			}
		case map[string]any:
			if nested := bestEffortText(value); nested != "" {
				pieces = append(pieces, nested)
			}
		}
	}

	return strings.Join(pieces, "\n")
}

// joinStringParts joins the non-empty string elements of a list with
// newlines.
func joinStringParts(parts []any) string {
	var out []string
	for _, part := range parts {
		if s, ok := part.(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return strings.Join(out, "\n")
}

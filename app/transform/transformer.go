// Package transform produces final deliverable content from raw intake
// content. The step order is fixed: placeholder stripping, translation,
// mention/link filtering, whitespace normalization, branding, media
// processing. The stage is pure with respect to persisted entities; callers
// persist the result.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"crosspost/app/database"
	"crosspost/app/images"
	"crosspost/app/translate"
)

// MediaUnavailableMarker is inserted by collectors when a media reference
// cannot be resolved, and stripped here before delivery.
const MediaUnavailableMarker = "[media unavailable]"

var (
	mentionPattern  = regexp.MustCompile(`@\w+`)
	linkPattern     = regexp.MustCompile(`https?://\S+`)
	blankRunPattern = regexp.MustCompile(`\n{3,}`)
)

type Translator interface {
	Translate(ctx context.Context, text string) (*translate.Result, error)
}

type ImageProcessor interface {
	ProcessURL(ctx context.Context, imageURL string, opts images.Options) (string, error)
}

type ActivitySink interface {
	Append(entryType, description string, pairID, postID *string, metadata map[string]any) error
}

type Result struct {
	Content          string
	Media            []string
	Translated       bool
	DetectedLanguage string
}

type Transformer struct {
	translator Translator
	processor  ImageProcessor
	activity   ActivitySink
}

func NewTransformer(translator Translator, processor ImageProcessor, activity ActivitySink) *Transformer {
	return &Transformer{
		translator: translator,
		processor:  processor,
		activity:   activity,
	}
}

// Run applies the transform pipeline for one deliverable entity belonging to
// pair. Translation and image-processing failures are never fatal: the
// pre-transform content or original media is carried through instead.
func (t *Transformer) Run(ctx context.Context, pair database.ChannelPair, content string, media []string) Result {
	result := Result{Media: media}

	content = strings.ReplaceAll(content, MediaUnavailableMarker, "")

	if pair.AutoTranslate && t.translator != nil {
		translated, err := t.translator.Translate(ctx, content)
		if err != nil {
			slog.Warn("Translation failed, delivering untranslated text", "pair", pair.ID, "error", err)
			t.logActivity("translation_failed", "Translation failed, delivering original text",
				&pair.ID, map[string]any{"error": err.Error()})
		} else if translated.Translated {
			content = translated.Text
			result.Translated = true
			result.DetectedLanguage = translated.DetectedLanguage
			t.logActivity("content_translated",
				fmt.Sprintf("Content translated from %s", translated.DetectedLanguage),
				&pair.ID, map[string]any{"detected_language": translated.DetectedLanguage})
		}
	}

	if pair.StripMentions {
		content = mentionPattern.ReplaceAllString(content, "")
	}
	if pair.StripLinks {
		content = linkPattern.ReplaceAllString(content, "")
	}

	content = blankRunPattern.ReplaceAllString(content, "\n\n")
	content = strings.TrimSpace(content)

	if pair.BrandingText != "" {
		if content != "" {
			content += "\n\n"
		}
		content += pair.BrandingText
	}

	result.Content = content
	result.Media = t.processMedia(ctx, pair, media)

	return result
}

// processMedia runs the image collaborator over each attachment when the
// pair requests watermarking or branding removal. A processing failure falls
// back to the original media rather than failing the post.
func (t *Transformer) processMedia(ctx context.Context, pair database.ChannelPair, media []string) []string {
	if len(media) == 0 {
		return media
	}
	if !pair.AddWatermark && !pair.RemoveBranding {
		return media
	}
	if t.processor == nil {
		return media
	}

	opts := images.Options{
		AddWatermark:           pair.AddWatermark,
		WatermarkText:          pair.BrandingText,
		RemoveOriginalBranding: pair.RemoveBranding,
	}

	processed := make([]string, len(media))
	for i, m := range media {
		out, err := t.processor.ProcessURL(ctx, m, opts)
		if err != nil {
			slog.Warn("Image processing failed, using original media", "pair", pair.ID, "media", m, "error", err)
			processed[i] = m
			continue
		}
		processed[i] = out
	}

	return processed
}

func (t *Transformer) logActivity(entryType, description string, pairID *string, metadata map[string]any) {
	if t.activity == nil {
		return
	}
	if err := t.activity.Append(entryType, description, pairID, nil, metadata); err != nil {
		slog.Warn("Failed to append activity log entry", "type", entryType, "error", err)
	}
}

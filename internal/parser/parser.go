// Package parser implements InputParser: normalization of a heterogeneous
// inbound envelope into a canonical SemanticBlock that ContextBuilder can
// project into prompt segments regardless of source modality.
package parser

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/threadline/dialoguecore/internal/coreerr"
	"github.com/threadline/dialoguecore/internal/data/repos"
	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/media"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

// SemanticBlock is the uniform projection every modality reduces to.
type SemanticBlock struct {
	Text     string
	Tags     []string
	Emotions []string
	Origin   domain.ContentType
	Ts       time.Time

	// Visible is false for prompt segments, which are system instructions
	// and must never be surfaced to a human consumer.
	Visible bool
}

// Envelope is the raw inbound payload named in the spec's InputParser
// contract.
type Envelope struct {
	ContentType domain.ContentType
	Content     string
	Metadata    map[string]any
	SenderRole  domain.Role
	SenderID    uuid.UUID
	DialogueID  uuid.UUID
	SessionID   uuid.UUID
	TurnID      uuid.UUID
}

type Parser struct {
	messages repos.MessageRepo
	images   media.ImageResolver
	audio    media.AudioResolver
	log      *logger.Logger
}

func New(messages repos.MessageRepo, images media.ImageResolver, audio media.AudioResolver, log *logger.Logger) *Parser {
	return &Parser{messages: messages, images: images, audio: audio, log: log.With("component", "InputParser")}
}

// Parse normalizes env per its content_type. dbc carries the transaction
// quote_reply resolution must read within, so a reply can never observe a
// half-committed sibling write.
func (p *Parser) Parse(ctx context.Context, dbc dbctx.Context, env Envelope) (SemanticBlock, error) {
	now := time.Now().UTC()
	switch env.ContentType {
	case domain.ContentText, domain.ContentMarkdown, domain.ContentCommand:
		return p.parseText(env, now), nil

	case domain.ContentImage:
		return p.parseImage(ctx, env, now)

	case domain.ContentAudio:
		return p.parseAudio(ctx, env, now)

	case domain.ContentToolOutput, domain.ContentToolInput:
		return p.parseToolOutput(env, now), nil

	case domain.ContentQuoteReply:
		return p.parseQuoteReply(dbc, env, now)

	case domain.ContentPrompt:
		return SemanticBlock{Text: env.Content, Origin: domain.ContentPrompt, Ts: now, Visible: false}, nil

	case domain.ContentSystemContext:
		return SemanticBlock{Text: env.Content, Origin: domain.ContentSystemContext, Ts: now, Visible: false}, nil

	default:
		if caption, ok := stringMeta(env.Metadata, "caption"); ok && caption != "" {
			return SemanticBlock{Text: caption, Origin: env.ContentType, Ts: now, Visible: true}, nil
		}
		return SemanticBlock{}, coreerr.New(coreerr.UnsupportedModality, fmt.Sprintf("unsupported content_type %q", env.ContentType))
	}
}

func (p *Parser) parseText(env Envelope, now time.Time) SemanticBlock {
	block := SemanticBlock{Text: env.Content, Origin: env.ContentType, Ts: now, Visible: true}
	block.Tags = detectIntentTags(env.Content)
	block.Emotions = detectSentiment(env.Content)
	return block
}

func (p *Parser) parseImage(ctx context.Context, env Envelope, now time.Time) (SemanticBlock, error) {
	if caption, ok := stringMeta(env.Metadata, "caption"); ok && caption != "" {
		return SemanticBlock{Text: caption, Origin: domain.ContentImage, Ts: now, Visible: true}, nil
	}
	data, mimeType, ok := imageBytesFromMetadata(env.Metadata)
	if !ok || p.images == nil {
		return SemanticBlock{Text: "[image attachment]", Origin: domain.ContentImage, Ts: now, Visible: true}, nil
	}
	result, err := p.images.Resolve(ctx, data, mimeType)
	if err != nil {
		p.log.Warn("image resolution failed, falling back to placeholder", "error", err)
		return SemanticBlock{Text: "[image attachment]", Origin: domain.ContentImage, Ts: now, Visible: true}, nil
	}
	text := result.Caption
	if text == "" {
		text = "[image attachment]"
	}
	return SemanticBlock{Text: text, Tags: result.Labels, Origin: domain.ContentImage, Ts: now, Visible: true}, nil
}

func (p *Parser) parseAudio(ctx context.Context, env Envelope, now time.Time) (SemanticBlock, error) {
	if transcription, ok := stringMeta(env.Metadata, "transcription"); ok && transcription != "" {
		return SemanticBlock{Text: transcription, Origin: domain.ContentAudio, Ts: now, Visible: true}, nil
	}
	data, mimeType, ok := audioBytesFromMetadata(env.Metadata)
	if !ok || p.audio == nil {
		return SemanticBlock{Text: "[audio attachment]", Origin: domain.ContentAudio, Ts: now, Visible: true}, nil
	}
	result, err := p.audio.Resolve(ctx, data, mimeType)
	if err != nil {
		p.log.Warn("audio resolution failed, falling back to placeholder", "error", err)
		return SemanticBlock{Text: "[audio attachment]", Origin: domain.ContentAudio, Ts: now, Visible: true}, nil
	}
	text := result.Text
	if text == "" {
		text = "[audio attachment]"
	}
	return SemanticBlock{Text: text, Origin: domain.ContentAudio, Ts: now, Visible: true}, nil
}

func (p *Parser) parseToolOutput(env Envelope, now time.Time) SemanticBlock {
	tool, _ := stringMeta(env.Metadata, "tool_used")
	if tool == "" {
		tool = "tool"
	}
	summary := env.Content
	if summary == "" {
		summary = "(no result)"
	}
	text := fmt.Sprintf("%s returned: %s", tool, summary)
	return SemanticBlock{Text: text, Origin: env.ContentType, Ts: now, Visible: true}
}

func (p *Parser) parseQuoteReply(dbc dbctx.Context, env Envelope, now time.Time) (SemanticBlock, error) {
	replyToRaw, _ := stringMeta(env.Metadata, "reply_to")
	replyTo, err := uuid.Parse(replyToRaw)
	if err != nil {
		return SemanticBlock{}, coreerr.Wrap(coreerr.InvalidReference, err, "reply_to is not a valid id")
	}
	quoted, err := p.messages.GetByID(dbc, replyTo)
	if err != nil || quoted == nil || quoted.DialogueID != env.DialogueID {
		return SemanticBlock{}, coreerr.New(coreerr.InvalidReference, "reply_to does not reference an existing Message of this Dialogue")
	}
	text := fmt.Sprintf("> %s\n%s", quoted.Content, env.Content)
	return SemanticBlock{Text: text, Origin: domain.ContentQuoteReply, Ts: now, Visible: true}, nil
}

func stringMeta(meta map[string]any, key string) (string, bool) {
	if meta == nil {
		return "", false
	}
	v, ok := meta[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func imageBytesFromMetadata(meta map[string]any) ([]byte, string, bool) {
	b64, ok := stringMeta(meta, "data_base64")
	if !ok || b64 == "" {
		return nil, "", false
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, "", false
	}
	mimeType, _ := stringMeta(meta, "mime_type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return data, mimeType, true
}

func audioBytesFromMetadata(meta map[string]any) ([]byte, string, bool) {
	b64, ok := stringMeta(meta, "data_base64")
	if !ok || b64 == "" {
		return nil, "", false
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, "", false
	}
	mimeType, _ := stringMeta(meta, "mime_type")
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	return data, mimeType, true
}

var intentKeywords = map[string]string{
	"?":        "question",
	"please":   "request",
	"thanks":   "gratitude",
	"thank you": "gratitude",
	"help":     "assistance",
}

func detectIntentTags(content string) []string {
	lower := strings.ToLower(content)
	var tags []string
	seen := map[string]bool{}
	for kw, tag := range intentKeywords {
		if strings.Contains(lower, kw) && !seen[tag] {
			tags = append(tags, tag)
			seen[tag] = true
		}
	}
	return tags
}

var positiveWords = []string{"great", "thanks", "awesome", "love", "good", "happy"}
var negativeWords = []string{"bad", "angry", "hate", "terrible", "sad", "annoyed"}

func detectSentiment(content string) []string {
	lower := strings.ToLower(content)
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			return []string{"negative"}
		}
	}
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			return []string{"positive"}
		}
	}
	return nil
}

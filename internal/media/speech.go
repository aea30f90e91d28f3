package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

type speechResolver struct {
	log        *logger.Logger
	client     *speech.Client
	maxRetries int
}

// NewSpeechResolver constructs an AudioResolver backed by Speech-to-Text.
// Like NewVisionResolver, it returns (nil, false, nil) when unconfigured.
func NewSpeechResolver(log *logger.Logger) (AudioResolver, bool, error) {
	opts, configured := clientOptionsFromEnv()
	if !configured {
		return nil, false, nil
	}
	c, err := speech.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, false, fmt.Errorf("speech client: %w", err)
	}
	return &speechResolver{log: log.With("component", "SpeechResolver"), client: c, maxRetries: 3}, true, nil
}

func (r *speechResolver) Resolve(ctx context.Context, audio []byte, mimeType string) (AudioResult, error) {
	if len(audio) == 0 {
		return AudioResult{Provider: "gcp_speech"}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               "en-US",
			Encoding:                   inferEncoding(mimeType),
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	}

	resp, err := r.retry(ctx, func() (*speechpb.LongRunningRecognizeResponse, error) {
		op, err := r.client.LongRunningRecognize(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
	if err != nil {
		return AudioResult{}, fmt.Errorf("speech longrunningrecognize: %w", err)
	}

	var full strings.Builder
	var warnings []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(strings.TrimSpace(alts[0].GetTranscript()))
	}
	if full.Len() == 0 {
		warnings = append(warnings, "no speech detected")
	}

	return AudioResult{Provider: "gcp_speech", Text: strings.TrimSpace(full.String()), Warnings: warnings}, nil
}

func inferEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(mimeType)
	switch {
	case strings.Contains(m, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3"):
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "ogg") || strings.Contains(m, "opus"):
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func (r *speechResolver) retry(ctx context.Context, fn func() (*speechpb.LongRunningRecognizeResponse, error)) (*speechpb.LongRunningRecognizeResponse, error) {
	backoff := 750 * time.Millisecond
	var last error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		last = err
		code := status.Code(err)
		if code != codes.Unavailable && code != codes.ResourceExhausted && code != codes.DeadlineExceeded {
			return nil, err
		}
		if attempt == r.maxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return nil, last
}

// fallbackAudioResolver is used when no GCP credentials are configured.
type fallbackAudioResolver struct{}

func NewFallbackAudioResolver() AudioResolver { return fallbackAudioResolver{} }

func (fallbackAudioResolver) Resolve(ctx context.Context, audio []byte, mimeType string) (AudioResult, error) {
	return AudioResult{Provider: "fallback", Text: fmt.Sprintf("[unable to transcribe %d-byte %s audio attachment]", len(audio), mimeType)}, nil
}

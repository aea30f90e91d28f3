package media

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

type visionResolver struct {
	log        *logger.Logger
	client     *vision.ImageAnnotatorClient
	maxRetries int
}

// NewVisionResolver constructs an ImageResolver backed by Cloud Vision's
// label and text detection. It returns (nil, false, nil) rather than an
// error when no credentials are configured, so callers can fall back to
// NewFallbackImageResolver instead of refusing to start.
func NewVisionResolver(log *logger.Logger) (ImageResolver, bool, error) {
	opts, configured := clientOptionsFromEnv()
	if !configured {
		return nil, false, nil
	}
	c, err := vision.NewImageAnnotatorClient(context.Background(), opts...)
	if err != nil {
		return nil, false, fmt.Errorf("vision client: %w", err)
	}
	return &visionResolver{log: log.With("component", "VisionResolver"), client: c, maxRetries: 3}, true, nil
}

func (r *visionResolver) Resolve(ctx context.Context, img []byte, mimeType string) (ImageResult, error) {
	if len(img) == 0 {
		return ImageResult{Provider: "gcp_vision"}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req := &visionpb.AnnotateImageRequest{
		Image: &visionpb.Image{Content: img},
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: 10},
			{Type: visionpb.Feature_TEXT_DETECTION},
		},
	}

	resp, err := r.retry(ctx, func() (*visionpb.AnnotateImageResponse, error) {
		batchResp, err := r.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
			Requests: []*visionpb.AnnotateImageRequest{req},
		})
		if err != nil {
			return nil, err
		}
		if len(batchResp.GetResponses()) == 0 {
			return nil, fmt.Errorf("vision: empty batch response")
		}
		single := batchResp.GetResponses()[0]
		if single.GetError() != nil {
			return nil, fmt.Errorf("vision: %s", single.GetError().GetMessage())
		}
		return single, nil
	})
	if err != nil {
		return ImageResult{}, fmt.Errorf("vision annotate: %w", err)
	}

	labels := make([]string, 0, len(resp.GetLabelAnnotations()))
	for _, l := range resp.GetLabelAnnotations() {
		if l.GetDescription() != "" {
			labels = append(labels, l.GetDescription())
		}
	}
	sort.Strings(labels)

	var caption string
	if text := resp.GetFullTextAnnotation().GetText(); strings.TrimSpace(text) != "" {
		caption = strings.TrimSpace(text)
	} else if len(labels) > 0 {
		caption = "image depicting: " + strings.Join(labels, ", ")
	}

	return ImageResult{Provider: "gcp_vision", Caption: caption, Labels: labels}, nil
}

func (r *visionResolver) retry(ctx context.Context, fn func() (*visionpb.AnnotateImageResponse, error)) (*visionpb.AnnotateImageResponse, error) {
	backoff := 500 * time.Millisecond
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

// fallbackImageResolver is used when no GCP credentials are configured. It
// keeps the pipeline operating on image turns instead of failing them.
type fallbackImageResolver struct{}

func NewFallbackImageResolver() ImageResolver { return fallbackImageResolver{} }

func (fallbackImageResolver) Resolve(ctx context.Context, img []byte, mimeType string) (ImageResult, error) {
	return ImageResult{Provider: "fallback", Caption: fmt.Sprintf("an image attachment (%s, %d bytes)", mimeType, len(img))}, nil
}

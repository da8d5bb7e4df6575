// Package s3 adapts s3:// object URLs to the media engine contract. Objects
// are single-rendition sources streamed through ranged GetObject calls so
// transfers can resume at an offset.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/vidra-dl/vidra/internal/engine"
	"github.com/vidra-dl/vidra/internal/utils"
)

// ObjectRenditionID is the single rendition an S3 object offers.
const ObjectRenditionID = "object"

type Engine struct {
	client *s3.Client
	log    zerolog.Logger
}

// New builds an engine using the ambient AWS profile, matching the AWS CLI's
// credential resolution.
func New(ctx context.Context) (*Engine, error) {
	profile := os.Getenv("AWS_PROFILE")
	if profile == "" {
		profile = "default"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithSharedConfigProfile(profile),
		awsconfig.WithRetryMode("adaptive"))
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	return &Engine{
		client: s3.NewFromConfig(cfg),
		log:    utils.GetLogger("s3"),
	}, nil
}

// NewWithClient wires a preconfigured client, used by tests and callers
// with custom endpoints.
func NewWithClient(client *s3.Client) *Engine {
	return &Engine{client: client, log: utils.GetLogger("s3")}
}

func parseObjectURL(rawURL string) (bucket, key string, err error) {
	if !strings.HasPrefix(rawURL, "s3://") {
		return "", "", fmt.Errorf("%w: not an s3 URL: %s", engine.ErrUnsupported, rawURL)
	}
	parts := strings.SplitN(rawURL[5:], "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: s3 URL needs bucket and key: %s", engine.ErrUnsupported, rawURL)
	}
	return parts[0], parts[1], nil
}

func (e *Engine) ListRenditions(ctx context.Context, url string) ([]engine.Rendition, error) {
	bucket, key, err := parseObjectURL(url)
	if err != nil {
		return nil, err
	}
	head, err := e.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("%w: object %s", engine.ErrUnsupported, url)
		}
		return nil, engine.NewTransient(engine.ReasonEngineBusy, err)
	}
	size := engine.SizeUnknown
	if head.ContentLength != nil {
		size = *head.ContentLength
	}
	container := ""
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		container = key[i+1:]
	}
	e.log.Debug().Str("bucket", bucket).Str("key", key).Int64("size", size).Msg("Probed object")
	return []engine.Rendition{{
		ID:        ObjectRenditionID,
		Kind:      engine.KindVideo,
		Container: container,
		Size:      size,
	}}, nil
}

func (e *Engine) OpenStream(ctx context.Context, url string, renditionID string, startOffset int64) (io.ReadCloser, error) {
	if renditionID != ObjectRenditionID {
		return nil, engine.NewFatal(engine.ReasonUnsupported, fmt.Errorf("unknown rendition %q", renditionID))
	}
	bucket, key, err := parseObjectURL(url)
	if err != nil {
		return nil, engine.NewFatal(engine.ReasonUnsupported, err)
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if startOffset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", startOffset))
	}
	out, err := e.client.GetObject(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var nk *types.NoSuchKey
		if errors.As(err, &nk) {
			return nil, engine.NewFatal(engine.ReasonUnsupported, err)
		}
		return nil, engine.NewTransient(engine.ReasonEngineBusy, err)
	}
	return out.Body, nil
}

// PostProcess for objects is a rename, mirroring the direct HTTP adapter.
func (e *Engine) PostProcess(ctx context.Context, req engine.PostProcessRequest) error {
	if len(req.Inputs) != 1 {
		return engine.NewFatal(engine.ReasonUnsupported, fmt.Errorf("s3 downloads produce one stream, got %d", len(req.Inputs)))
	}
	if _, err := os.Stat(req.Output); err == nil {
		return engine.NewFatal(engine.ReasonOutputConflict, fmt.Errorf("output already exists: %s", req.Output))
	}
	return os.Rename(req.Inputs[0], req.Output)
}

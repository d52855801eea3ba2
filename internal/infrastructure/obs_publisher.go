package infrastructure

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/huaweicloud/huaweicloud-sdk-go-obs/obs"
	"github.com/yourusername/shortforge-go/internal/domain"
	"github.com/yourusername/shortforge-go/pkg/logger"
	"go.uber.org/zap"
)

// putFileFunc uploads one local file
type putFileFunc func(input *obs.PutFileInput) (*obs.PutObjectOutput, error)

// OBSPublisher uploads finished videos to a Huawei Cloud OBS bucket
type OBSPublisher struct {
	client    *obs.ObsClient
	putFile   putFileFunc
	bucket    string
	keyPrefix string
	logger    *zap.Logger
}

// NewOBSPublisher creates an OBS client from config
func NewOBSPublisher(config *domain.PublishConfig, log *zap.Logger) (*OBSPublisher, error) {
	if config.Bucket == "" || config.Endpoint == "" {
		return nil, fmt.Errorf("publish.bucket and publish.endpoint are required")
	}
	client, err := obs.New(config.AccessKey, config.SecretKey, config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create OBS client: %w", err)
	}
	return &OBSPublisher{
		client: client,
		putFile: func(input *obs.PutFileInput) (*obs.PutObjectOutput, error) {
			return client.PutFile(input)
		},
		bucket:    config.Bucket,
		keyPrefix: config.KeyPrefix,
		logger:    logger.OrNop(log),
	}, nil
}

// ObjectKey returns the key a local file is stored under
func (p *OBSPublisher) ObjectKey(localPath, runID string) string {
	return path.Join(p.keyPrefix, runID, filepath.Base(localPath))
}

// Publish implements domain.Publisher. The SDK call is not cancellable, so
// ctx is only checked before the upload starts.
func (p *OBSPublisher) Publish(ctx context.Context, localPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	runID := filepath.Base(filepath.Dir(localPath))
	key := p.ObjectKey(localPath, runID)

	input := &obs.PutFileInput{}
	input.Bucket = p.bucket
	input.Key = key
	input.SourceFile = localPath

	output, err := p.putFile(input)
	if err != nil {
		if obsError, ok := err.(obs.ObsError); ok {
			return "", fmt.Errorf("upload failed, OBS code %s: %s", obsError.Code, obsError.Message)
		}
		return "", fmt.Errorf("failed to upload to OBS: %w", err)
	}

	p.logger.Info("Video published",
		zap.String("bucket", p.bucket),
		zap.String("key", key),
		zap.String("etag", output.ETag))
	return key, nil
}

// Close releases the client
func (p *OBSPublisher) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

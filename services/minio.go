package services

import (
	"bytes"
	stdcontext "context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

type objectPutter interface {
	PutObject(ctx stdcontext.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIOService archives generated documents for callers whose consent allows
// it. It is always registered; without MINIO_ENDPOINT it stays disabled and
// Start does nothing.
type MinIOService struct {
	context.DefaultService
	client     *minio.Client
	putter     objectPutter
	bucketName string
	endpoint   string
	accessKey  string
	secretKey  string
	useSSL     bool
	timeout    time.Duration
	enabled    bool
}

const MINIO_SVC = "minio_svc"

const documentContentType = "application/pdf"

func (svc MinIOService) Id() string {
	return MINIO_SVC
}

func (svc *MinIOService) Configure(ctx *context.Context) error {
	svc.endpoint = getEnv("MINIO_ENDPOINT", "")
	svc.enabled = svc.endpoint != ""
	svc.accessKey = getEnv("MINIO_ACCESS_KEY", "admin")
	svc.secretKey = getEnv("MINIO_SECRET_KEY", "password123")
	svc.useSSL = getEnvBool("MINIO_USE_SSL", false)
	svc.bucketName = getEnv("MINIO_BUCKET", "saathi-documents")
	svc.timeout = getEnvDuration("MINIO_TIMEOUT", 10*time.Second)

	return svc.DefaultService.Configure(ctx)
}

func (svc *MinIOService) Start() error {
	if !svc.enabled {
		log.Info("MINIO_ENDPOINT not set, generated documents will not be archived")
		return nil
	}

	client, err := minio.New(svc.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(svc.accessKey, svc.secretKey, ""),
		Secure: svc.useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	svc.client = client
	svc.putter = client

	if err := svc.ensureBucket(); err != nil {
		return fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	log.WithFields(log.Fields{
		"endpoint": svc.endpoint,
		"bucket":   svc.bucketName,
	}).Info("MinIO document archive started")
	return nil
}

func (svc *MinIOService) ensureBucket() error {
	ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), svc.timeout)
	defer cancel()

	exists, err := svc.client.BucketExists(ctx, svc.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := svc.client.MakeBucket(ctx, svc.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		log.WithField("bucket", svc.bucketName).Info("Created MinIO bucket")
	}

	return nil
}

func (svc *MinIOService) Enabled() bool {
	return svc.enabled
}

// DocumentObjectName is the object key of an archived document.
func DocumentObjectName(identifier, documentID string) string {
	return path.Join("documents", identifier, documentID+".pdf")
}

// Archive stores a rendered document under the caller's identifier and
// returns the object name.
func (svc *MinIOService) Archive(ctx stdcontext.Context, identifier string, document []byte) (string, error) {
	documentID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate document id: %w", err)
	}
	objectName := DocumentObjectName(identifier, documentID.String())

	ctx, cancel := stdcontext.WithTimeout(ctx, svc.timeout)
	defer cancel()

	_, err = svc.putter.PutObject(ctx, svc.bucketName, objectName, bytes.NewReader(document), int64(len(document)), minio.PutObjectOptions{
		ContentType: documentContentType,
		UserMetadata: map[string]string{
			"anonymous-id": identifier,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload document to MinIO: %w", err)
	}

	return objectName, nil
}

package services

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"billetterie_back_end/internal/apperr"
)

const (
	MaxEvidenceSize    = 10 << 20
	EvidenceURLTTL     = 7 * 24 * time.Hour
	evidencePathPrefix = "evidence"
)

var allowedEvidenceTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"application/pdf": true,
	"text/plain":      true,
}

// Evidence range les pièces justificatives des actions d'administration et
// renvoie une URL signée utilisable comme champ "evidence".
type Evidence struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

func NewEvidence(client *minio.Client, bucket string) *Evidence {
	return &Evidence{client: client, bucket: bucket, ttl: EvidenceURLTTL}
}

type Upload struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// ObjectKey range les fichiers par auteur et par jour, sous un nom unique.
func ObjectKey(userID, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("%s/%s/%s/%s%s", evidencePathPrefix, userID, now.UTC().Format("2006-01-02"), uuid.NewString(), ext)
}

func CheckEvidence(contentType string, size int64) error {
	if size <= 0 {
		return apperr.Validation("fichier vide")
	}
	if size > MaxEvidenceSize {
		return apperr.Validation("fichier trop volumineux (max %d Mo)", MaxEvidenceSize>>20)
	}
	mediaType := strings.TrimSpace(strings.Split(contentType, ";")[0])
	if !allowedEvidenceTypes[mediaType] {
		return apperr.Validation("type de fichier non accepté: %q", mediaType)
	}
	return nil
}

func (e *Evidence) Upload(ctx context.Context, userID, filename, contentType string, size int64, r io.Reader) (*Upload, error) {
	if err := CheckEvidence(contentType, size); err != nil {
		return nil, err
	}

	key := ObjectKey(userID, filename, time.Now())
	_, err := e.client.PutObject(ctx, e.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"uploaded-by": userID},
	})
	if err != nil {
		return nil, err
	}

	signed, err := e.SignedURL(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Upload{Key: key, URL: signed}, nil
}

// SignedURL régénère un lien de lecture temporaire.
func (e *Evidence) SignedURL(ctx context.Context, key string) (string, error) {
	u, err := e.client.PresignedGetObject(ctx, e.bucket, key, e.ttl, make(url.Values))
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

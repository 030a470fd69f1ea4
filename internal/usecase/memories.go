package usecase

import (
	"context"
	"fmt"
	"io"
	"mime"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"mimitomo/internal/domain"
	"mimitomo/internal/ports"
)

// Upload is one photo submitted to the album.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
	Caption     string
	UploadedBy  string
}

// Memories manages the photo album.
type Memories struct {
	store   ports.Store
	objects ports.ObjectStorage
	clock   ports.Clock
	metrics ports.RemoteMetrics
	log     zerolog.Logger
}

func NewMemories(store ports.Store, objects ports.ObjectStorage, clock ports.Clock, metrics ports.RemoteMetrics, log zerolog.Logger) *Memories {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Memories{store: store, objects: objects, clock: clock, metrics: remoteMetricsOrNoop(metrics), log: log}
}

// List returns photos newest first.
func (m *Memories) List(ctx context.Context, userID string) ([]domain.Memory, error) {
	memories, err := call(m.metrics, "memories.list", func() ([]domain.Memory, error) {
		return m.store.Memories().List(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].CreatedAt.After(memories[j].CreatedAt)
	})
	return memories, nil
}

// Upload stores the image at {user_id}/{unix millis}.{ext} and records it.
func (m *Memories) Upload(ctx context.Context, userID string, upload Upload) (domain.Memory, error) {
	contentType, ext, ok := imageExtension(upload.ContentType)
	if !ok {
		return domain.Memory{}, fmt.Errorf("%w: unsupported image type %q", domain.ErrInvalid, upload.ContentType)
	}
	if upload.Body == nil {
		return domain.Memory{}, fmt.Errorf("%w: image body is empty", domain.ErrInvalid)
	}

	key := ObjectKey(userID, m.clock.Now().UnixMilli(), ext)
	url, err := call(m.metrics, "storage.put", func() (string, error) {
		return m.objects.Put(ctx, key, contentType, upload.Body)
	})
	if err != nil {
		return domain.Memory{}, err
	}

	memory, err := call(m.metrics, "memories.create", func() (domain.Memory, error) {
		return m.store.Memories().Create(ctx, domain.Memory{
			UserID:     userID,
			ImageURL:   url,
			Caption:    strings.TrimSpace(upload.Caption),
			UploadedBy: strings.TrimSpace(upload.UploadedBy),
		})
	})
	if err != nil {
		if delErr := m.objects.Delete(ctx, key); delErr != nil {
			m.log.Warn().Err(delErr).Str("key", key).Msg("failed to remove orphaned upload")
		}
		return domain.Memory{}, err
	}
	return memory, nil
}

// UpdateCaption replaces the caption of a photo.
func (m *Memories) UpdateCaption(ctx context.Context, userID string, id string, caption string) (domain.Memory, error) {
	memory, err := m.owned(ctx, userID, id)
	if err != nil {
		return domain.Memory{}, err
	}
	memory.Caption = strings.TrimSpace(caption)
	return call(m.metrics, "memories.update", func() (domain.Memory, error) {
		return m.store.Memories().Update(ctx, memory)
	})
}

// Delete removes the record and then its image.
func (m *Memories) Delete(ctx context.Context, userID string, id string) error {
	memory, err := m.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := callErr(m.metrics, "memories.delete", func() error {
		return m.store.Memories().Delete(ctx, id)
	}); err != nil {
		return err
	}
	if key, ok := objectKeyFromURL(memory.ImageURL, userID); ok {
		if err := m.objects.Delete(ctx, key); err != nil {
			m.log.Warn().Err(err).Str("key", key).Msg("failed to remove image object")
		}
	}
	return nil
}

func (m *Memories) owned(ctx context.Context, userID string, id string) (domain.Memory, error) {
	memory, err := call(m.metrics, "memories.get", func() (domain.Memory, error) {
		return m.store.Memories().Get(ctx, id)
	})
	if err != nil {
		return domain.Memory{}, err
	}
	if memory.UserID != userID {
		return domain.Memory{}, ports.ErrNotFound
	}
	return memory, nil
}

// ObjectKey builds the storage key of an uploaded image.
func ObjectKey(userID string, unixMillis int64, ext string) string {
	return fmt.Sprintf("%s/%d.%s", userID, unixMillis, ext)
}

var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
	"image/heic": "heic",
	"image/heif": "heif",
}

// imageExtension maps an accepted photo type to the extension it is stored
// under. The uploaded filename is never trusted.
func imageExtension(contentType string) (mediaType string, ext string, ok bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", "", false
	}
	ext, ok = imageExtensions[mediaType]
	return mediaType, ext, ok
}

func objectKeyFromURL(url string, userID string) (string, bool) {
	marker := userID + "/"
	index := strings.LastIndex(url, marker)
	if userID == "" || index < 0 {
		return "", false
	}
	return url[index:], true
}

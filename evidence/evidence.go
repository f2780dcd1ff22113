package evidence

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/trace"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
	"gorm.io/gorm/clause"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
)

type Upload struct {
	Filename    string
	Title       string
	Description string

	// FileType is detected from the filename and content when empty.
	FileType models.FileType

	Content io.Reader
}

var rejectedContent = []string{
	"application/x-executable",
	"application/x-elf",
	"application/vnd.microsoft.portable-executable",
	"application/x-mach-binary",
}

func targetTable(kind models.EvidenceTargetKind) (table, column string) {
	switch kind {
	case models.EvidenceTargetIncident:
		return "incidents", "id"
	case models.EvidenceTargetCAPA:
		return "capas", "id"
	case models.EvidenceTargetRiskAssessment:
		return "risk_assessments", "incident_id"
	}
	return "", ""
}

func targetExists(ctx context.Context, target models.EvidenceTarget) error {
	table, column := targetTable(target.Kind)
	if table == "" {
		return api.Errorf(api.EINVALID, "evidence cannot be attached to %q", target.Kind)
	}

	var count int64
	if err := ctx.DB().Table(table).Where(column+" = ?", target.ID).Count(&count).Error; err != nil {
		return err
	} else if count == 0 {
		return api.Errorf(api.ENOTFOUND, "%s %s not found", strings.ToLower(string(target.Kind)), target.ID)
	}
	return nil
}

// Path is where the blob for a new upload is written:
// evidence/{kind}/{yyyy}/{mm}/{id}-{filename}
func Path(ctx context.Context, kind models.EvidenceTargetKind, id uuid.UUID, filename string) string {
	now := ctx.Now()
	return fmt.Sprintf("evidence/%s/%04d/%02d/%s-%s", strings.ToLower(string(kind)), now.Year(), int(now.Month()), id, filename)
}

func maxSize(ctx context.Context) int64 {
	return int64(ctx.Properties().Int(context.PropertyEvidenceMaxSize, int(api.DefaultConfig.Evidence.MaxFileSize)))
}

func mb(size int64) float64 {
	return float64(size) / (1024 * 1024)
}

// Attach validates and stores an upload against target. The blob is removed
// again when the metadata row cannot be written.
func Attach(ctx context.Context, target models.EvidenceTarget, upload Upload, actor uuid.UUID) (*models.Evidence, error) {
	if !target.Kind.Valid() {
		return nil, api.Errorf(api.EINVALID, "evidence cannot be attached to %q", target.Kind)
	}

	filename := filepath.Base(strings.TrimSpace(upload.Filename))
	if filename == "" || filename == "." || filename == "/" {
		return nil, api.Errorf(api.EINVALID, "filename is required")
	}
	if !IsAllowed(filename) {
		return nil, api.Errorf(api.EINVALID, "file extension %q is not allowed. Allowed extensions: %s",
			Extension(filename), strings.Join(AllowedExtensions, ", "))
	}
	if upload.FileType != "" && !upload.FileType.Valid() {
		return nil, api.Errorf(api.EINVALID, "invalid file type %q", upload.FileType)
	}
	if upload.Content == nil {
		return nil, api.Errorf(api.EINVALID, "file content is required")
	}

	limit := maxSize(ctx)
	content, err := io.ReadAll(io.LimitReader(upload.Content, limit+1))
	if err != nil {
		return nil, ctx.Oops().Wrapf(err, "failed to read %s", filename)
	}
	if int64(len(content)) > limit {
		return nil, api.Errorf(api.EINVALID, "file size exceeds maximum allowed size of %.2fMB", mb(limit))
	}

	mime := mimetype.Detect(content)
	for _, rejected := range rejectedContent {
		if mime.Is(rejected) {
			return nil, api.Errorf(api.EINVALID, "%s content is not allowed for %s", mime.String(), filename)
		}
	}

	if err := targetExists(ctx, target); err != nil {
		return nil, err
	}

	bucket, err := Bucket(ctx)
	if err != nil {
		return nil, err
	}

	ev := models.Evidence{
		ID:          uuid.New(),
		Target:      target,
		Filename:    filename,
		FileType:    upload.FileType,
		FileSize:    int64(len(content)),
		Title:       upload.Title,
		Description: upload.Description,
		UploadedBy:  actor,
		UploadedAt:  ctx.Now(),
	}
	if ev.FileType == "" {
		ev.FileType = DetectFileType(filename, content)
	}
	ev.Path = Path(ctx, target.Kind, ev.ID, filename)

	if err := bucket.WriteAll(ctx, ev.Path, content, &blob.WriterOptions{ContentType: mime.String()}); err != nil {
		return nil, ctx.Oops().Wrapf(err, "failed to write %s", ev.Path)
	}

	if err := ctx.DB().Create(&ev).Error; err != nil {
		if derr := bucket.Delete(ctx, ev.Path); derr != nil && gcerrors.Code(derr) != gcerrors.NotFound {
			ctx.Warnf("failed to remove orphaned blob %s: %v", ev.Path, derr)
		}
		return nil, err
	}

	ctx.Debugf("attached %s (%d bytes) to %s %s", ev.Path, ev.FileSize, target.Kind, target.ID)
	return &ev, nil
}

func deleteBlob(ctx context.Context, bucket *blob.Bucket, path string) error {
	if err := bucket.Delete(ctx, path); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return ctx.Oops().Wrapf(err, "failed to delete %s", path)
	}
	return nil
}

// Delete removes the evidence row and queues its blob for deletion.
func Delete(ctx context.Context, id uuid.UUID) error {
	return ctx.Transaction(func(ctx context.Context, _ trace.Span) error {
		var ev models.Evidence
		tx := ctx.DB().Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Limit(1).Find(&ev)
		if tx.Error != nil {
			return tx.Error
		} else if tx.RowsAffected == 0 {
			return api.Errorf(api.ENOTFOUND, "evidence %s not found", id)
		}

		if err := ctx.DB().Delete(&ev).Error; err != nil {
			return err
		}
		return queueBlobDeletes(ctx, ev.Path)
	})
}

// DeleteForTarget removes all evidence rows of a target and returns their
// blob paths. The blobs are queued for deletion in the same transaction.
func DeleteForTarget(ctx context.Context, target models.EvidenceTarget) ([]string, error) {
	var evidences []models.Evidence
	if err := ctx.DB().Where("target_kind = ? AND target_id = ?", target.Kind, target.ID).Find(&evidences).Error; err != nil {
		return nil, err
	}
	if len(evidences) == 0 {
		return nil, nil
	}

	if err := ctx.DB().Delete(&evidences).Error; err != nil {
		return nil, err
	}

	paths := lo.Map(evidences, func(ev models.Evidence, _ int) string { return ev.Path })
	if err := queueBlobDeletes(ctx, paths...); err != nil {
		return nil, err
	}
	return paths, nil
}

// List returns the target's evidence, newest first.
func List(ctx context.Context, target models.EvidenceTarget) ([]models.Evidence, error) {
	var evidences []models.Evidence
	err := ctx.DB().Where("target_kind = ? AND target_id = ?", target.Kind, target.ID).
		Order("uploaded_at DESC").Find(&evidences).Error
	return evidences, err
}

// Open returns a reader for the evidence content; the caller closes it.
func Open(ctx context.Context, id uuid.UUID) (*models.Evidence, io.ReadCloser, error) {
	var ev models.Evidence
	tx := ctx.DB().Where("id = ?", id).Limit(1).Find(&ev)
	if tx.Error != nil {
		return nil, nil, tx.Error
	} else if tx.RowsAffected == 0 {
		return nil, nil, api.Errorf(api.ENOTFOUND, "evidence %s not found", id)
	}

	bucket, err := Bucket(ctx)
	if err != nil {
		return nil, nil, err
	}

	r, err := bucket.NewReader(ctx, ev.Path, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, nil, api.Errorf(api.ENOTFOUND, "content of evidence %s is missing", id)
		}
		return nil, nil, err
	}
	return &ev, r, nil
}

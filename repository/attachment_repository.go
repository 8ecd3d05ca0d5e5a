package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/tenderwatch/tenderwatch/models"
	"gorm.io/gorm"
)

// AttachmentRepositoryImpl implements AttachmentRepository
type AttachmentRepositoryImpl struct {
	*BaseRepository[models.Attachment]
}

func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &AttachmentRepositoryImpl{BaseRepository: NewBaseRepository[models.Attachment](db)}
}

// Upsert stores the attachment unless one with the same
// (revision, filename, content hash) already exists.
func (r *AttachmentRepositoryImpl) Upsert(ctx context.Context, attachment *models.Attachment) (bool, error) {
	db := r.getDB(ctx)

	var existing models.Attachment
	err := db.Where("tender_revision_id = ? AND file_name = ? AND content_hash = ?",
		attachment.TenderRevisionID, attachment.FileName, attachment.ContentHash).
		Last(&existing).Error
	if err == nil {
		*attachment = existing
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to look up attachment: %w", err)
	}

	if err := db.Create(attachment).Error; err != nil {
		if IsDuplicateKey(err) {
			if lookupErr := db.Where("tender_revision_id = ? AND file_name = ? AND content_hash = ?",
				attachment.TenderRevisionID, attachment.FileName, attachment.ContentHash).
				Last(attachment).Error; lookupErr == nil {
				return false, nil
			}
		}
		return false, fmt.Errorf("failed to save attachment: %w", err)
	}
	return true, nil
}

func (r *AttachmentRepositoryImpl) ListByRevision(ctx context.Context, revisionID uint) ([]*models.Attachment, error) {
	db := r.getDB(ctx)
	var attachments []*models.Attachment
	if err := db.Where("tender_revision_id = ?", revisionID).
		Order("file_name ASC").
		Find(&attachments).Error; err != nil {
		return nil, fmt.Errorf("failed to list attachments for revision %d: %w", revisionID, err)
	}
	return attachments, nil
}

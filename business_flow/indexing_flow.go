package businessflow

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/tenderwatch/tenderwatch/app/dto"
	"github.com/tenderwatch/tenderwatch/models"
	"github.com/tenderwatch/tenderwatch/repository"
	"github.com/tenderwatch/tenderwatch/utils"
)

const (
	searchCachePrefix  = "tenderwatch:search:"
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// IndexingFlow projects the latest successful revisions into denormalized
// search documents and per-attachment chunks, and serves keyword/facet
// search over them.
type IndexingFlow interface {
	Reindex(ctx context.Context, source *string) (*dto.ReindexStats, error)
	Search(ctx context.Context, req *dto.SearchRequest) (*dto.SearchResponse, error)
	// ExportSearch runs the same query and renders the hits as an XLSX workbook.
	ExportSearch(ctx context.Context, req *dto.SearchRequest) ([]byte, error)
}

// IndexingFlowImpl implements the indexing business flow
type IndexingFlowImpl struct {
	tenderRepo     repository.TenderRepository
	revisionRepo   repository.TenderRevisionRepository
	attachmentRepo repository.AttachmentRepository
	documentRepo   repository.IndexDocumentRepository
	chunkRepo      repository.IndexChunkRepository
	db             *gorm.DB
	cache          *redis.Client
	cacheTTL       time.Duration
}

// NewIndexingFlow creates a new indexing flow. cache may be nil, in which
// case search results are never cached.
func NewIndexingFlow(
	tenderRepo repository.TenderRepository,
	revisionRepo repository.TenderRevisionRepository,
	attachmentRepo repository.AttachmentRepository,
	documentRepo repository.IndexDocumentRepository,
	chunkRepo repository.IndexChunkRepository,
	db *gorm.DB,
	cache *redis.Client,
	cacheTTL time.Duration,
) IndexingFlow {
	return &IndexingFlowImpl{
		tenderRepo:     tenderRepo,
		revisionRepo:   revisionRepo,
		attachmentRepo: attachmentRepo,
		documentRepo:   documentRepo,
		chunkRepo:      chunkRepo,
		db:             db,
		cache:          cache,
		cacheTTL:       cacheTTL,
	}
}

// Reindex rebuilds the search projection for every tender's latest
// successful revision, optionally restricted to one source. Re-running over
// unchanged revisions only updates documents in place and inserts no chunks.
func (f *IndexingFlowImpl) Reindex(ctx context.Context, source *string) (*dto.ReindexStats, error) {
	revisions, err := f.revisionRepo.ListForReindex(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions for reindex: %w", err)
	}

	stats := &dto.ReindexStats{}
	for _, revision := range revisions {
		stats.Scanned++

		if err := f.indexRevision(ctx, revision, stats); err != nil {
			log.Printf("Reindex failed for revision %d: %v", revision.ID, err)
			stats.SkippedDocuments++
		}
	}

	return stats, nil
}

func (f *IndexingFlowImpl) indexRevision(ctx context.Context, revision *models.TenderRevision, stats *dto.ReindexStats) error {
	if len(revision.CanonicalSnapshot) == 0 {
		return ErrCanonicalSnapshotMissing
	}

	var canonical CanonicalTender
	if err := json.Unmarshal(revision.CanonicalSnapshot, &canonical); err != nil {
		return fmt.Errorf("failed to decode canonical snapshot: %w", err)
	}

	tender, err := f.tenderRepo.ByID(ctx, revision.TenderID)
	if err != nil {
		return fmt.Errorf("failed to resolve tender: %w", err)
	}
	if tender == nil {
		return fmt.Errorf("tender %d not found for revision %d", revision.TenderID, revision.ID)
	}

	attachments, err := f.attachmentRepo.ListByRevision(ctx, revision.ID)
	if err != nil {
		return fmt.Errorf("failed to list attachments: %w", err)
	}

	return runInTransaction(ctx, f.db, func(txCtx context.Context) error {
		doc := buildIndexDocument(tender, revision, &canonical)

		created, err := f.documentRepo.Upsert(txCtx, doc)
		if err != nil {
			return fmt.Errorf("failed to upsert index document: %w", err)
		}
		if created {
			stats.IndexedDocuments++
		} else {
			stats.SkippedDocuments++
		}

		for _, att := range attachments {
			text := joinPresent(att.FileName, att.MimeType, derefString(att.FileURL))
			chunkHash := utils.KeyHash(uintKey(revision.ID), text)

			chunkCreated, err := f.chunkRepo.Upsert(txCtx, &models.IndexChunk{
				TenderRevisionID: revision.ID,
				ChunkHash:        chunkHash,
				Content:          text,
				VectorStub:       stubVector(chunkHash),
			})
			if err != nil {
				return fmt.Errorf("failed to upsert index chunk: %w", err)
			}
			if chunkCreated {
				stats.IndexedChunks++
			}
		}

		return nil
	})
}

func buildIndexDocument(tender *models.Tender, revision *models.TenderRevision, canonical *CanonicalTender) *models.IndexDocument {
	deadline := models.DeadlineSentinel
	if canonical.Deadline != nil {
		deadline = *canonical.Deadline
	}

	urls := canonical.SourceURLs
	if urls == nil {
		urls = []string{}
	}

	return &models.IndexDocument{
		TenderRevisionID: revision.ID,
		TenderID:         tender.ID,
		Source:           tender.Source,
		Title:            canonical.Title,
		Agency:           canonical.Agency,
		Deadline:         deadline,
		Region:           canonical.Region,
		Category:         canonical.Category,
		BudgetMin:        canonical.BudgetMin,
		BudgetMax:        canonical.BudgetMax,
		SourceURLs:       pq.StringArray(urls),
		SearchText: joinPresent(
			canonical.Title,
			derefString(canonical.Agency),
			derefString(canonical.Region),
			derefString(canonical.Category),
		),
	}
}

// stubVector derives a small deterministic placeholder embedding from the
// chunk hash, so identical chunks always carry identical vectors.
func stubVector(chunkHash string) pq.Float64Array {
	raw, err := hex.DecodeString(chunkHash)
	if err != nil || len(raw) < 8 {
		return pq.Float64Array{}
	}
	vec := make(pq.Float64Array, 8)
	for i := 0; i < 8; i++ {
		vec[i] = float64(raw[i]) / 255.0
	}
	return vec
}

// Search runs a keyword/facet query over the index documents, serving from
// the short-lived cache when possible. Results are ordered by deadline
// ascending with missing deadlines last.
func (f *IndexingFlowImpl) Search(ctx context.Context, req *dto.SearchRequest) (*dto.SearchResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	cacheKey := searchCacheKey(req, limit)
	if cached := f.cachedResponse(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	filter := models.IndexDocumentFilter{}
	if req.Keyword != "" {
		filter.Keyword = &req.Keyword
	}
	if req.Region != "" {
		filter.Region = &req.Region
	}
	if req.Category != "" {
		filter.Category = &req.Category
	}
	if req.DeadlineLTE != "" {
		filter.DeadlineLTE = &req.DeadlineLTE
	}
	if req.Source != "" {
		filter.Source = &req.Source
	}

	docs, err := f.documentRepo.Search(ctx, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search index documents: %w", err)
	}

	response := &dto.SearchResponse{
		Total:   len(docs),
		Results: make([]dto.TenderDocumentDTO, 0, len(docs)),
	}
	for _, doc := range docs {
		response.Results = append(response.Results, dto.TenderDocumentDTO{
			TenderID:         doc.TenderID,
			TenderRevisionID: doc.TenderRevisionID,
			Source:           doc.Source,
			Title:            doc.Title,
			Agency:           doc.Agency,
			Deadline:         doc.Deadline,
			Region:           doc.Region,
			Category:         doc.Category,
			BudgetMin:        doc.BudgetMin,
			BudgetMax:        doc.BudgetMax,
			SourceURLs:       doc.SourceURLs,
		})
	}

	f.storeResponse(ctx, cacheKey, response)
	return response, nil
}

func searchCacheKey(req *dto.SearchRequest, limit int) string {
	return searchCachePrefix + utils.KeyHash(
		req.Keyword, req.Region, req.Category, req.DeadlineLTE, req.Source, strconv.Itoa(limit),
	)
}

// cachedResponse is best effort; cache errors only disable the shortcut.
func (f *IndexingFlowImpl) cachedResponse(ctx context.Context, key string) *dto.SearchResponse {
	if f.cache == nil {
		return nil
	}

	raw, err := f.cache.Get(ctx, key).Result()
	if err != nil {
		return nil
	}

	var response dto.SearchResponse
	if err := json.Unmarshal([]byte(raw), &response); err != nil {
		return nil
	}
	return &response
}

func (f *IndexingFlowImpl) storeResponse(ctx context.Context, key string, response *dto.SearchResponse) {
	if f.cache == nil || f.cacheTTL <= 0 {
		return
	}

	raw, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := f.cache.Set(ctx, key, raw, f.cacheTTL).Err(); err != nil {
		log.Printf("Failed to cache search response: %v", err)
	}
}

// ExportSearch renders the search hits as a single-sheet XLSX workbook.
func (f *IndexingFlowImpl) ExportSearch(ctx context.Context, req *dto.SearchRequest) ([]byte, error) {
	response, err := f.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	file := excelize.NewFile()
	defer func() { _ = file.Close() }()

	sheet := "Tenders"
	if err := file.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("failed to name export sheet: %w", err)
	}

	headers := []string{"Tender ID", "Revision ID", "Source", "Title", "Agency", "Deadline", "Region", "Category", "Budget Min", "Budget Max", "URLs"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to build header cell: %w", err)
		}
		if err := file.SetCellValue(sheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for rowIdx, hit := range response.Results {
		values := []any{
			hit.TenderID,
			hit.TenderRevisionID,
			hit.Source,
			hit.Title,
			derefString(hit.Agency),
			hit.Deadline,
			derefString(hit.Region),
			derefString(hit.Category),
			int64Cell(hit.BudgetMin),
			int64Cell(hit.BudgetMax),
			joinPresent(hit.SourceURLs...),
		}
		for colIdx, value := range values {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return nil, fmt.Errorf("failed to build cell: %w", err)
			}
			if err := file.SetCellValue(sheet, cell, value); err != nil {
				return nil, fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to render export workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func int64Cell(v *int64) any {
	if v == nil {
		return ""
	}
	return *v
}

package tests

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderwatch/tenderwatch/models"
	"github.com/tenderwatch/tenderwatch/repository"
	testingutil "github.com/tenderwatch/tenderwatch/testing"
	"github.com/tenderwatch/tenderwatch/utils"
)

// TestPostgresRepositoriesRoundTrip exercises the real gorm adapters against
// a throwaway database. It is skipped when no Postgres server is reachable.
func TestPostgresRepositoriesRoundTrip(t *testing.T) {
	testDB, err := testingutil.SetupTestDB()
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	defer func() {
		if err := testDB.TeardownTestDB(); err != nil {
			t.Logf("failed to tear down test database: %v", err)
		}
	}()

	ctx := context.Background()
	now := time.Now().UTC()

	tenderRepo := repository.NewTenderRepository(testDB.DB)
	revisionRepo := repository.NewTenderRevisionRepository(testDB.DB)
	jobRepo := repository.NewPipelineJobRepository(testDB.DB)

	tender := &models.Tender{
		UUID: uuid.New(), Source: "g2b", ExternalID: "T-1",
		Title: "도로 보수 공사", FirstSeenAt: now, LastSeenAt: now,
	}
	require.NoError(t, tenderRepo.Save(ctx, tender))
	require.NotZero(t, tender.ID)

	t.Run("DuplicateTenderInsertIsDetectable", func(t *testing.T) {
		dup := &models.Tender{
			UUID: uuid.New(), Source: "g2b", ExternalID: "T-1",
			Title: "도로 보수 공사", FirstSeenAt: now, LastSeenAt: now,
		}
		err := tenderRepo.Save(ctx, dup)
		require.Error(t, err)
		assert.True(t, repository.IsDuplicateKey(err))
	})

	t.Run("RevisionLookupByRawHash", func(t *testing.T) {
		rawHash := utils.KeyHash("raw", "content")
		revision := &models.TenderRevision{
			TenderID:              tender.ID,
			RevisionNumber:        1,
			RevisionHash:          rawHash,
			RawContentHash:        rawHash,
			NormalizedContentHash: rawHash,
			RevisionStatus:        models.RevisionStatusSuccess,
			ObservedAt:            now,
		}
		require.NoError(t, revisionRepo.Save(ctx, revision))

		found, err := revisionRepo.ByTenderAndRawHash(ctx, tender.ID, rawHash)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, revision.ID, found.ID)

		require.NoError(t, tenderRepo.UpdateLatest(ctx, tender.ID, revision))
		reloaded, err := tenderRepo.ByID(ctx, tender.ID)
		require.NoError(t, err)
		require.NotNil(t, reloaded.LatestRevisionID)
		assert.Equal(t, revision.ID, *reloaded.LatestRevisionID)
	})

	t.Run("JobEnqueueIsIdempotent", func(t *testing.T) {
		job := &models.PipelineJob{
			JobType:          models.JobTypeNormalizeTender,
			IdempotencyKey:   utils.KeyHash("normalize", "g2b", "T-1"),
			Source:           "g2b",
			TenderExternalID: "T-1",
			TenderID:         tender.ID,
			ScheduledAt:      now,
		}
		created, err := jobRepo.EnqueueIfAbsent(ctx, job)
		require.NoError(t, err)
		assert.True(t, created)

		again := &models.PipelineJob{
			JobType:          models.JobTypeNormalizeTender,
			IdempotencyKey:   utils.KeyHash("normalize", "g2b", "T-1"),
			Source:           "g2b",
			TenderExternalID: "T-1",
			TenderID:         tender.ID,
			ScheduledAt:      now,
		}
		created, err = jobRepo.EnqueueIfAbsent(ctx, again)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, job.ID, again.ID)
	})
}

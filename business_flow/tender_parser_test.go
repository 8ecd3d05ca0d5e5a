package businessflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTenderDetailCanonicalFields(t *testing.T) {
	raw := map[string]any{
		"title":      "  도로 보수 공사  ",
		"agency":     "서울시청",
		"deadline":   "2026-11-30",
		"region":     "서울",
		"category":   "건설",
		"budget_min": float64(100000000),
		"budget_max": "500,000,000",
		"url":        "https://g2b.example/tenders/T-1",
	}

	canonical, attachments, err := ParseTenderDetail(raw)
	require.NoError(t, err)
	require.NotNil(t, canonical)

	assert.Equal(t, "도로 보수 공사", canonical.Title, "title is trimmed")
	require.NotNil(t, canonical.Agency)
	assert.Equal(t, "서울시청", *canonical.Agency)
	require.NotNil(t, canonical.Deadline)
	assert.Equal(t, "2026-11-30", *canonical.Deadline)
	require.NotNil(t, canonical.BudgetMin)
	assert.Equal(t, int64(100000000), *canonical.BudgetMin)
	require.NotNil(t, canonical.BudgetMax)
	assert.Equal(t, int64(500000000), *canonical.BudgetMax, "comma-grouped budget strings parse")
	assert.Equal(t, []string{"https://g2b.example/tenders/T-1"}, canonical.SourceURLs)
	assert.Empty(t, attachments)
}

func TestParseTenderDetailSourceAliases(t *testing.T) {
	raw := map[string]any{
		"bidNtceNm":   "하수관 정비",
		"dminsttNm":   "부산시청",
		"bidClseDt":   "2026-10-01",
		"presmptPrce": float64(200000000),
	}

	canonical, _, err := ParseTenderDetail(raw)
	require.NoError(t, err)

	assert.Equal(t, "하수관 정비", canonical.Title)
	require.NotNil(t, canonical.Agency)
	assert.Equal(t, "부산시청", *canonical.Agency)
	require.NotNil(t, canonical.Deadline)
	assert.Equal(t, "2026-10-01", *canonical.Deadline)
	require.NotNil(t, canonical.BudgetMax)
	assert.Equal(t, int64(200000000), *canonical.BudgetMax)
}

func TestParseTenderDetailMissingTitle(t *testing.T) {
	for name, raw := range map[string]map[string]any{
		"NoTitleField":   {"agency": "서울시청"},
		"BlankTitle":     {"title": "   "},
		"NonStringTitle": {"title": 42},
		"NilTitleField":  {"title": nil},
	} {
		t.Run(name, func(t *testing.T) {
			canonical, attachments, err := ParseTenderDetail(raw)
			assert.ErrorIs(t, err, ErrTitleMissing)
			assert.Nil(t, canonical)
			assert.Nil(t, attachments)
		})
	}
}

func TestParseTenderDetailOptionalFieldsDefault(t *testing.T) {
	canonical, attachments, err := ParseTenderDetail(map[string]any{"title": "최소 공고"})
	require.NoError(t, err)

	assert.Nil(t, canonical.Agency)
	assert.Nil(t, canonical.Deadline)
	assert.Nil(t, canonical.Region)
	assert.Nil(t, canonical.Category)
	assert.Nil(t, canonical.BudgetMin)
	assert.Nil(t, canonical.BudgetMax)
	assert.Nil(t, canonical.SourceURLs)
	assert.Empty(t, attachments)
}

func TestParseTenderDetailNonNumericBudget(t *testing.T) {
	canonical, _, err := ParseTenderDetail(map[string]any{
		"title":  "예산 미정 공고",
		"budget": "협의 후 결정",
	})
	require.NoError(t, err)
	assert.Nil(t, canonical.BudgetMax, "non-numeric budget values default silently")
}

func TestParseTenderDetailAttachments(t *testing.T) {
	raw := map[string]any{
		"title": "첨부 있는 공고",
		"attachments": []any{
			map[string]any{
				"file_name": "spec.pdf",
				"url":       "https://g2b.example/files/spec.pdf",
				"mime_type": "application/pdf",
			},
			"https://g2b.example/files/drawings.zip",
			map[string]any{"comment": "no name and no url"},
		},
	}

	_, attachments, err := ParseTenderDetail(raw)
	require.NoError(t, err)
	require.Len(t, attachments, 2)

	assert.Equal(t, "spec.pdf", attachments[0].FileName)
	assert.Equal(t, "application/pdf", attachments[0].MimeType)
	require.NotNil(t, attachments[0].FileURL)
	assert.NotEmpty(t, attachments[0].ContentHash)

	assert.Equal(t, "drawings.zip", attachments[1].FileName, "bare URLs derive their file name")
	assert.Equal(t, "application/octet-stream", attachments[1].MimeType)
}

func TestParseTenderDetailAttachmentsStableHash(t *testing.T) {
	raw := map[string]any{
		"title": "첨부 있는 공고",
		"attachments": []any{
			map[string]any{"file_name": "spec.pdf", "url": "https://g2b.example/files/spec.pdf", "mime_type": "application/pdf"},
		},
	}

	_, first, err := ParseTenderDetail(raw)
	require.NoError(t, err)
	_, second, err := ParseTenderDetail(raw)
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ContentHash, second[0].ContentHash)
}

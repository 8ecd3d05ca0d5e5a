package businessflow

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tenderwatch/tenderwatch/utils"
)

// CanonicalTender is the schema-stable representation of a tender after
// parsing. Title is the only mandatory field; everything else is optional
// and defaults silently when absent.
type CanonicalTender struct {
	Title      string   `json:"title"`
	Agency     *string  `json:"agency,omitempty"`
	Deadline   *string  `json:"deadline,omitempty"`
	Region     *string  `json:"region,omitempty"`
	Category   *string  `json:"category,omitempty"`
	BudgetMin  *int64   `json:"budget_min,omitempty"`
	BudgetMax  *int64   `json:"budget_max,omitempty"`
	SourceURLs []string `json:"source_urls"`
}

// ParsedAttachment is attachment metadata extracted from a raw payload
type ParsedAttachment struct {
	FileName    string
	MimeType    string
	FileURL     *string
	ContentHash string
}

// Accepted source field aliases per canonical field, in priority order.
// First non-empty value wins, so upstream schema drift does not require
// pipeline changes.
var (
	titleAliases      = []string{"title", "bid_title", "tender_name", "name", "bidNtceNm"}
	agencyAliases     = []string{"agency", "organization", "org_name", "buyer", "dminsttNm"}
	deadlineAliases   = []string{"deadline", "close_date", "due_date", "bid_close_dt", "bidClseDt"}
	regionAliases     = []string{"region", "area", "location", "province"}
	categoryAliases   = []string{"category", "industry", "sector", "work_type"}
	budgetMinAliases  = []string{"budget_min", "min_budget", "base_price"}
	budgetMaxAliases  = []string{"budget_max", "max_budget", "budget", "estimate_price", "presmptPrce"}
	urlAliases        = []string{"source_urls", "urls", "url", "link", "detail_url"}
	attachmentAliases = []string{"attachments", "files", "documents"}
)

// ParseTenderDetail is the pure normalization step: it maps a raw, loosely
// structured record into a canonical record plus attachment metadata.
// A missing title is the only fatal condition.
func ParseTenderDetail(raw map[string]any) (*CanonicalTender, []ParsedAttachment, error) {
	title := stringField(raw, titleAliases)
	if title == nil || strings.TrimSpace(*title) == "" {
		return nil, nil, ErrTitleMissing
	}

	canonical := &CanonicalTender{
		Title:      strings.TrimSpace(*title),
		Agency:     stringField(raw, agencyAliases),
		Deadline:   stringField(raw, deadlineAliases),
		Region:     stringField(raw, regionAliases),
		Category:   stringField(raw, categoryAliases),
		BudgetMin:  numericField(raw, budgetMinAliases),
		BudgetMax:  numericField(raw, budgetMaxAliases),
		SourceURLs: stringListField(raw, urlAliases),
	}

	return canonical, parseAttachments(raw), nil
}

func firstPresent(raw map[string]any, aliases []string) (any, bool) {
	for _, alias := range aliases {
		if value, ok := raw[alias]; ok && value != nil {
			return value, true
		}
	}
	return nil, false
}

func stringField(raw map[string]any, aliases []string) *string {
	for _, alias := range aliases {
		value, ok := raw[alias]
		if !ok || value == nil {
			continue
		}
		if s, ok := value.(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return &trimmed
			}
		}
	}
	return nil
}

// numericField coerces int/float/digit-bearing string values to int64.
// Values that do not look numeric yield nil rather than an error.
func numericField(raw map[string]any, aliases []string) *int64 {
	value, ok := firstPresent(raw, aliases)
	if !ok {
		return nil
	}

	switch v := value.(type) {
	case float64:
		n := int64(math.Trunc(v))
		return &n
	case int:
		n := int64(v)
		return &n
	case int64:
		return &v
	case string:
		cleaned := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		if cleaned == "" {
			return nil
		}
		if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
			n := int64(math.Trunc(parsed))
			return &n
		}
		return nil
	default:
		return nil
	}
}

// stringListField accepts either a single string or a list of strings;
// any other shape is treated as empty.
func stringListField(raw map[string]any, aliases []string) []string {
	value, ok := firstPresent(raw, aliases)
	if !ok {
		return nil
	}
	return coerceStringList(value)
}

func coerceStringList(value any) []string {
	switch v := value.(type) {
	case string:
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					out = append(out, trimmed)
				}
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

func parseAttachments(raw map[string]any) []ParsedAttachment {
	value, ok := firstPresent(raw, attachmentAliases)
	if !ok {
		return nil
	}

	items, ok := value.([]any)
	if !ok {
		// A single bare string is accepted as one unnamed attachment URL.
		if s, isString := value.(string); isString && strings.TrimSpace(s) != "" {
			items = []any{s}
		} else {
			return nil
		}
	}

	var out []ParsedAttachment
	for _, item := range items {
		switch v := item.(type) {
		case string:
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				continue
			}
			out = append(out, ParsedAttachment{
				FileName:    fileNameFromURL(trimmed),
				MimeType:    "application/octet-stream",
				FileURL:     &trimmed,
				ContentHash: utils.KeyHash(fileNameFromURL(trimmed), trimmed),
			})
		case map[string]any:
			name := stringField(v, []string{"file_name", "filename", "name"})
			if name == nil {
				if u := stringField(v, []string{"url", "file_url", "link"}); u != nil {
					derived := fileNameFromURL(*u)
					name = &derived
				} else {
					continue
				}
			}
			mime := stringField(v, []string{"mime_type", "mime", "content_type"})
			if mime == nil {
				fallback := "application/octet-stream"
				mime = &fallback
			}
			fileURL := stringField(v, []string{"url", "file_url", "link"})
			urlPart := ""
			if fileURL != nil {
				urlPart = *fileURL
			}
			out = append(out, ParsedAttachment{
				FileName:    *name,
				MimeType:    *mime,
				FileURL:     fileURL,
				ContentHash: utils.KeyHash(*name, urlPart, *mime),
			})
		}
	}
	return out
}

func fileNameFromURL(rawURL string) string {
	if idx := strings.LastIndex(rawURL, "/"); idx >= 0 && idx < len(rawURL)-1 {
		return rawURL[idx+1:]
	}
	return fmt.Sprintf("attachment-%s", utils.KeyHash(rawURL)[:8])
}

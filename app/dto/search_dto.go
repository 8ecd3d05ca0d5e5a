package dto

// SearchRequest carries keyword/facet search parameters
type SearchRequest struct {
	Keyword     string `query:"keyword" json:"keyword" validate:"omitempty,max=256"`
	Region      string `query:"region" json:"region" validate:"omitempty,max=128"`
	Category    string `query:"category" json:"category" validate:"omitempty,max=128"`
	DeadlineLTE string `query:"deadline_lte" json:"deadline_lte" validate:"omitempty,len=10"`
	Source      string `query:"source" json:"source" validate:"omitempty,max=64"`
	Limit       int    `query:"limit" json:"limit" validate:"omitempty,min=1,max=100"`
}

// TenderDocumentDTO is one denormalized search hit
type TenderDocumentDTO struct {
	TenderID         uint     `json:"tender_id"`
	TenderRevisionID uint     `json:"tender_revision_id"`
	Source           string   `json:"source"`
	Title            string   `json:"title"`
	Agency           *string  `json:"agency,omitempty"`
	Deadline         string   `json:"deadline"`
	Region           *string  `json:"region,omitempty"`
	Category         *string  `json:"category,omitempty"`
	BudgetMin        *int64   `json:"budget_min,omitempty"`
	BudgetMax        *int64   `json:"budget_max,omitempty"`
	SourceURLs       []string `json:"source_urls"`
}

// SearchResponse is the search result page
type SearchResponse struct {
	Total   int                 `json:"total"`
	Results []TenderDocumentDTO `json:"results"`
}

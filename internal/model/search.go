package model

import (
	"time"
)

// SearchStatus represents the final state of a search.
type SearchStatus string

const (
	SearchStatusComplete          SearchStatus = "complete"
	SearchStatusPartial           SearchStatus = "partial"
	SearchStatusEmpty             SearchStatus = "empty"
	SearchStatusNeedsConfirmation SearchStatus = "needs_confirmation"
	SearchStatusFailed            SearchStatus = "failed"
)

// CodeKind selects which location-code axis a search filters on.
type CodeKind string

const (
	CodeKindCommune CodeKind = "commune" // INSEE commune codes
	CodeKindPostal  CodeKind = "postal"  // postal codes
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SearchRequest describes one search around a reference address.
type SearchRequest struct {
	Address         string   `json:"address"`
	RadiusKM        float64  `json:"radius_km"`
	Sections        []string `json:"sections,omitempty"`         // NAF section letters (A..U)
	ActivityCodes   []string `json:"activity_codes,omitempty"`   // specific NAF codes
	HeadcountGroups []string `json:"headcount_groups,omitempty"` // named bracket groups
	HeadcountCodes  []string `json:"headcount_codes,omitempty"`  // explicit bracket codes
	CodeKind        CodeKind `json:"code_kind,omitempty"`

	// NearPoint asks the registry for establishments around the geocoded
	// point directly instead of expanding the radius into commune codes.
	// The API caps this mode at 50 km.
	NearPoint      bool `json:"near_point,omitempty"`
	ForceFullFetch bool `json:"force_full_fetch,omitempty"`
}

// ChunkFailure records one location-code chunk that failed after retry.
// The overall search still returns the other chunks' data.
type ChunkFailure struct {
	Codes  []string  `json:"codes"`
	Code   ErrorCode `json:"code"`
	Reason string    `json:"reason"`
}

// ReportRow is one establishment shaped for display and export.
type ReportRow struct {
	SIREN       string `json:"siren"`
	SIRET       string `json:"siret"`
	CompanyName string `json:"company_name"`
	LegalName   string `json:"legal_name,omitempty"`
	Address     string `json:"address"`
	PostalCode  string `json:"postal_code"`
	Commune     string `json:"commune"`

	// Establishment-level activity code and the enterprise-level one, which
	// may differ (a bakery chain's head office is not a bakery).
	NAFCode         string `json:"naf_code"`
	NAFLabel        string `json:"naf_label"`
	CompanyNAFCode  string `json:"company_naf_code,omitempty"`
	CompanyNAFLabel string `json:"company_naf_label,omitempty"`
	NAFSection      string `json:"naf_section"`

	Headcount             string `json:"headcount"`
	HeadcountLabel        string `json:"headcount_label"`
	HeadcountYear         string `json:"headcount_year,omitempty"`
	CompanyHeadcountLabel string `json:"company_headcount_label,omitempty"`

	CreationDate       string `json:"creation_date"`
	IsSiege            bool   `json:"is_siege"`
	OpenEstablishments int    `json:"open_establishments,omitempty"`
	Enseignes          string `json:"enseignes,omitempty"`

	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`

	// Latest yearly financials published for the enterprise, if any.
	FinanceYear string   `json:"finance_year,omitempty"`
	Revenue     *float64 `json:"revenue,omitempty"`
	NetIncome   *float64 `json:"net_income,omitempty"`
}

// DisplayName returns the name shown on maps and exports: the company name,
// suffixed with the establishment's trade names when they add information.
func (r ReportRow) DisplayName() string {
	if r.Enseignes == "" || r.Enseignes == r.CompanyName {
		return r.CompanyName
	}
	return r.CompanyName + " - " + r.Enseignes
}

// HasCoordinates reports whether the establishment was geolocated. The API
// omits coordinates for some establishments, which map and GIS exports skip.
func (r ReportRow) HasCoordinates() bool {
	return r.Latitude != 0 || r.Longitude != 0
}

// SearchReport is the full outcome of a search: shaped rows plus enough
// status detail to distinguish "no results" from "results incomplete" from
// "search failed".
type SearchReport struct {
	Request        SearchRequest  `json:"request"`
	Center         Coordinates    `json:"center"`
	CenterLabel    string         `json:"center_label,omitempty"`
	CommuneCodes   []string       `json:"commune_codes"`
	Rows           []ReportRow    `json:"rows"`
	Companies      int            `json:"companies"`
	Establishments int            `json:"establishments"`
	TotalResults   int            `json:"total_results"`
	Status         SearchStatus   `json:"status"`
	FailedChunks   []ChunkFailure `json:"failed_chunks,omitempty"`
	// EstimatedPages/EstimatedResults are set when Status is needs_confirmation:
	// the first chunk reported more pages than the automatic fetch threshold.
	EstimatedPages   int           `json:"estimated_pages,omitempty"`
	EstimatedResults int           `json:"estimated_results,omitempty"`
	Duration         time.Duration `json:"duration_ns"`
}

// Partial reports whether some chunks failed while others returned data.
func (r *SearchReport) Partial() bool {
	return len(r.FailedChunks) > 0
}

// RunStatus represents the persisted state of a search run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one persisted search execution.
type Run struct {
	ID        string        `json:"id"`
	Request   SearchRequest `json:"request"`
	Status    RunStatus     `json:"status"`
	Summary   *RunSummary   `json:"summary,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// RunSummary holds the countable outcome of a run.
type RunSummary struct {
	Companies      int          `json:"companies"`
	Establishments int          `json:"establishments"`
	CommuneCount   int          `json:"commune_count"`
	FailedChunks   int          `json:"failed_chunks"`
	SearchStatus   SearchStatus `json:"search_status"`
	DurationMS     int64        `json:"duration_ms"`
	Error          string       `json:"error,omitempty"`
}

// RunStatusForReport maps a search outcome onto the persisted run status.
func RunStatusForReport(r *SearchReport) RunStatus {
	switch {
	case r == nil:
		return RunStatusFailed
	case r.Partial():
		return RunStatusPartial
	default:
		return RunStatusComplete
	}
}

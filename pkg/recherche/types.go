// Package recherche provides a client for the recherche-entreprises.api.gouv.fr
// company registry: batched location searches with a rolling-window request
// gate, pagination, 429 backoff and SIREN/SIRET deduplication.
package recherche

import "strconv"

// LocationKind selects which query parameter carries the location codes.
type LocationKind string

const (
	// LocationCommune filters by INSEE commune code.
	LocationCommune LocationKind = "code_commune"
	// LocationPostal filters by postal code.
	LocationPostal LocationKind = "code_postal"
)

// Response is the paginated search envelope.
type Response struct {
	Results      []Company `json:"results"`
	TotalResults int       `json:"total_results"`
	Page         int       `json:"page"`
	PerPage      int       `json:"per_page"`
	TotalPages   int       `json:"total_pages"`
}

// Company is one unité légale with the establishments that matched the query.
type Company struct {
	Siren                       string                  `json:"siren"`
	NomComplet                  string                  `json:"nom_complet"`
	NomRaisonSociale            string                  `json:"nom_raison_sociale"`
	Sigle                       string                  `json:"sigle"`
	NombreEtablissements        int                     `json:"nombre_etablissements"`
	NombreEtablissementsOuverts int                     `json:"nombre_etablissements_ouverts"`
	ActivitePrincipale          string                  `json:"activite_principale"`
	CategorieEntreprise         string                  `json:"categorie_entreprise"`
	DateCreation                string                  `json:"date_creation"`
	EtatAdministratif           string                  `json:"etat_administratif"`
	NatureJuridique             string                  `json:"nature_juridique"`
	TrancheEffectifSalarie      string                  `json:"tranche_effectif_salarie"`
	AnneeTrancheEffectifSalarie string                  `json:"annee_tranche_effectif_salarie"`
	Siege                       *Etablissement          `json:"siege"`
	MatchingEtablissements      []Etablissement         `json:"matching_etablissements"`
	Finances                    map[string]YearFinances `json:"finances"`
}

// YearFinances is one published yearly statement, keyed by year in
// Company.Finances.
type YearFinances struct {
	CA          *float64 `json:"ca"`
	ResultatNet *float64 `json:"resultat_net"`
}

// Etablissement is one establishment. Coordinates come over the wire as
// strings; use LatLon to read them.
type Etablissement struct {
	Siret                       string   `json:"siret"`
	Adresse                     string   `json:"adresse"`
	CodePostal                  string   `json:"code_postal"`
	Commune                     string   `json:"commune"`
	LibelleCommune              string   `json:"libelle_commune"`
	ActivitePrincipale          string   `json:"activite_principale"`
	TrancheEffectifSalarie      string   `json:"tranche_effectif_salarie"`
	AnneeTrancheEffectifSalarie string   `json:"annee_tranche_effectif_salarie"`
	DateCreation                string   `json:"date_creation"`
	EstSiege                    bool     `json:"est_siege"`
	EtatAdministratif           string   `json:"etat_administratif"`
	Latitude                    string   `json:"latitude"`
	Longitude                   string   `json:"longitude"`
	ListeEnseignes              []string `json:"liste_enseignes"`
}

// LatLon parses the establishment coordinates. ok is false when either value
// is absent or malformed.
func (e Etablissement) LatLon() (lat, lon float64, ok bool) {
	if e.Latitude == "" || e.Longitude == "" {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(e.Latitude, 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(e.Longitude, 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

// Request is a batched location search.
type Request struct {
	// LocationCodes are the commune or postal codes to cover. They are
	// partitioned into chunks no larger than the API accepts per request.
	LocationCodes []string
	LocationKind  LocationKind

	// ActivityCodes filter on the establishment activity (NAF codes),
	// joined sorted into one server-side parameter.
	ActivityCodes []string

	// Brackets filter on the workforce bracket codes.
	Brackets []string

	// ForceFullFetch paginates past the automatic page threshold instead of
	// stopping for confirmation.
	ForceFullFetch bool
}

// NearPointRequest searches around a coordinate. The API caps the radius at
// 50 km.
type NearPointRequest struct {
	Latitude  float64
	Longitude float64
	RadiusKM  float64

	ActivityCodes []string
	Sections      []string
}

// ChunkFailure names one location-code chunk that failed after its retry.
type ChunkFailure struct {
	Codes []string
	Err   error
}

// Result is the merged outcome of a search. Companies are deduplicated by
// SIREN in first-seen order; establishments within a company are
// deduplicated by SIRET.
type Result struct {
	Companies []Company

	// TotalResults sums the per-chunk totals reported by the API, before
	// deduplication.
	TotalResults int

	// FailedChunks lists chunks that failed a page fetch after the single
	// retry. Pages fetched before the failure stay in Companies; the rest of
	// the chunk is dropped.
	FailedChunks []ChunkFailure

	// NeedsConfirmation is set when a chunk reported more pages than the
	// automatic threshold and ForceFullFetch was off. Companies then holds
	// only the first pages gathered before stopping, for estimation.
	NeedsConfirmation bool
	EstimatedPages    int
	EstimatedResults  int
}

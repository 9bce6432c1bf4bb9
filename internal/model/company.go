// Package model defines the company and normalized-record types shared by
// the fetch engine, the cache store, and the CLI surfaces.
package model

// CompanyType classifies how a company is traded, which drives provider routing.
type CompanyType string

const (
	CompanyCrypto  CompanyType = "crypto"
	CompanyPrivate CompanyType = "private"
	CompanyPublic  CompanyType = "public"
)

// Company is the external entity the engine fetches data for. Identity is
// immutable for cache-keying purposes; the CRM owns the record itself.
type Company struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Domain      string      `json:"domain,omitempty"`
	Type        CompanyType `json:"type"`
	Ticker      string      `json:"ticker,omitempty"`
	TokenSymbol string      `json:"token_symbol,omitempty"`
}

// Label returns a human-readable identifier for logging.
func (c Company) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

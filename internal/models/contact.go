package models

import "time"

// Contact is one row of the merged CRM / dialer / email export.
// Values are built once at ingestion and never modified afterwards.
type Contact struct {
	Campaign    string
	JobTitle    string
	Sector      string
	CompanySize string
	Location    string

	RecordDate    time.Time
	HasRecordDate bool

	Called     bool
	LastCallAt time.Time
	CallTag    CallTag
	RawCallTag string

	EmailStatus    EmailStatus
	RawEmailStatus string
	LeadPhase      string
}

// Table is an ordered, read-only sequence of contacts sharing the same schema.
type Table []Contact

// Clone returns a new table with the same records in the same order.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	copy(out, t)
	return out
}

// Dimension names shared by the filter stage, facets and transports.
const (
	DimCampaign    = "campaign"
	DimJobTitle    = "job_title"
	DimSector      = "sector"
	DimCompanySize = "company_size"
	DimLocation    = "location"
)

// Dimensions lists the segmentation dimensions in display order.
var Dimensions = []string{DimCampaign, DimJobTitle, DimSector, DimCompanySize, DimLocation}

// Dimension returns the value of a segmentation dimension, "" when unknown.
func (c Contact) Dimension(name string) string {
	switch name {
	case DimCampaign:
		return c.Campaign
	case DimJobTitle:
		return c.JobTitle
	case DimSector:
		return c.Sector
	case DimCompanySize:
		return c.CompanySize
	case DimLocation:
		return c.Location
	}
	return ""
}

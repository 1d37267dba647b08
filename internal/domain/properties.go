package domain

// Normalized feature property keys shared by styling and popup formatting.
const (
	PropID          = "id"
	PropEvent       = "event"
	PropSeverity    = "severity"
	PropUrgency     = "urgency"
	PropCertainty   = "certainty"
	PropHeadline    = "headline"
	PropDescription = "description"
	PropInstruction = "instruction"
	PropAreaDesc    = "area_desc"
	PropSender      = "sender_name"
	PropSent        = "sent"
	PropOnset       = "onset"
	PropExpires     = "expires"

	PropSiteCode    = "site_code"
	PropSiteName    = "site_name"
	PropFloodStatus = "flood_status"
	PropObservedAt  = "observed_at"

	PropZone        = "zone"
	PropZoneSubtype = "zone_subtype"
	PropRiskTier    = "risk_tier"
	PropSFHA        = "sfha"
	PropStaticBFE   = "static_bfe"

	PropCode      = "code"
	PropName      = "name"
	PropSelection = "selection"
)

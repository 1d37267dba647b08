// Package domain models the hazard and boundary data drawn on the tribal
// lands map overlays.
//
// # Data Sources
//
// Four public services feed the overlays, each with its own response shape.
// The adapter packages parse them into the types here; everything past the
// adapter boundary works on these types and on orb/geojson feature
// collections built from them.
//
//	NWS Alerts API      /alerts/active         GeoJSON, one feature per alert
//	USGS Water Services /nwis/iv               time-series JSON, one series per site+parameter
//	FEMA NFHL           MapServer/{id}/query   ArcGIS GeoJSON, one feature per flood zone polygon
//	BIA LAR / NHDPlus   MapServer/{id}/query   same ArcGIS query shape
//
// # Alerts
//
// Severity follows CAP: Extreme, Severe, Moderate, Minor, Unknown. Alerts whose
// expires timestamp is before the fetch time are dropped; alerts without an
// expires value are always kept. NWS zone-based alerts may arrive with a null
// geometry and are not drawable.
//
// # Gages
//
// USGS returns one time series per (site, parameter). A site reporting both
// discharge (00060) and gage height (00065) appears twice and is merged into a
// single [GageSite] keyed by site code. USGS marks missing observations with a
// noDataValue sentinel (usually -999999), which is discarded.
//
// Flood status needs per-site stage thresholds, which USGS does not publish.
// They are an optional input ([FloodStages]); without them a site with a
// reading is "unknown" and a site without a gage-height reading is "no_data".
//
// # Flood Zones
//
// FEMA FLD_ZONE codes map to risk tiers:
//
//	A AE AH AO AR A99 V VE   high      (Special Flood Hazard Area)
//	B X500                   moderate  (0.2% annual chance; X500 is shaded X)
//	C X                      low
//	D                        unknown   (undetermined)
//
// The SFHA_TF attribute ("T"/"F") overrides the tier-derived SFHA flag when present.
//
// # Tribal Territories
//
// Boundaries carry a display name and, optionally, a code. When no code field
// exists the code is derived from the name ("Spokane Tribe" -> "spokane-tribe").
package domain

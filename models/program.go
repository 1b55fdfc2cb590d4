package models

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MaxAssetsPerProgram bounds the number of in-scope assets stored per
// program on each ingestion.
const MaxAssetsPerProgram = 20

// NewProgramWindow is how long a program counts as "new" after first sight.
const NewProgramWindow = 7 * 24 * time.Hour

// Program is the canonical record for one bug-bounty program as known to
// the catalog. A program is identified by (platform, slug); the Identity
// field is always derived from those two via ComputeIdentity and never set
// by hand.
type Program struct {
	Identity string `json:"identity"`
	Platform string `json:"platform"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	URL      string `json:"url"`

	BountyMin *int   `json:"bounty_min"`
	BountyMax *int   `json:"bounty_max"`
	Currency  string `json:"currency"`

	Assets     []string `json:"assets"`
	AssetTypes []string `json:"asset_types"`
	Managed    bool     `json:"managed"`
	VDPOnly    bool     `json:"vdp_only"`

	AcceptsSubmissions bool `json:"accepts_submissions"`
	OffersBounties     bool `json:"offers_bounties"`

	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`
	LastScraped time.Time `json:"last_scraped"`

	// RawData keeps the original source payload for future parsing. The
	// catalog stores it verbatim and never interprets it.
	RawData json.RawMessage `json:"raw_data,omitempty"`
}

// ComputeIdentity derives the stable catalog key for a (platform, slug)
// pair. Case-insensitive: "HackerOne"/"Acme" and "hackerone"/"acme" map to
// the same identity.
func ComputeIdentity(platform, slug string) string {
	key := strings.ToLower(platform + ":" + slug)
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// Normalize fills in derived and defaulted fields after an adapter builds
// the record from a source payload.
func (p *Program) Normalize() {
	p.Platform = strings.ToLower(p.Platform)
	p.Identity = ComputeIdentity(p.Platform, p.Slug)
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if len(p.Assets) > MaxAssetsPerProgram {
		p.Assets = p.Assets[:MaxAssetsPerProgram]
	}
}

// BountyRange returns a human-readable bounty range for notifications and
// API responses.
func (p *Program) BountyRange() string {
	if !p.OffersBounties || p.VDPOnly {
		return "No bounty (VDP)"
	}
	switch {
	case p.BountyMin != nil && p.BountyMax != nil:
		return fmt.Sprintf("$%d - $%d", *p.BountyMin, *p.BountyMax)
	case p.BountyMax != nil:
		return fmt.Sprintf("Up to $%d", *p.BountyMax)
	case p.BountyMin != nil:
		return fmt.Sprintf("From $%d", *p.BountyMin)
	default:
		return "Bounty available"
	}
}

// IsNew reports whether the program was first seen within the last 7 days.
func (p *Program) IsNew() bool {
	if p.FirstSeen.IsZero() {
		return false
	}
	return time.Since(p.FirstSeen) < NewProgramWindow
}

// ProgramFilters narrows and orders ListPrograms results.
type ProgramFilters struct {
	Platform     string
	MinBounty    int
	AssetType    string
	Search       string
	NewOnly      bool
	BountiesOnly bool
	SortBy       string // newest | bounty | name
	Limit        int
}

// AggregateStats summarizes the catalog for the stats endpoint.
type AggregateStats struct {
	TotalPrograms int            `json:"total_programs"`
	NewThisWeek   int            `json:"new_this_week"`
	PaidPrograms  int            `json:"paid_programs"`
	Platforms     int            `json:"platforms"`
	ByPlatform    map[string]int `json:"by_platform"`
}

package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonnylitten/bountyping/models"
	"github.com/sirupsen/logrus"
)

const projectDiscoveryListURL = "https://raw.githubusercontent.com/projectdiscovery/public-bugbounty-programs/main/chaos-bugbounty-list.json"

// ProjectDiscoveryScraper seeds the catalog from ProjectDiscovery's
// chaos-bugbounty-list.json, which aggregates programs across many
// platforms. Each entry is attributed to the platform its URL points at.
type ProjectDiscoveryScraper struct {
	listURL string
	fetcher fetcher
}

func NewProjectDiscoveryScraper(opts Options) *ProjectDiscoveryScraper {
	listURL := opts.BaseURL
	if listURL == "" {
		listURL = projectDiscoveryListURL
	}
	return &ProjectDiscoveryScraper{
		listURL: listURL,
		fetcher: newFetcher("projectdiscovery", opts),
	}
}

func (s *ProjectDiscoveryScraper) PlatformName() string {
	return "projectdiscovery"
}

type projectDiscoveryEntry struct {
	Name    string   `json:"name"`
	URL     string   `json:"url"`
	Bounty  any      `json:"bounty"`
	Domains []string `json:"domains"`
}

func (s *ProjectDiscoveryScraper) FetchPrograms(ctx context.Context) ([]models.Program, error) {
	body, err := s.fetcher.getJSON(ctx, s.listURL)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Programs []json.RawMessage `json:"programs"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &SourceFetchError{
			Platform: s.PlatformName(),
			Err:      fmt.Errorf("failed to parse program list: %w", err),
		}
	}

	programs := make([]models.Program, 0, len(payload.Programs))
	skipped := 0
	for _, raw := range payload.Programs {
		var entry projectDiscoveryEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			logrus.WithField("platform", "projectdiscovery").Warnf("Skipping malformed entry: %v", err)
			skipped++
			continue
		}
		if entry.Name == "" && entry.URL == "" {
			skipped++
			continue
		}
		programs = append(programs, s.parseProgram(entry, raw))
	}

	logrus.WithFields(logrus.Fields{
		"platform": "projectdiscovery",
		"programs": len(programs),
		"skipped":  skipped,
	}).Info("Fetched ProjectDiscovery list")

	return programs, nil
}

var bountyAmountPattern = regexp.MustCompile(`\$(\d+(?:,\d+)*)`)

func (s *ProjectDiscoveryScraper) parseProgram(entry projectDiscoveryEntry, raw json.RawMessage) models.Program {
	platform := detectPlatform(entry.URL)
	slug := generateSlug(entry.URL, entry.Name)

	name := entry.Name
	if name == "" {
		name = slug
	}

	bountyMin, bountyMax, vdpOnly := parseBountySignal(entry.Bounty)

	program := models.Program{
		Platform:           platform,
		Name:               name,
		Slug:               slug,
		URL:                entry.URL,
		BountyMin:          bountyMin,
		BountyMax:          bountyMax,
		Assets:             entry.Domains,
		AssetTypes:         detectAssetTypes(entry.Domains),
		VDPOnly:            vdpOnly,
		AcceptsSubmissions: true,
		OffersBounties:     !vdpOnly,
		RawData:            raw,
	}
	program.Normalize()

	return program
}

// parseBountySignal classifies the free-text (or boolean) bounty field.
// Paid status is never inferred from absence: only an explicit "no"/"swag"
// signal marks a program VDP-only.
func parseBountySignal(bounty any) (bountyMin, bountyMax *int, vdpOnly bool) {
	var text string
	switch v := bounty.(type) {
	case bool:
		return nil, nil, !v
	case string:
		text = strings.ToLower(v)
	default:
		return nil, nil, false
	}

	switch {
	case strings.Contains(text, "yes") || strings.Contains(text, "$"):
		var amounts []int
		for _, match := range bountyAmountPattern.FindAllStringSubmatch(text, -1) {
			if amount, err := strconv.Atoi(strings.ReplaceAll(match[1], ",", "")); err == nil {
				amounts = append(amounts, amount)
			}
		}
		if len(amounts) >= 2 {
			lo, hi := amounts[0], amounts[0]
			for _, a := range amounts[1:] {
				if a < lo {
					lo = a
				}
				if a > hi {
					hi = a
				}
			}
			bountyMin, bountyMax = &lo, &hi
		} else if len(amounts) == 1 {
			bountyMax = &amounts[0]
		}
		return bountyMin, bountyMax, false
	case strings.Contains(text, "no") || strings.Contains(text, "swag"):
		return nil, nil, true
	default:
		return nil, nil, false
	}
}

var knownPlatformDomains = []struct {
	fragment string
	platform string
}{
	{"hackerone.com", "hackerone"},
	{"bugcrowd.com", "bugcrowd"},
	{"intigriti.com", "intigriti"},
	{"yeswehack.com", "yeswehack"},
	{"immunefi.com", "immunefi"},
	{"code4rena.com", "code4rena"},
	{"huntr.dev", "huntr"},
	{"huntr.com", "huntr"},
	{"algora.io", "algora"},
}

// detectPlatform attributes a program to the platform its URL points at.
func detectPlatform(programURL string) string {
	if programURL == "" {
		return "other"
	}
	parsed, err := url.Parse(programURL)
	if err != nil {
		return "other"
	}
	host := strings.ToLower(parsed.Hostname())
	for _, known := range knownPlatformDomains {
		if host == known.fragment || strings.HasSuffix(host, "."+known.fragment) {
			return known.platform
		}
	}
	return "other"
}

var slugSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// generateSlug derives a stable platform-local name from the program URL,
// falling back to the display name when no URL path is usable.
func generateSlug(programURL, name string) string {
	if programURL == "" {
		return strings.Trim(slugSanitizer.ReplaceAllString(strings.ToLower(name), "-"), "-")
	}

	parsed, err := url.Parse(programURL)
	if err != nil {
		return strings.Trim(slugSanitizer.ReplaceAllString(strings.ToLower(name), "-"), "-")
	}

	slug := ""
	if path := strings.Trim(parsed.Path, "/"); path != "" {
		parts := strings.Split(path, "/")
		slug = parts[len(parts)-1]
	} else {
		slug = strings.ReplaceAll(parsed.Hostname(), ".", "-")
	}

	slug = strings.Trim(slugSanitizer.ReplaceAllString(strings.ToLower(slug), "-"), "-")
	if slug == "" {
		return "unknown"
	}
	return slug
}

// detectAssetTypes categorizes the first few in-scope domains.
func detectAssetTypes(domains []string) []string {
	types := map[string]bool{}

	limit := len(domains)
	if limit > 10 {
		limit = 10
	}

	for _, domain := range domains[:limit] {
		lower := strings.ToLower(domain)
		if strings.Contains(lower, "api.") || strings.Contains(lower, "/api") {
			types["api"] = true
		}
		if strings.Contains(lower, "android") || strings.Contains(lower, "ios") ||
			strings.Contains(lower, "mobile") || strings.Contains(lower, "app") {
			types["mobile"] = true
		}
		if strings.HasPrefix(lower, "http") || strings.Contains(lower, ".") {
			types["web"] = true
		}
	}

	if len(types) == 0 {
		if len(domains) == 0 {
			return nil
		}
		return []string{"web"}
	}

	// Stable order keeps the stored record comparable across runs.
	var result []string
	for _, t := range []string{"api", "mobile", "web"} {
		if types[t] {
			result = append(result, t)
		}
	}
	return result
}

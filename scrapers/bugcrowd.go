package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonnylitten/bountyping/models"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	bugcrowdBaseURL = "https://bugcrowd.com"
	// bugcrowdMaxPages bounds pagination against a broken meta block.
	bugcrowdMaxPages = 100
)

// BugcrowdScraper walks Bugcrowd's paginated programs.json listing. Pages
// are fetched sequentially; the politeness delay applies between requests.
type BugcrowdScraper struct {
	baseURL string
	fetcher fetcher
}

func NewBugcrowdScraper(opts Options) *BugcrowdScraper {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = bugcrowdBaseURL
	}
	return &BugcrowdScraper{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		fetcher: newFetcher("bugcrowd", opts),
	}
}

func (s *BugcrowdScraper) PlatformName() string {
	return "bugcrowd"
}

func (s *BugcrowdScraper) FetchPrograms(ctx context.Context) ([]models.Program, error) {
	var programs []models.Program

	totalPages := int64(1)
	for page := int64(1); page <= totalPages && page <= bugcrowdMaxPages; page++ {
		body, err := s.fetcher.getJSON(ctx, fmt.Sprintf("%s/programs.json?page[]=%d", s.baseURL, page))
		if err != nil {
			return nil, err
		}

		listing := gjson.GetBytes(body, "programs")
		if !listing.Exists() {
			return nil, &SourceFetchError{
				Platform: s.PlatformName(),
				Err:      fmt.Errorf("listing page %d missing programs array", page),
			}
		}

		if pages := gjson.GetBytes(body, "meta.totalPages"); pages.Exists() {
			totalPages = pages.Int()
		}

		for _, entry := range listing.Array() {
			program, ok := s.parseProgram(entry)
			if !ok {
				continue
			}
			programs = append(programs, program)
		}
	}

	logrus.WithFields(logrus.Fields{
		"platform": "bugcrowd",
		"programs": len(programs),
		"pages":    totalPages,
	}).Info("Fetched Bugcrowd listing")

	return programs, nil
}

// parseProgram normalizes one listing entry. Entries without a program URL
// have no stable slug and are skipped.
func (s *BugcrowdScraper) parseProgram(entry gjson.Result) (models.Program, bool) {
	programPath := entry.Get("program_url").String()
	slug := strings.Trim(programPath, "/")
	if slug == "" {
		logrus.WithField("platform", "bugcrowd").Warn("Skipping listing entry without program_url")
		return models.Program{}, false
	}

	name := entry.Get("name").String()
	if name == "" {
		name = slug
	}

	// min_rewards/max_rewards are absent for disclosure-only programs; a
	// present max reward is the explicit paid signal.
	var bountyMin, bountyMax *int
	if min := entry.Get("min_rewards"); min.Exists() && min.Type != gjson.Null {
		amount := int(min.Int())
		if amount >= 0 {
			bountyMin = &amount
		}
	}
	if max := entry.Get("max_rewards"); max.Exists() && max.Type != gjson.Null {
		amount := int(max.Int())
		if amount >= 0 {
			bountyMax = &amount
		}
	}

	offersBounties := bountyMax != nil || bountyMin != nil
	vdpOnly := false
	if participation := entry.Get("participation"); participation.Exists() {
		vdpOnly = participation.String() == "vdp"
	} else if !offersBounties {
		vdpOnly = true
	}

	program := models.Program{
		Platform:           "bugcrowd",
		Name:               name,
		Slug:               slug,
		URL:                s.baseURL + "/" + slug,
		BountyMin:          bountyMin,
		BountyMax:          bountyMax,
		Managed:            entry.Get("managed_by_bugcrowd").Bool(),
		VDPOnly:            vdpOnly,
		AcceptsSubmissions: entry.Get("invited_status").String() == "open",
		OffersBounties:     offersBounties,
		RawData:            json.RawMessage(entry.Raw),
	}
	program.Normalize()

	return program, true
}

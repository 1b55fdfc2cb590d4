package scrapers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonnylitten/bountyping/models"
	"github.com/jonnylitten/bountyping/shared"
	"github.com/sirupsen/logrus"
)

const yesWeHackBaseURL = "https://yeswehack.com"

// YesWeHackScraper parses the server-rendered public programs directory.
// The markup has shifted between site revisions, so extraction uses
// fallback selectors per field rather than one fixed path.
type YesWeHackScraper struct {
	baseURL string
	fetcher fetcher
}

func NewYesWeHackScraper(opts Options) *YesWeHackScraper {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = yesWeHackBaseURL
	}
	return &YesWeHackScraper{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		fetcher: newFetcher("yeswehack", opts),
	}
}

func (s *YesWeHackScraper) PlatformName() string {
	return "yeswehack"
}

var programCardSelectors = []string{
	"div.program-card",
	"article.program",
	"div[data-program]",
	"li.program-item",
}

func (s *YesWeHackScraper) FetchPrograms(ctx context.Context) ([]models.Program, error) {
	request, err := http.NewRequest(http.MethodGet, s.baseURL+"/programs", nil)
	if err != nil {
		return nil, &SourceFetchError{Platform: s.PlatformName(), Err: err}
	}
	shared.SetBrowserLikeHeaders(request, "text/html,application/xhtml+xml")

	body, err := s.fetcher.do(ctx, request)
	if err != nil {
		return nil, err
	}

	document, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &SourceFetchError{
			Platform: s.PlatformName(),
			Err:      fmt.Errorf("failed to parse directory HTML: %w", err),
		}
	}

	cards := s.selectProgramCards(document)
	if cards == nil {
		return nil, &SourceFetchError{
			Platform: s.PlatformName(),
			Err:      fmt.Errorf("no program cards found in directory page"),
		}
	}

	var programs []models.Program
	skipped := 0
	cards.Each(func(_ int, card *goquery.Selection) {
		program, ok := s.parseCard(card)
		if !ok {
			skipped++
			return
		}
		programs = append(programs, program)
	})

	logrus.WithFields(logrus.Fields{
		"platform": "yeswehack",
		"programs": len(programs),
		"skipped":  skipped,
	}).Info("Fetched YesWeHack directory")

	return programs, nil
}

// selectProgramCards tries each known card selector and returns the first
// that matches anything.
func (s *YesWeHackScraper) selectProgramCards(document *goquery.Document) *goquery.Selection {
	for _, selector := range programCardSelectors {
		cards := document.Find(selector)
		if cards.Length() > 0 {
			return cards
		}
	}
	return nil
}

var rewardPattern = regexp.MustCompile(`[€$]\s*(\d+(?:[,.]\d{3})*)`)

// parseCard extracts one program from a directory card. Cards without a
// program link are skipped individually.
func (s *YesWeHackScraper) parseCard(card *goquery.Selection) (models.Program, bool) {
	href, exists := card.Find("a[href*='/programs/']").First().Attr("href")
	if !exists {
		href, exists = card.Find("a").First().Attr("href")
	}
	if !exists || !strings.Contains(href, "/programs/") {
		logrus.WithField("platform", "yeswehack").Warn("Skipping directory card without program link")
		return models.Program{}, false
	}

	slug := strings.Trim(href[strings.Index(href, "/programs/")+len("/programs/"):], "/")
	if slug == "" {
		return models.Program{}, false
	}

	name := extractText(card, "h2", "h3", ".program-title", ".title")
	if name == "" {
		name = slug
	}

	rewardText := extractText(card, ".reward", ".bounty-range", ".program-reward")
	bountyMin, bountyMax := parseRewardRange(rewardText)
	vdpOnly := strings.Contains(strings.ToLower(rewardText), "disclosure") ||
		strings.Contains(strings.ToLower(extractText(card, ".badge", ".program-type")), "vdp")

	currency := "USD"
	if strings.Contains(rewardText, "€") {
		currency = "EUR"
	}

	program := models.Program{
		Platform:           "yeswehack",
		Name:               name,
		Slug:               slug,
		URL:                s.baseURL + "/programs/" + slug,
		BountyMin:          bountyMin,
		BountyMax:          bountyMax,
		Currency:           currency,
		VDPOnly:            vdpOnly,
		AcceptsSubmissions: true,
		OffersBounties:     !vdpOnly && (bountyMin != nil || bountyMax != nil),
	}
	program.Normalize()

	return program, true
}

// extractText returns the first non-empty trimmed text among the selectors.
func extractText(selection *goquery.Selection, selectors ...string) string {
	for _, selector := range selectors {
		if text := strings.TrimSpace(selection.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// parseRewardRange reads "€50 - €5,000" style reward labels. A single
// amount is treated as the maximum.
func parseRewardRange(text string) (*int, *int) {
	matches := rewardPattern.FindAllStringSubmatch(text, -1)
	var amounts []int
	for _, match := range matches {
		cleaned := strings.NewReplacer(",", "", ".", "").Replace(match[1])
		if amount, err := strconv.Atoi(cleaned); err == nil {
			amounts = append(amounts, amount)
		}
	}

	switch len(amounts) {
	case 0:
		return nil, nil
	case 1:
		return nil, &amounts[0]
	default:
		lo, hi := amounts[0], amounts[0]
		for _, a := range amounts[1:] {
			if a < lo {
				lo = a
			}
			if a > hi {
				hi = a
			}
		}
		return &lo, &hi
	}
}

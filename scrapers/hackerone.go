package scrapers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jonnylitten/bountyping/models"
	"github.com/jonnylitten/bountyping/shared"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	hackerOneGraphQLURL = "https://hackerone.com/graphql"
	hackerOnePageSize   = 100
	// hackerOneMaxPages bounds the cursor loop against a broken pageInfo.
	hackerOneMaxPages = 50
)

// HackerOneScraper pulls the public program directory through HackerOne's
// GraphQL API, following the endCursor until the directory is exhausted.
type HackerOneScraper struct {
	graphqlURL string
	fetcher    fetcher
}

func NewHackerOneScraper(opts Options) *HackerOneScraper {
	url := opts.BaseURL
	if url == "" {
		url = hackerOneGraphQLURL
	}
	return &HackerOneScraper{
		graphqlURL: url,
		fetcher:    newFetcher("hackerone", opts),
	}
}

func (s *HackerOneScraper) PlatformName() string {
	return "hackerone"
}

const hackerOneDirectoryQuery = `
query DirectoryQuery($cursor: String) {
  teams(
    first: 100
    after: $cursor
    secure_order_by: {started_accepting_at: {_direction: DESC}}
    where: {state: {_eq: public_mode}}
  ) {
    pageInfo {
      endCursor
      hasNextPage
    }
    edges {
      node {
        id
        handle
        name
        currency
        state
        submission_state
        offers_bounties
        base_bounty
        started_accepting_at
      }
    }
  }
}`

func (s *HackerOneScraper) FetchPrograms(ctx context.Context) ([]models.Program, error) {
	var programs []models.Program
	cursor := ""

	for page := 1; page <= hackerOneMaxPages; page++ {
		logrus.WithFields(logrus.Fields{
			"platform": "hackerone",
			"page":     page,
		}).Debug("Fetching directory page")

		body, err := s.queryDirectory(ctx, cursor)
		if err != nil {
			return nil, err
		}

		if errs := gjson.GetBytes(body, "errors"); errs.Exists() {
			return nil, &SourceFetchError{
				Platform: s.PlatformName(),
				Err:      fmt.Errorf("graphql errors: %s", errs.Raw),
			}
		}

		edges := gjson.GetBytes(body, "data.teams.edges")
		if !edges.Exists() || len(edges.Array()) == 0 {
			break
		}

		for _, edge := range edges.Array() {
			node := edge.Get("node")
			program, ok := s.parseProgram(node)
			if !ok {
				continue
			}
			programs = append(programs, program)
		}

		if !gjson.GetBytes(body, "data.teams.pageInfo.hasNextPage").Bool() {
			break
		}
		cursor = gjson.GetBytes(body, "data.teams.pageInfo.endCursor").String()
	}

	logrus.WithFields(logrus.Fields{
		"platform": "hackerone",
		"programs": len(programs),
	}).Info("Fetched HackerOne directory")

	return programs, nil
}

func (s *HackerOneScraper) queryDirectory(ctx context.Context, cursor string) ([]byte, error) {
	variables := map[string]any{}
	if cursor != "" {
		variables["cursor"] = cursor
	}

	payload, err := json.Marshal(map[string]any{
		"query":     hackerOneDirectoryQuery,
		"variables": variables,
	})
	if err != nil {
		return nil, &SourceFetchError{Platform: s.PlatformName(), Err: err}
	}

	request, err := http.NewRequest(http.MethodPost, s.graphqlURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &SourceFetchError{Platform: s.PlatformName(), Err: err}
	}
	shared.SetBrowserLikeHeaders(request, "application/json")
	request.Header.Set("Content-Type", "application/json")

	return s.fetcher.do(ctx, request)
}

// parseProgram normalizes a single directory node. Nodes without a handle
// cannot be identified and are skipped.
func (s *HackerOneScraper) parseProgram(node gjson.Result) (models.Program, bool) {
	handle := node.Get("handle").String()
	if handle == "" {
		logrus.WithField("platform", "hackerone").Warn("Skipping directory node without handle")
		return models.Program{}, false
	}

	name := node.Get("name").String()
	if name == "" {
		name = handle
	}

	offersBounties := node.Get("offers_bounties").Bool()

	// base_bounty is the program's minimum payout. Only trusted when the
	// program actually offers bounties.
	var bountyMin *int
	if base := node.Get("base_bounty"); base.Exists() && base.Type != gjson.Null && offersBounties {
		amount := int(base.Float())
		if amount >= 0 {
			bountyMin = &amount
		}
	}

	currency := node.Get("currency").String()

	program := models.Program{
		Platform:           "hackerone",
		Name:               name,
		Slug:               handle,
		URL:                "https://hackerone.com/" + handle,
		BountyMin:          bountyMin,
		Currency:           currency,
		VDPOnly:            !offersBounties,
		AcceptsSubmissions: node.Get("submission_state").String() == "open",
		OffersBounties:     offersBounties,
		RawData:            json.RawMessage(node.Raw),
	}
	program.Normalize()

	return program, true
}

package scrapers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonnylitten/bountyping/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bugcrowdPageOne = `{
  "programs": [
    {
      "name": "Widgets",
      "program_url": "/widgets",
      "min_rewards": 100,
      "max_rewards": 5000,
      "participation": "bounty",
      "managed_by_bugcrowd": true,
      "invited_status": "open"
    },
    {
      "name": "Nameless",
      "program_url": ""
    }
  ],
  "meta": {"totalPages": 2}
}`

const bugcrowdPageTwo = `{
  "programs": [
    {
      "name": "Disclosure Co",
      "program_url": "/disclosure-co",
      "participation": "vdp",
      "invited_status": "closed"
    }
  ],
  "meta": {"totalPages": 2}
}`

func newBugcrowdTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/programs.json", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page[]") {
		case "2":
			w.Write([]byte(bugcrowdPageTwo))
		default:
			w.Write([]byte(bugcrowdPageOne))
		}
	}))
}

func TestBugcrowdWalksAllListingPages(t *testing.T) {
	server := newBugcrowdTestServer(t)
	defer server.Close()

	scraper := NewBugcrowdScraper(testOptions(server.URL))
	programs, err := scraper.FetchPrograms(context.Background())
	require.NoError(t, err)

	// Both pages collected; the entry without a program_url is skipped.
	require.Len(t, programs, 2)
	assert.Equal(t, "widgets", programs[0].Slug)
	assert.Equal(t, "disclosure-co", programs[1].Slug)
}

func TestBugcrowdNormalizesListingEntry(t *testing.T) {
	server := newBugcrowdTestServer(t)
	defer server.Close()

	scraper := NewBugcrowdScraper(testOptions(server.URL))
	programs, err := scraper.FetchPrograms(context.Background())
	require.NoError(t, err)
	require.Len(t, programs, 2)

	paid := programs[0]
	assert.Equal(t, "bugcrowd", paid.Platform)
	assert.Equal(t, models.ComputeIdentity("bugcrowd", "widgets"), paid.Identity)
	assert.Equal(t, server.URL+"/widgets", paid.URL)
	require.NotNil(t, paid.BountyMin)
	require.NotNil(t, paid.BountyMax)
	assert.Equal(t, 100, *paid.BountyMin)
	assert.Equal(t, 5000, *paid.BountyMax)
	assert.True(t, paid.Managed)
	assert.True(t, paid.OffersBounties)
	assert.False(t, paid.VDPOnly)
	assert.True(t, paid.AcceptsSubmissions)

	vdp := programs[1]
	assert.True(t, vdp.VDPOnly)
	assert.False(t, vdp.OffersBounties)
	assert.False(t, vdp.AcceptsSubmissions)
	assert.Nil(t, vdp.BountyMin)
	assert.Nil(t, vdp.BountyMax)
}

func TestBugcrowdMissingProgramsArrayFailsTheFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": "listing unavailable"}`)
	}))
	defer server.Close()

	scraper := NewBugcrowdScraper(testOptions(server.URL))
	_, err := scraper.FetchPrograms(context.Background())

	var fetchErr *SourceFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "bugcrowd", fetchErr.Platform)
}

func TestBugcrowdVDPWithoutParticipationField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
		  "programs": [{"name": "Quiet", "program_url": "/quiet"}],
		  "meta": {"totalPages": 1}
		}`)
	}))
	defer server.Close()

	scraper := NewBugcrowdScraper(testOptions(server.URL))
	programs, err := scraper.FetchPrograms(context.Background())
	require.NoError(t, err)
	require.Len(t, programs, 1)

	// No rewards and no participation field reads as disclosure-only.
	assert.True(t, programs[0].VDPOnly)
	assert.False(t, programs[0].OffersBounties)
}

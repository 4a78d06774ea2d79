// Package catalog fetches and validates country records from a REST Countries
// compatible endpoint.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	constants "github.com/CodeAndHammer/landludo/internal/constants"
	models "github.com/CodeAndHammer/landludo/internal/models"
	util "github.com/CodeAndHammer/landludo/internal/util"
)

const DefaultURL = "https://restcountries.com/v3.1/all"

const fields = "name,cca3,population,area,capital,flags,borders"

type rawCountry struct {
	Name struct {
		Common string `json:"common"`
	} `json:"name"`
	CCA3       string   `json:"cca3"`
	Population int64    `json:"population"`
	Area       *float64 `json:"area"`
	Capital    []string `json:"capital"`
	Flags      struct {
		PNG string `json:"png"`
		SVG string `json:"svg"`
	} `json:"flags"`
	Borders []string `json:"borders"`
}

// Client reads the catalog from URL, or from File when set.
type Client struct {
	URL        string
	File       string
	HTTPClient *http.Client
}

func NewClient(url, file string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		URL:        url,
		File:       file,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// FetchAll returns every valid country. Transport failures, malformed
// payloads and empty results are reported as ErrInvalidConfiguration.
func (c *Client) FetchAll(ctx context.Context) ([]models.Country, error) {
	data, err := c.read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidConfiguration, err)
	}
	countries, err := Parse(data)
	if err != nil {
		return nil, err
	}
	util.LogInfoCtx(ctx, "Catalog returned %d valid countries", len(countries))
	return countries, nil
}

func (c *Client) read(ctx context.Context) ([]byte, error) {
	if c.File != "" {
		return os.ReadFile(c.File)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("fields", fields)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog responded %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Parse decodes a v3.1 payload and keeps records with a name and a positive
// population.
func Parse(data []byte) ([]models.Country, error) {
	var raw []rawCountry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed catalog: %v", models.ErrInvalidConfiguration, err)
	}

	countries := lo.FilterMap(raw, func(r rawCountry, _ int) (models.Country, bool) {
		name := strings.TrimSpace(r.Name.Common)
		if name == "" || r.Population <= 0 {
			return models.Country{}, false
		}
		c := models.Country{
			Name:        name,
			Code:        strings.ToUpper(r.CCA3),
			Population:  r.Population,
			Capitals:    lo.Compact(r.Capital),
			BorderCodes: lo.Compact(r.Borders),
		}
		if r.Area != nil && *r.Area > 0 {
			c.Area = r.Area
		}
		if flag := lo.Ternary(r.Flags.PNG != "", r.Flags.PNG, r.Flags.SVG); flag != "" {
			c.FlagURL = &flag
		}
		return c, true
	})
	countries = lo.UniqBy(countries, func(c models.Country) string { return c.Name })

	if len(countries) == 0 {
		return nil, fmt.Errorf("%w: catalog contained no usable countries", models.ErrInvalidConfiguration)
	}
	return countries, nil
}

// Pool sorts by population and slices the band for a difficulty. Easy,
// medium and hard take consecutive bands of 30; "all" is the full catalog.
func Pool(countries []models.Country, difficulty string) ([]models.Country, error) {
	sorted := slices.Clone(countries)
	slices.SortStableFunc(sorted, func(a, b models.Country) int {
		switch {
		case a.Population > b.Population:
			return -1
		case a.Population < b.Population:
			return 1
		default:
			return 0
		}
	})

	band := map[string]int{
		constants.DifficultyEasy:   0,
		constants.DifficultyMedium: 1,
		constants.DifficultyHard:   2,
	}
	var pool []models.Country
	if difficulty == constants.DifficultyAll {
		pool = sorted
	} else if idx, ok := band[difficulty]; ok {
		start := min(idx*constants.DifficultyBandSize, len(sorted))
		end := min(start+constants.DifficultyBandSize, len(sorted))
		pool = sorted[start:end]
	} else {
		return nil, fmt.Errorf("%w: unknown difficulty %q", models.ErrInvalidConfiguration, difficulty)
	}

	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: no countries for difficulty %q", models.ErrInvalidConfiguration, difficulty)
	}
	return pool, nil
}

// CodeNames maps alpha-3 codes to common names for the border hint.
func CodeNames(countries []models.Country) map[string]string {
	withCode := lo.Filter(countries, func(c models.Country, _ int) bool { return c.Code != "" })
	return lo.Associate(withCode, func(c models.Country) (string, string) {
		return c.Code, c.Name
	})
}

func IsDifficulty(d string) bool {
	return slices.Contains([]string{
		constants.DifficultyEasy, constants.DifficultyMedium, constants.DifficultyHard, constants.DifficultyAll,
	}, d)
}

// Service caches the catalog and refetches after ttl or after a failure.
type Service struct {
	client    *Client
	ttl       time.Duration
	mu        sync.Mutex
	countries []models.Country
	fetchedAt time.Time
}

func NewService(client *Client, ttl time.Duration) *Service {
	return &Service{client: client, ttl: ttl}
}

func (s *Service) Countries(ctx context.Context) ([]models.Country, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.countries) > 0 && (s.ttl <= 0 || time.Since(s.fetchedAt) < s.ttl) {
		return s.countries, nil
	}

	countries, err := s.client.FetchAll(ctx)
	if err != nil {
		if len(s.countries) > 0 {
			util.LogWarnCtx(ctx, "Catalog refresh failed, serving cached copy: %v", err)
			return s.countries, nil
		}
		return nil, err
	}
	s.countries = countries
	s.fetchedAt = time.Now()
	return countries, nil
}

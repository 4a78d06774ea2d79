package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	catalog "github.com/CodeAndHammer/landludo/internal/catalog"
	constants "github.com/CodeAndHammer/landludo/internal/constants"
	models "github.com/CodeAndHammer/landludo/internal/models"
)

const samplePayload = `[
  {"name":{"common":"Germany"},"cca3":"DEU","population":83240525,"area":357114,
   "capital":["Berlin"],"flags":{"png":"https://flagcdn.com/w320/de.png","svg":"https://flagcdn.com/de.svg"},
   "borders":["AUT","FRA"]},
  {"name":{"common":"Austria"},"cca3":"AUT","population":8917205,"area":83871,
   "capital":["Vienna"],"flags":{"svg":"https://flagcdn.com/at.svg"},"borders":["DEU"]},
  {"name":{"common":"Bouvet Island"},"cca3":"BVT","population":0},
  {"name":{"common":""},"cca3":"XXX","population":10},
  {"name":{"common":"Antarctica Station"},"cca3":"ATS","population":5}
]`

func TestParse(t *testing.T) {
	countries, err := catalog.Parse([]byte(samplePayload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(countries) != 3 {
		t.Fatalf("len = %d, want 3", len(countries))
	}
	de := countries[0]
	if de.Name != "Germany" || de.Code != "DEU" || de.Area == nil || *de.Area != 357114 {
		t.Errorf("unexpected Germany: %+v", de)
	}
	if de.FlagURL == nil || !strings.HasSuffix(*de.FlagURL, ".png") {
		t.Errorf("png flag should be preferred: %v", de.FlagURL)
	}
	at := countries[1]
	if at.FlagURL == nil || !strings.HasSuffix(*at.FlagURL, ".svg") {
		t.Errorf("svg flag fallback: %v", at.FlagURL)
	}
	station := countries[2]
	if station.Area != nil || station.FlagURL != nil || len(station.Capitals) != 0 {
		t.Errorf("absent optional fields must stay absent: %+v", station)
	}
}

func TestParseMalformedAndEmpty(t *testing.T) {
	for _, payload := range []string{`{"status":404}`, `not json`, `[]`, `[{"name":{"common":"X"},"population":0}]`} {
		if _, err := catalog.Parse([]byte(payload)); !errors.Is(err, models.ErrInvalidConfiguration) {
			t.Errorf("Parse(%q) = %v, want ErrInvalidConfiguration", payload, err)
		}
	}
}

func TestClientFetchAll(t *testing.T) {
	var gotFields string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFields = r.URL.Query().Get("fields")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, samplePayload)
	}))
	defer srv.Close()

	c := catalog.NewClient(srv.URL, "", 2*time.Second)
	countries, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(countries) != 3 {
		t.Errorf("len = %d, want 3", len(countries))
	}
	if !strings.Contains(gotFields, "borders") {
		t.Errorf("fields query = %q", gotFields)
	}
}

func TestClientFetchAllServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := catalog.NewClient(srv.URL, "", time.Second).FetchAll(context.Background())
	if !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestClientFetchAllFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "countries.json")
	if err := os.WriteFile(path, []byte(samplePayload), 0o644); err != nil {
		t.Fatal(err)
	}
	countries, err := catalog.NewClient("", path, time.Second).FetchAll(context.Background())
	if err != nil || len(countries) != 3 {
		t.Fatalf("FetchAll from file = %d, %v", len(countries), err)
	}
}

func makeCountries(n int) []models.Country {
	out := make([]models.Country, n)
	for i := range out {
		out[i] = models.Country{Name: fmt.Sprintf("C%03d", i), Population: int64(i + 1)}
	}
	return out
}

func TestPool(t *testing.T) {
	countries := makeCountries(100)
	cases := []struct {
		difficulty string
		size       int
		first      string
	}{
		{constants.DifficultyEasy, 30, "C099"},
		{constants.DifficultyMedium, 30, "C069"},
		{constants.DifficultyHard, 30, "C039"},
		{constants.DifficultyAll, 100, "C099"},
	}
	for _, c := range cases {
		t.Run(c.difficulty, func(t *testing.T) {
			pool, err := catalog.Pool(countries, c.difficulty)
			if err != nil {
				t.Fatal(err)
			}
			if len(pool) != c.size || pool[0].Name != c.first {
				t.Errorf("pool size %d first %s, want %d %s", len(pool), pool[0].Name, c.size, c.first)
			}
		})
	}

	if _, err := catalog.Pool(makeCountries(40), constants.DifficultyHard); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("short catalog hard pool: %v", err)
	}
	if _, err := catalog.Pool(countries, "nightmare"); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("unknown difficulty: %v", err)
	}
}

func TestCodeNames(t *testing.T) {
	m := catalog.CodeNames([]models.Country{{Name: "Germany", Code: "DEU"}, {Name: "Nowhere"}})
	if len(m) != 1 || m["DEU"] != "Germany" {
		t.Errorf("CodeNames = %v", m)
	}
}

func TestServiceCachesAndServesStale(t *testing.T) {
	var calls atomic.Int32
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if fail.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, samplePayload)
	}))
	defer srv.Close()

	svc := catalog.NewService(catalog.NewClient(srv.URL, "", time.Second), time.Nanosecond)
	ctx := context.Background()
	if _, err := svc.Countries(ctx); err != nil {
		t.Fatal(err)
	}
	fail.Store(true)
	time.Sleep(time.Millisecond)
	countries, err := svc.Countries(ctx)
	if err != nil || len(countries) != 3 {
		t.Errorf("stale copy expected, got %d, %v", len(countries), err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}

	cached := catalog.NewService(catalog.NewClient(srv.URL, "", time.Second), time.Hour)
	if _, err := cached.Countries(ctx); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("first fetch failure should surface, got %v", err)
	}
}

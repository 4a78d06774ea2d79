package geo

import (
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
	"github.com/samber/lo"

	util "github.com/CodeAndHammer/landludo/internal/util"
)

var nameProperties = []string{"NAME", "NAME_LONG", "ADMIN", "NAME_EN", "name"}

var codeProperties = []string{"ISO_A3", "ADM0_A3", "ISO_A3_EH", "iso_a3"}

// Resolver looks up country shapes by ISO alpha-3 code or by name.
type Resolver struct {
	byCode map[string]*Shape
	byName map[string]*Shape
}

func NewResolver() *Resolver {
	return &Resolver{
		byCode: make(map[string]*Shape),
		byName: make(map[string]*Shape),
	}
}

// LoadResolver reads a GeoJSON FeatureCollection from path. A missing file
// yields an empty resolver so map guesses degrade to misses.
func LoadResolver(path string) (*Resolver, error) {
	if path == "" || !util.FileExists(path) {
		util.LogWarn("Geodata file %q not found, map guesses will not resolve", path)
		return NewResolver(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geodata: %w", err)
	}
	r, err := ParseResolver(data)
	if err != nil {
		return nil, err
	}
	util.LogInfo("Loaded %d country shapes from %s", r.Len(), path)
	return r, nil
}

func ParseResolver(data []byte) (*Resolver, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse geodata: %w", err)
	}

	r := NewResolver()
	for _, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}

		names := lo.Uniq(lo.Compact(lo.Map(nameProperties, func(key string, _ int) string {
			return strings.TrimSpace(f.Properties.MustString(key, ""))
		})))
		if len(names) == 0 {
			continue
		}
		code := lo.FindOrElse(lo.Map(codeProperties, func(key string, _ int) string {
			return strings.ToUpper(strings.TrimSpace(f.Properties.MustString(key, "")))
		}), "", validCode)

		r.Add(&Shape{
			Name:     names[0],
			Code:     code,
			Geometry: f.Geometry,
			Centroid: Centroid(f.Geometry),
		}, names[1:]...)
	}
	return r, nil
}

// Natural Earth marks unassigned codes as -99.
func validCode(code string) bool {
	return len(code) == 3 && code != "-99"
}

// Add indexes a shape under its code, its name and any aliases.
func (r *Resolver) Add(s *Shape, aliases ...string) {
	if s.Code != "" {
		if _, taken := r.byCode[s.Code]; !taken {
			r.byCode[s.Code] = s
		}
	}
	for _, n := range append([]string{s.Name}, aliases...) {
		key := normalizeName(n)
		if _, taken := r.byName[key]; !taken && key != "" {
			r.byName[key] = s
		}
	}
}

// Resolve finds a shape by name.
func (r *Resolver) Resolve(name string) (*Shape, bool) {
	if r == nil {
		return nil, false
	}
	s, ok := r.byName[normalizeName(name)]
	return s, ok
}

// ResolveCountry tries the ISO code first, then the name.
func (r *Resolver) ResolveCountry(code, name string) (*Shape, bool) {
	if r == nil {
		return nil, false
	}
	if s, ok := r.byCode[strings.ToUpper(code)]; ok && code != "" {
		return s, true
	}
	return r.Resolve(name)
}

func (r *Resolver) Len() int {
	if r == nil {
		return 0
	}
	return len(lo.Uniq(lo.Values(r.byName)))
}

// Centroid computes the area centroid in Web Mercator and projects it back
// to WGS84.
func Centroid(g orb.Geometry) orb.Point {
	merc := project.Geometry(orb.Clone(g), project.WGS84.ToMercator)
	c, _ := planar.CentroidArea(merc)
	return project.Point(c, project.Mercator.ToWGS84)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

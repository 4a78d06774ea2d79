package game

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	constants "github.com/CodeAndHammer/landludo/internal/constants"
	models "github.com/CodeAndHammer/landludo/internal/models"
)

var printer = message.NewPrinter(language.English)

// ValidateHintOrder requires a permutation of every hint kind.
func ValidateHintOrder(order []string) error {
	if len(order) != len(constants.DefaultHintOrder) {
		return fmt.Errorf("%w: hint order needs %d kinds, got %d", models.ErrInvalidConfiguration, len(constants.DefaultHintOrder), len(order))
	}
	if missing, _ := lo.Difference(constants.DefaultHintOrder, order); len(missing) > 0 {
		return fmt.Errorf("%w: hint order is missing %s", models.ErrInvalidConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// Hints lists every hint revealed so far, lowest level first.
func Hints(s *models.GameSession) []models.Hint {
	order := s.HintOrder
	if ValidateHintOrder(order) != nil {
		order = constants.DefaultHintOrder
	}
	level := min(max(s.Round.HintLevel, 1), constants.MaxHintLevel)
	return lo.Map(order[:level], func(kind string, i int) models.Hint {
		return BuildHint(s.Round.Target, kind, i+1, s.CodeNames)
	})
}

// BuildHint renders one hint for a country. codeNames maps border codes to
// display names; unknown codes are shown as is.
func BuildHint(c models.Country, kind string, level int, codeNames map[string]string) models.Hint {
	h := models.Hint{Level: level, Kind: kind}
	switch kind {
	case constants.HintPopulation:
		h.Label = "Population"
		h.Text = FormatNumber(c.Population)
	case constants.HintArea:
		h.Label = "Area"
		if c.Area != nil && *c.Area > 0 {
			h.Text = FormatNumber(int64(math.Trunc(*c.Area))) + " km²"
		} else {
			h.Text = "Unknown"
		}
	case constants.HintFlag:
		h.Label = "Flag"
		if c.FlagURL != nil && *c.FlagURL != "" {
			h.ImageURL = *c.FlagURL
		} else {
			h.Text = "Unknown"
		}
	case constants.HintCapital:
		h.Label = "Capital"
		if len(c.Capitals) > 0 {
			h.Text = strings.Join(c.Capitals, ", ")
		} else {
			h.Text = "Unknown"
		}
	case constants.HintBorders:
		h.Label = "Borders"
		names := lo.Map(c.BorderCodes, func(code string, _ int) string {
			if name, ok := codeNames[code]; ok {
				return name
			}
			return code
		})
		if len(names) > 0 {
			h.Text = strings.Join(names, ", ")
		} else {
			h.Text = "None"
		}
	default:
		h.Label = kind
	}
	return h
}

func FormatNumber(n int64) string {
	return printer.Sprintf("%d", n)
}

// ParseHintOrder accepts a configured order, falling back to the default.
func ParseHintOrder(order []string) ([]string, error) {
	normalized := lo.Map(order, func(k string, _ int) string {
		return strings.ToLower(strings.TrimSpace(k))
	})
	if err := ValidateHintOrder(normalized); err != nil {
		return slices.Clone(constants.DefaultHintOrder), err
	}
	return normalized, nil
}

package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/tripcore/internal/core/domain"
	"github.com/samirrijal/tripcore/internal/core/ports"
	"github.com/samirrijal/tripcore/internal/pkg/geospatial"
	"github.com/samirrijal/tripcore/internal/pkg/metrics"
	"github.com/samirrijal/tripcore/internal/pkg/recovery"
)

const (
	maxPromptLength   = 4000
	maxLocatePlaces   = 25
	locateConcurrency = 4
)

// placeNameKeys are checked in order on every object inside an array of the plan document.
var placeNameKeys = []string{"place", "location", "address", "name"}

// PlanService turns a prompt into a recovered, located trip plan.
type PlanService struct {
	generator ports.TextGenerator
	places    ports.PlaceSearcher
	now       func() time.Time
	log       *slog.Logger
}

// NewPlanService creates a new PlanService. places may be nil when lookups are disabled.
func NewPlanService(generator ports.TextGenerator, places ports.PlaceSearcher) *PlanService {
	return &PlanService{
		generator: generator,
		places:    places,
		now:       time.Now,
		log:       slog.Default(),
	}
}

// Generate asks the generation backend for a plan and recovers its document.
// With locate set, place names found in the document are resolved and framed.
func (s *PlanService) Generate(ctx context.Context, prompt string, locate bool) (*domain.TripPlan, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt must not be empty", domain.ErrInvalidInput)
	}
	if len(prompt) > maxPromptLength {
		return nil, fmt.Errorf("%w: prompt exceeds %d characters", domain.ErrInvalidInput, maxPromptLength)
	}

	raw, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	doc, err := s.Parse(raw)
	if err != nil {
		s.log.Warn("generation output could not be recovered", "length", len(raw))
		return nil, err
	}

	plan := &domain.TripPlan{
		ID:          uuid.NewString(),
		Prompt:      prompt,
		Document:    doc,
		GeneratedAt: s.now().UTC(),
	}

	if locate {
		located, geometry, err := s.locateDocument(ctx, doc)
		if err != nil {
			return nil, err
		}
		plan.Places = located
		plan.Geometry = geometry
	}

	return plan, nil
}

// Parse recovers a structured document from raw generation output.
func (s *PlanService) Parse(raw any) (any, error) {
	doc, stage := recovery.ParseWithStage(raw)
	metrics.RecoveryStages.WithLabelValues(stage.String()).Inc()
	if doc == nil {
		return nil, domain.ErrRecoveryFailed
	}
	return doc, nil
}

// Locate resolves place names concurrently and frames the results.
// Names that resolve to nothing are kept without a location. Only authorization
// failures abort the lookup.
func (s *PlanService) Locate(ctx context.Context, names []string, near *domain.GeoPoint) ([]domain.LocatedPlace, *domain.PlanGeometry, error) {
	located := make([]domain.LocatedPlace, 0, len(names))
	for _, name := range dedupeNames(names) {
		located = append(located, domain.LocatedPlace{Name: name})
	}
	if err := s.resolve(ctx, located, near); err != nil {
		return nil, nil, err
	}
	return located, s.geometryOf(located), nil
}

// Geometry computes centre, padded bounds and leg distances over any coordinate shapes.
func (s *PlanService) Geometry(points []any) *domain.PlanGeometry {
	valid := geospatial.ValidPoints(points)
	geometry := &domain.PlanGeometry{Points: len(valid)}
	if len(valid) == 0 {
		return geometry
	}

	if center, ok := geospatial.CalculateCenter(points); ok {
		geometry.Center = &center
	}
	if bounds, ok := geospatial.CalculateBounds(points); ok {
		geometry.Bounds = &bounds
	}
	geometry.LegsKm, geometry.TotalKm = geospatial.RouteLegs(valid)
	return geometry
}

func (s *PlanService) locateDocument(ctx context.Context, doc any) ([]domain.LocatedPlace, *domain.PlanGeometry, error) {
	located := collectPlaces(doc)
	if err := s.resolve(ctx, located, nil); err != nil {
		return nil, nil, err
	}
	return located, s.geometryOf(located), nil
}

// resolve fills Place and Location for entries that have no location yet.
func (s *PlanService) resolve(ctx context.Context, located []domain.LocatedPlace, near *domain.GeoPoint) error {
	if s.places == nil {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(locateConcurrency)

	for i := range located {
		if located[i].Location != nil {
			continue
		}
		i := i
		g.Go(func() error {
			results, err := s.places.SearchPlaces(ctx, domain.PlaceQuery{Query: located[i].Name, Near: near})
			if err != nil {
				return fmt.Errorf("locate %q: %w", located[i].Name, err)
			}
			if len(results) == 0 {
				return nil
			}
			place := results[0]
			loc := place.Location
			located[i].Place = &place
			located[i].Location = &loc
			return nil
		})
	}

	return g.Wait()
}

func (s *PlanService) geometryOf(located []domain.LocatedPlace) *domain.PlanGeometry {
	points := make([]any, 0, len(located))
	for _, lp := range located {
		if lp.Location != nil {
			points = append(points, *lp.Location)
		}
	}
	return s.Geometry(points)
}

// collectPlaces walks the document and returns one entry per named object found
// inside an array. Objects that already carry coordinates keep them.
func collectPlaces(doc any) []domain.LocatedPlace {
	var out []domain.LocatedPlace
	seen := map[string]bool{}

	var walk func(v any, inArray bool)
	walk = func(v any, inArray bool) {
		if len(out) >= maxLocatePlaces {
			return
		}
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				walk(item, true)
			}
		case map[string]any:
			if inArray {
				if name := placeName(t); name != "" && !seen[strings.ToLower(name)] {
					seen[strings.ToLower(name)] = true
					lp := domain.LocatedPlace{Name: name}
					if p, ok := geospatial.ExtractCoordinates(t); ok {
						lp.Location = &p
					}
					out = append(out, lp)
				}
			}
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				switch t[k].(type) {
				case []any, map[string]any:
					walk(t[k], false)
				}
			}
		}
	}
	walk(doc, false)
	return out
}

func placeName(obj map[string]any) string {
	for _, key := range placeNameKeys {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func dedupeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
		if len(out) == maxLocatePlaces {
			break
		}
	}
	return out
}

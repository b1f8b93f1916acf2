package http

import (
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/tripcore/internal/core/domain"
	"github.com/samirrijal/tripcore/internal/pkg/geospatial"
)

// buildSchema creates the GraphQL schema wired to our services.
// Object fields use the json tag names of the domain types so the default resolver applies.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	pointInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "PointInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"lat": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"lng": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
		},
	})

	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "BoundingBox",
		Fields: graphql.Fields{
			"northeast": &graphql.Field{Type: geoPointType},
			"southwest": &graphql.Field{Type: geoPointType},
		},
	})

	geometryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "PlanGeometry",
		Fields: graphql.Fields{
			"center":   &graphql.Field{Type: geoPointType},
			"bounds":   &graphql.Field{Type: boundsType},
			"points":   &graphql.Field{Type: graphql.Int},
			"legs_km":  &graphql.Field{Type: graphql.NewList(graphql.Float)},
			"total_km": &graphql.Field{Type: graphql.Float},
		},
	})

	categoryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "UsageCategory",
		Fields: graphql.Fields{
			"category":   &graphql.Field{Type: graphql.String},
			"count":      &graphql.Field{Type: graphql.Int},
			"limit":      &graphql.Field{Type: graphql.Int},
			"percentage": &graphql.Field{Type: graphql.Int},
		},
	})

	usageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Usage",
		Fields: graphql.Fields{
			"categories": &graphql.Field{Type: graphql.NewList(categoryType)},
			"total":      &graphql.Field{Type: graphql.Int},
			"last_reset": &graphql.Field{Type: graphql.String},
		},
	})

	placeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Place",
		Fields: graphql.Fields{
			"place_id":          &graphql.Field{Type: graphql.String},
			"name":              &graphql.Field{Type: graphql.String},
			"formatted_address": &graphql.Field{Type: graphql.String},
			"location":          &graphql.Field{Type: geoPointType},
			"rating":            &graphql.Field{Type: graphql.Float},
			"types":             &graphql.Field{Type: graphql.NewList(graphql.String)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"usage": &graphql.Field{
				Type:        usageType,
				Description: "Daily quota counters per category",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return usageView(deps.Usage.GetUsageStats()), nil
				},
			},
			"distance": &graphql.Field{
				Type:        graphql.Float,
				Description: "Great-circle distance in kilometers",
				Args: graphql.FieldConfigArgument{
					"from": &graphql.ArgumentConfig{Type: graphql.NewNonNull(pointInput)},
					"to":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(pointInput)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					from, _ := geospatial.ExtractCoordinates(p.Args["from"])
					to, _ := geospatial.ExtractCoordinates(p.Args["to"])
					return geospatial.CalculateDistance(from, to), nil
				},
			},
			"geometry": &graphql.Field{
				Type:        geometryType,
				Description: "Centre, bounds and leg distances for a list of points",
				Args: graphql.FieldConfigArgument{
					"points": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(pointInput)))},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					points, _ := p.Args["points"].([]interface{})
					return deps.Plans.Geometry(points), nil
				},
			},
			"places": &graphql.Field{
				Type:        graphql.NewList(placeType),
				Description: "Text search for places, optionally biased to a point",
				Args: graphql.FieldConfigArgument{
					"query": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"near":  &graphql.ArgumentConfig{Type: pointInput},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Discovery == nil {
						return []domain.Place{}, nil
					}
					q := domain.PlaceQuery{Query: p.Args["query"].(string)}
					if near, ok := p.Args["near"]; ok && near != nil {
						if pt, ok := geospatial.ExtractCoordinates(near); ok {
							q.Near = &pt
						}
					}
					return deps.Discovery.SearchPlaces(p.Context, q)
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"resetUsage": &graphql.Field{
				Type:        usageType,
				Description: "Zero the daily quota counters",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					deps.Usage.ResetCounters(p.Context)
					return usageView(deps.Usage.GetUsageStats()), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// usageView flattens the category map into a list sorted by category name.
func usageView(stats domain.UsageStats) map[string]interface{} {
	names := make([]string, 0, len(stats.Categories))
	for name := range stats.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	categories := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		s := stats.Categories[name]
		categories = append(categories, map[string]interface{}{
			"category":   name,
			"count":      s.Count,
			"limit":      s.Limit,
			"percentage": s.Percentage,
		})
	}
	return map[string]interface{}{
		"categories": categories,
		"total":      stats.Total,
		"last_reset": stats.LastReset,
	}
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Query == "" {
			return errBadRequest(c, "query is required")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}

package http

import (
	"maps"
	"slices"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/core/usecases"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	lotTypeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LotType",
		Fields: graphql.Fields{
			"code":  &graphql.Field{Type: graphql.String},
			"label": &graphql.Field{Type: graphql.String},
		},
	})

	carparkType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Carpark",
		Fields: graphql.Fields{
			"id":        &graphql.Field{Type: graphql.String},
			"latitude":  &graphql.Field{Type: graphql.Float},
			"longitude": &graphql.Field{Type: graphql.Float},
		},
	})

	occupancyFields := func() graphql.Fields {
		return graphql.Fields{
			"available_lots":   &graphql.Field{Type: graphql.Int},
			"total_lots":       &graphql.Field{Type: graphql.Int},
			"lot_type":         &graphql.Field{Type: graphql.String},
			"occupancy_ratio":  &graphql.Field{Type: graphql.Float},
			"congestion_level": &graphql.Field{Type: graphql.String},
		}
	}

	facilityFields := occupancyFields()
	for name, t := range map[string]graphql.Output{
		"id":                        graphql.String,
		"latitude":                  graphql.Float,
		"longitude":                 graphql.Float,
		"distance_km":               graphql.Float,
		"walking_minutes":           graphql.Int,
		"directions_url":            graphql.String,
		"address":                   graphql.String,
		"agency":                    graphql.String,
		"type":                      graphql.String,
		"parking_system_type":       graphql.String,
		"short_term_parking_period": graphql.String,
		"free_parking_period":       graphql.String,
		"night_parking_flag":        graphql.Int,
		"basement_flag":             graphql.Int,
		"deck_count":                graphql.Int,
		"gantry_height":             graphql.Float,
		"estimated_fee":             graphql.Float,
		"partial":                   graphql.Boolean,
	} {
		facilityFields[name] = &graphql.Field{Type: t}
	}
	facilityType := graphql.NewObject(graphql.ObjectConfig{
		Name:   "NearbyFacility",
		Fields: facilityFields,
	})

	nearbyStateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "NearbyState",
		Fields: graphql.Fields{
			"results":    &graphql.Field{Type: graphql.NewList(facilityType)},
			"loading":    &graphql.Field{Type: graphql.Boolean},
			"status":     &graphql.Field{Type: graphql.String},
			"updated_at": &graphql.Field{Type: graphql.String},
		},
	})

	entryFields := occupancyFields()
	entryFields["id"] = &graphql.Field{Type: graphql.String}
	availabilityEntryType := graphql.NewObject(graphql.ObjectConfig{
		Name:   "AvailabilityEntry",
		Fields: entryFields,
	})

	availabilityStateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "AvailabilityState",
		Fields: graphql.Fields{
			"entries":    &graphql.Field{Type: graphql.NewList(availabilityEntryType)},
			"loading":    &graphql.Field{Type: graphql.Boolean},
			"error":      &graphql.Field{Type: graphql.String},
			"updated_at": &graphql.Field{Type: graphql.String},
		},
	})

	focusStateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "FocusState",
		Fields: graphql.Fields{
			"id":       &graphql.Field{Type: graphql.String},
			"facility": &graphql.Field{Type: facilityType},
			"loading":  &graphql.Field{Type: graphql.Boolean},
		},
	})

	sessionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Session",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.String},
			"effective_anchor": &graphql.Field{Type: geoPointType},
			"map_center":       &graphql.Field{Type: geoPointType},
			"window_start":     &graphql.Field{Type: graphql.String},
			"window_end":       &graphql.Field{Type: graphql.String},
			"lot_type":         &graphql.Field{Type: graphql.String},
			"radius_km":        &graphql.Field{Type: graphql.Float},
			"focus_id":         &graphql.Field{Type: graphql.String},
		},
	})

	placeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Place",
		Fields: graphql.Fields{
			"display_name": &graphql.Field{Type: graphql.String},
			"lat":          &graphql.Field{Type: graphql.Float},
			"lon":          &graphql.Field{Type: graphql.Float},
		},
	})

	sessionArg := &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}
	lookup := func(p graphql.ResolveParams) (*usecases.Session, error) {
		return deps.Sessions.Get(p.Args["session"].(string))
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"lotTypes": &graphql.Field{
				Type:        graphql.NewList(lotTypeType),
				Description: "Vehicle lot codes",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					out := []map[string]interface{}{}
					for _, t := range domain.LotTypes() {
						out = append(out, map[string]interface{}{"code": string(t.Code), "label": t.Label})
					}
					return out, nil
				},
			},
			"carpark": &graphql.Field{
				Type:        carparkType,
				Description: "Get a catalog entry by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					loc, err := deps.Catalog.Lookup(p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					return locationMap(loc), nil
				},
			},
			"carparks": &graphql.Field{
				Type:        graphql.NewList(carparkType),
				Description: "Page through the facility catalog",
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: defaultPageLimit},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					offset := max(p.Args["offset"].(int), 0)
					limit := min(max(p.Args["limit"].(int), 1), maxPageLimit)
					items, _ := deps.Catalog.Page(offset, limit)
					out := make([]map[string]interface{}, 0, len(items))
					for _, loc := range items {
						out = append(out, locationMap(loc))
					}
					return out, nil
				},
			},
			"session": &graphql.Field{
				Type:        sessionType,
				Description: "Inputs of a locator session",
				Args:        graphql.FieldConfigArgument{"session": sessionArg},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s, err := lookup(p)
					if err != nil {
						return nil, err
					}
					return snapshotMap(s.Snapshot()), nil
				},
			},
			"nearby": &graphql.Field{
				Type:        nearbyStateType,
				Description: "Facilities near the session anchor",
				Args: graphql.FieldConfigArgument{
					"session": sessionArg,
					"sort":    &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: string(domain.SortByDistance)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s, err := lookup(p)
					if err != nil {
						return nil, err
					}
					key, err := usecases.ParseSortKey(p.Args["sort"].(string))
					if err != nil {
						return nil, err
					}
					st := s.Nearby(key)
					results := make([]map[string]interface{}, 0, len(st.Results))
					for _, f := range st.Results {
						results = append(results, facilityMap(f))
					}
					return map[string]interface{}{
						"results":    results,
						"loading":    st.Loading,
						"status":     string(st.Status),
						"updated_at": timeString(st.UpdatedAt),
					}, nil
				},
			},
			"availability": &graphql.Field{
				Type:        availabilityStateType,
				Description: "Occupancy across the catalog for the session window and lot type",
				Args:        graphql.FieldConfigArgument{"session": sessionArg},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s, err := lookup(p)
					if err != nil {
						return nil, err
					}
					st := s.Availability()
					entries := make([]map[string]interface{}, 0, len(st.Availability))
					for _, id := range slices.Sorted(maps.Keys(st.Availability)) {
						m := occupancyMap(st.Availability[id])
						m["id"] = id
						entries = append(entries, m)
					}
					return map[string]interface{}{
						"entries":    entries,
						"loading":    st.Loading,
						"error":      derefString(st.Error),
						"updated_at": timeString(st.UpdatedAt),
					}, nil
				},
			},
			"focused": &graphql.Field{
				Type:        focusStateType,
				Description: "The focused facility of a session",
				Args:        graphql.FieldConfigArgument{"session": sessionArg},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s, err := lookup(p)
					if err != nil {
						return nil, err
					}
					return focusMap(s.Focused()), nil
				},
			},
			"searchPlaces": &graphql.Field{
				Type:        graphql.NewList(placeType),
				Description: "Free-text place search",
				Args: graphql.FieldConfigArgument{
					"query": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					places, err := deps.Search.Search(p.Context, p.Args["query"].(string))
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, 0, len(places))
					for _, pl := range places {
						out = append(out, map[string]interface{}{"display_name": pl.DisplayName, "lat": pl.Lat, "lon": pl.Lon})
					}
					return out, nil
				},
			},
		},
	})

	pointArgs := graphql.FieldConfigArgument{
		"session": sessionArg,
		"lat":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
		"lon":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
	}
	pointMutation := func(desc string, apply func(*usecases.Session, domain.GeoPoint) error) *graphql.Field {
		return &graphql.Field{
			Type:        sessionType,
			Description: desc,
			Args:        pointArgs,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				s, err := lookup(p)
				if err != nil {
					return nil, err
				}
				pt := domain.GeoPoint{Lat: p.Args["lat"].(float64), Lon: p.Args["lon"].(float64)}
				if !pt.Valid() {
					return nil, errInvalidPoint
				}
				if err := apply(s, pt); err != nil {
					return nil, err
				}
				return snapshotMap(s.Snapshot()), nil
			},
		}
	}

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createSession": &graphql.Field{
				Type:        sessionType,
				Description: "Start a locator session at the map center",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return snapshotMap(deps.Sessions.Create().Snapshot()), nil
				},
			},
			"setCurrentLocation": pointMutation("Apply a device location fix", (*usecases.Session).SetCurrentLocation),
			"selectLocation":     pointMutation("Apply a manual location pick", (*usecases.Session).SelectLocation),
			"focusCarpark": &graphql.Field{
				Type:        focusStateType,
				Description: "Focus one facility and fetch its details",
				Args: graphql.FieldConfigArgument{
					"session": sessionArg,
					"id":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s, err := lookup(p)
					if err != nil {
						return nil, err
					}
					if err := s.Focus(p.Args["id"].(string)); err != nil {
						return nil, err
					}
					return focusMap(s.Focused()), nil
				},
			},
			"clearFocus": &graphql.Field{
				Type:        graphql.Boolean,
				Description: "Drop the focused facility",
				Args:        graphql.FieldConfigArgument{"session": sessionArg},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s, err := lookup(p)
					if err != nil {
						return nil, err
					}
					return true, s.ClearFocus()
				},
			},
			"refetchAvailability": &graphql.Field{
				Type:        graphql.Boolean,
				Description: "Repeat the last availability query",
				Args:        graphql.FieldConfigArgument{"session": sessionArg},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s, err := lookup(p)
					if err != nil {
						return nil, err
					}
					return true, s.RefetchAvailability()
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
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

// graphql-go resolves map sources by key, so domain values are flattened
// into maps with nil standing in for absent numbers.

func locationMap(loc domain.FacilityLocation) map[string]interface{} {
	return map[string]interface{}{"id": loc.ID, "latitude": loc.Latitude, "longitude": loc.Longitude}
}

func occupancyMap(o domain.Occupancy) map[string]interface{} {
	return map[string]interface{}{
		"available_lots":   derefInt(o.AvailableLots),
		"total_lots":       derefInt(o.TotalLots),
		"lot_type":         derefString(o.LotType),
		"occupancy_ratio":  derefFloat(o.OccupancyRatio),
		"congestion_level": string(o.CongestionLevel),
	}
}

func facilityMap(f domain.NearbyFacility) map[string]interface{} {
	m := occupancyMap(f.Occupancy)
	m["id"] = f.ID
	m["latitude"] = f.Latitude
	m["longitude"] = f.Longitude
	m["distance_km"] = f.DistanceKm
	m["walking_minutes"] = f.WalkingMinutes
	m["directions_url"] = f.DirectionsURL
	m["address"] = f.Address
	m["agency"] = f.Agency
	m["type"] = f.Type
	m["parking_system_type"] = f.ParkingSystemType
	m["short_term_parking_period"] = f.ShortTermParkingPeriod
	m["free_parking_period"] = f.FreeParkingPeriod
	m["night_parking_flag"] = derefInt(f.NightParkingFlag)
	m["basement_flag"] = derefInt(f.BasementFlag)
	m["deck_count"] = derefInt(f.DeckCount)
	m["gantry_height"] = derefFloat(f.GantryHeight)
	m["estimated_fee"] = derefFloat(f.EstimatedFee)
	m["partial"] = f.Partial
	return m
}

func focusMap(st domain.FocusState) map[string]interface{} {
	m := map[string]interface{}{
		"id":       derefString(st.ID),
		"loading":  st.Loading,
		"facility": nil,
	}
	if st.Facility != nil {
		m["facility"] = facilityMap(*st.Facility)
	}
	return m
}

func snapshotMap(s usecases.SessionSnapshot) map[string]interface{} {
	m := map[string]interface{}{
		"id":               s.ID,
		"map_center":       map[string]interface{}{"lat": s.MapCenter.Lat, "lon": s.MapCenter.Lon},
		"effective_anchor": nil,
		"window_start":     timeString(s.Window.Start),
		"window_end":       timeString(s.Window.End),
		"lot_type":         string(s.LotType),
		"radius_km":        s.RadiusKm,
		"focus_id":         derefString(s.FocusID),
	}
	if s.Effective != nil {
		m["effective_anchor"] = map[string]interface{}{"lat": s.Effective.Lat, "lon": s.Effective.Lon}
	}
	return m
}

func derefInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func derefFloat(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func derefString(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func timeString(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339)
}

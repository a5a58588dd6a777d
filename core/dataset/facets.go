package dataset

import "sort"

// Facet is one searchable name/value pair derived from a consolidated
// record and its context.
type Facet struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FacetContext carries the inputs that do not live on the dataset model
// itself.
type FacetContext struct {
	Catalogs           []string
	PublicationTargets []string
}

// ComputeFacets recomputes the full facet set for a dataset. The output is
// sorted and deduplicated so that consolidation stays idempotent.
func ComputeFacets(m Model, distributions []Distribution, ctx FacetContext) []Facet {
	var facets []Facet

	facets = append(facets, Facet{Name: "type", Value: strDefaultValue(m.Type, "dataset")})

	orgs := map[string]struct{}{}
	for _, contact := range m.Contacts {
		if contact.OrganizationName == "" {
			continue
		}
		if _, seen := orgs[contact.OrganizationName]; seen {
			continue
		}
		orgs[contact.OrganizationName] = struct{}{}
		facets = append(facets, Facet{Name: "organization", Value: contact.OrganizationName})
	}
	if len(orgs) == 0 {
		facets = append(facets, Facet{Name: "organization", Value: "none"})
	}

	for _, catalog := range ctx.Catalogs {
		facets = append(facets, Facet{Name: "catalog", Value: catalog})
	}

	for _, target := range ctx.PublicationTargets {
		facets = append(facets, Facet{Name: "publication", Value: target})
	}

	downloadable := "no"
	for _, dist := range distributions {
		if dist.Available {
			downloadable = "yes"
			break
		}
	}
	facets = append(facets,
		Facet{Name: "availability", Value: availability(distributions)},
		Facet{Name: "downloadable", Value: downloadable},
	)

	sort.Slice(facets, func(i, j int) bool {
		if facets[i].Name != facets[j].Name {
			return facets[i].Name < facets[j].Name
		}
		return facets[i].Value < facets[j].Value
	})

	return dedupFacets(facets)
}

func availability(distributions []Distribution) string {
	if len(distributions) == 0 {
		return "not-determined"
	}
	for _, dist := range distributions {
		if dist.Available {
			return "yes"
		}
	}
	return "no"
}

func dedupFacets(facets []Facet) []Facet {
	out := facets[:0]
	var last Facet
	for i, f := range facets {
		if i > 0 && f == last {
			continue
		}
		out = append(out, f)
		last = f
	}
	return out
}

func strDefaultValue(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

package dataset_test

import (
	"testing"

	"github.com/geodatahub/geocat/core/dataset"
	"github.com/google/go-cmp/cmp"
)

func TestComputeFacets(t *testing.T) {
	testCases := []struct {
		Description   string
		Model         dataset.Model
		Distributions []dataset.Distribution
		Context       dataset.FacetContext
		Expect        []dataset.Facet
	}{
		{
			Description: "should fall back to defaults on an empty model",
			Expect: []dataset.Facet{
				{Name: "availability", Value: "not-determined"},
				{Name: "downloadable", Value: "no"},
				{Name: "organization", Value: "none"},
				{Name: "type", Value: "dataset"},
			},
		},
		{
			Description: "should emit one organization facet per unique contact",
			Model: dataset.Model{
				Type: "series",
				Contacts: []dataset.Contact{
					{OrganizationName: "Region Bretagne", Role: "owner"},
					{OrganizationName: "Region Bretagne", Role: "pointOfContact"},
					{OrganizationName: "IGN"},
					{Role: "author"},
				},
			},
			Expect: []dataset.Facet{
				{Name: "availability", Value: "not-determined"},
				{Name: "downloadable", Value: "no"},
				{Name: "organization", Value: "IGN"},
				{Name: "organization", Value: "Region Bretagne"},
				{Name: "type", Value: "series"},
			},
		},
		{
			Description: "should carry catalogs and publication targets from the context",
			Context: dataset.FacetContext{
				Catalogs:           []string{"GeoBretagne", "Sextant"},
				PublicationTargets: []string{"dgv"},
			},
			Expect: []dataset.Facet{
				{Name: "availability", Value: "not-determined"},
				{Name: "catalog", Value: "GeoBretagne"},
				{Name: "catalog", Value: "Sextant"},
				{Name: "downloadable", Value: "no"},
				{Name: "organization", Value: "none"},
				{Name: "publication", Value: "dgv"},
				{Name: "type", Value: "dataset"},
			},
		},
		{
			Description: "should report availability yes when any distribution is available",
			Distributions: []dataset.Distribution{
				{UniqueID: "a", Available: false},
				{UniqueID: "b", Available: true},
			},
			Expect: []dataset.Facet{
				{Name: "availability", Value: "yes"},
				{Name: "downloadable", Value: "yes"},
				{Name: "organization", Value: "none"},
				{Name: "type", Value: "dataset"},
			},
		},
		{
			Description: "should report availability no when every distribution is unavailable",
			Distributions: []dataset.Distribution{
				{UniqueID: "a", Available: false},
			},
			Expect: []dataset.Facet{
				{Name: "availability", Value: "no"},
				{Name: "downloadable", Value: "no"},
				{Name: "organization", Value: "none"},
				{Name: "type", Value: "dataset"},
			},
		},
		{
			Description: "should deduplicate repeated context values",
			Context: dataset.FacetContext{
				Catalogs: []string{"GeoBretagne", "GeoBretagne"},
			},
			Expect: []dataset.Facet{
				{Name: "availability", Value: "not-determined"},
				{Name: "catalog", Value: "GeoBretagne"},
				{Name: "downloadable", Value: "no"},
				{Name: "organization", Value: "none"},
				{Name: "type", Value: "dataset"},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Description, func(t *testing.T) {
			got := dataset.ComputeFacets(tc.Model, tc.Distributions, tc.Context)
			if diff := cmp.Diff(tc.Expect, got); diff != "" {
				t.Errorf("facets mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

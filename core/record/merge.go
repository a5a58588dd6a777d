package record

import (
	"fmt"

	"github.com/geodatahub/geocat/core/dataset"
	"github.com/geodatahub/geocat/core/resource"
)

// mergeRecord applies the selected revision and all consolidation inputs
// onto the record. It is a pure function of its inputs: re-running it with
// unchanged inputs reproduces identical merged fields.
func mergeRecord(rec *Record, revision Revision, copies []CatalogRecord, resources []resource.Resource, publications []Publication) error {
	model, err := dataset.Convert(revision.RecordType, revision.Content)
	if err != nil {
		return fmt.Errorf("convert revision content: %w", err)
	}

	rec.RecordHash = revision.RecordHash
	rec.RevisionDate = revision.RevisionDate
	rec.Metadata = model
	rec.Organizations = organizationNames(model.Contacts)

	distributions, alternates := resolveResources(rec.RecordHash, resources)
	rec.Distributions = distributions
	rec.AlternateResources = alternates

	rec.Catalogs = catalogNames(copies)

	targets := make([]string, 0, len(publications))
	for _, pub := range publications {
		targets = append(targets, pub.Target)
	}
	rec.Facets = dataset.ComputeFacets(model, distributions, dataset.FacetContext{
		Catalogs:           rec.Catalogs,
		PublicationTargets: targets,
	})

	return nil
}

// resolveResources turns related resources into distributions and alternate
// links. Remote-origin resources left over from other revisions are dropped,
// not merged.
func resolveResources(currentHash string, resources []resource.Resource) ([]dataset.Distribution, []dataset.AlternateResource) {
	var (
		distributions []dataset.Distribution
		alternates    []dataset.AlternateResource
	)

	for _, res := range resources {
		if res.OriginType == resource.OriginOnLine && res.OriginHash != currentHash {
			continue
		}

		switch {
		case res.FeatureType != nil:
			if dist, ok := resolveFeatureType(res); ok {
				distributions = append(distributions, dist)
			}

		case res.RemoteResource != nil && isDownloadable(res.RemoteResource.Type):
			distributions = append(distributions, buildRemoteDistributions(res)...)

		case res.RemoteResource != nil:
			alternates = append(alternates, dataset.AlternateResource{
				Name:      res.Name,
				Location:  res.RemoteResource.Location,
				Available: res.RemoteResource.Available,
			})
		}
	}

	return dedupDistributions(distributions), dedupAlternates(alternates)
}

// resolveFeatureType yields a distribution only once the candidate has been
// matched to a known service.
func resolveFeatureType(res resource.Resource) (dataset.Distribution, bool) {
	ft := res.FeatureType
	if ft.MatchingService == "" {
		return dataset.Distribution{}, false
	}
	return dataset.Distribution{
		UniqueID:  ft.CandidateLocation + "#" + ft.CandidateName,
		Type:      dataset.DistributionWFSFeatureType,
		Name:      res.Name,
		Service:   ft.MatchingService,
		TypeName:  ft.CandidateName,
		Location:  ft.CandidateLocation,
		Available: true,
	}, true
}

func buildRemoteDistributions(res resource.Resource) []dataset.Distribution {
	remote := res.RemoteResource
	hashed := remote.HashLocation()

	if len(remote.Layers) > 0 {
		distributions := make([]dataset.Distribution, 0, len(remote.Layers))
		for _, layer := range remote.Layers {
			distributions = append(distributions, dataset.Distribution{
				UniqueID:  hashed + "#" + layer,
				Type:      dataset.DistributionFileLayer,
				Name:      res.Name,
				Location:  remote.Location,
				Layer:     layer,
				Available: remote.Available,
			})
		}
		return distributions
	}

	return []dataset.Distribution{{
		UniqueID:  hashed,
		Type:      dataset.DistributionFile,
		Name:      res.Name,
		Location:  remote.Location,
		Available: remote.Available,
	}}
}

func isDownloadable(remoteType string) bool {
	return remoteType == resource.RemoteTypeFileDistribution ||
		remoteType == resource.RemoteTypeUnknownArchive
}

// organizationNames is the de-duplicated set of contact organization names,
// in first-seen order.
func organizationNames(contacts []dataset.Contact) []string {
	seen := make(map[string]struct{}, len(contacts))
	var names []string
	for _, contact := range contacts {
		if contact.OrganizationName == "" {
			continue
		}
		if _, ok := seen[contact.OrganizationName]; ok {
			continue
		}
		seen[contact.OrganizationName] = struct{}{}
		names = append(names, contact.OrganizationName)
	}
	return names
}

func catalogNames(copies []CatalogRecord) []string {
	seen := make(map[string]struct{}, len(copies))
	var names []string
	for _, cr := range copies {
		if _, ok := seen[cr.CatalogName]; ok {
			continue
		}
		seen[cr.CatalogName] = struct{}{}
		names = append(names, cr.CatalogName)
	}
	return names
}

func dedupDistributions(distributions []dataset.Distribution) []dataset.Distribution {
	seen := make(map[string]struct{}, len(distributions))
	out := distributions[:0]
	for _, dist := range distributions {
		if _, ok := seen[dist.UniqueID]; ok {
			continue
		}
		seen[dist.UniqueID] = struct{}{}
		out = append(out, dist)
	}
	return out
}

func dedupAlternates(alternates []dataset.AlternateResource) []dataset.AlternateResource {
	seen := make(map[string]struct{}, len(alternates))
	out := alternates[:0]
	for _, alt := range alternates {
		if _, ok := seen[alt.Location]; ok {
			continue
		}
		seen[alt.Location] = struct{}{}
		out = append(out, alt)
	}
	return out
}

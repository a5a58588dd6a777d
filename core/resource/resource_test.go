package resource_test

import (
	"testing"

	"github.com/geodatahub/geocat/core/dataset"
	"github.com/geodatahub/geocat/core/resource"
	"github.com/stretchr/testify/assert"
)

func validRemote() resource.Resource {
	return resource.Resource{
		OriginType: resource.OriginOnLine,
		OriginID:   "link-1",
		OriginHash: "rev-1",
		RecordID:   "fr-123",
		RemoteResource: &resource.RemoteResource{
			Location: "https://files.example.org/a.zip",
		},
	}
}

func validFeatureType() resource.Resource {
	return resource.Resource{
		OriginType: resource.OriginCoupledResource,
		OriginID:   "cr-1",
		OriginHash: "rev-1",
		RecordID:   "fr-123",
		FeatureType: &resource.FeatureType{
			CandidateName:     "communes",
			CandidateLocation: "https://wfs.example.org",
		},
	}
}

func TestResourceValidate(t *testing.T) {
	testCases := []struct {
		Description string
		Mutate      func(r *resource.Resource)
		WantErr     bool
	}{
		{
			Description: "valid remote resource",
		},
		{
			Description: "missing origin type",
			Mutate:      func(r *resource.Resource) { r.OriginType = "" },
			WantErr:     true,
		},
		{
			Description: "unknown origin type",
			Mutate:      func(r *resource.Resource) { r.OriginType = "gmd:thumbnail" },
			WantErr:     true,
		},
		{
			Description: "missing record ID",
			Mutate:      func(r *resource.Resource) { r.RecordID = "" },
			WantErr:     true,
		},
		{
			Description: "no variant at all",
			Mutate:      func(r *resource.Resource) { r.RemoteResource = nil },
			WantErr:     true,
		},
		{
			Description: "both variants at once",
			Mutate: func(r *resource.Resource) {
				r.FeatureType = &resource.FeatureType{CandidateName: "a", CandidateLocation: "b"}
			},
			WantErr: true,
		},
		{
			Description: "remote resource without location",
			Mutate:      func(r *resource.Resource) { r.RemoteResource.Location = "" },
			WantErr:     true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Description, func(t *testing.T) {
			res := validRemote()
			if tc.Mutate != nil {
				tc.Mutate(&res)
			}

			err := res.Validate()
			if tc.WantErr {
				assert.ErrorAs(t, err, &resource.InvalidError{})
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("feature type without candidate name", func(t *testing.T) {
		res := validFeatureType()
		res.FeatureType.CandidateName = ""
		assert.ErrorAs(t, res.Validate(), &resource.InvalidError{})
	})

	t.Run("valid feature type", func(t *testing.T) {
		res := validFeatureType()
		assert.NoError(t, res.Validate())
	})
}

func TestResourceUniqueKey(t *testing.T) {
	t.Run("remote resource key carries the location", func(t *testing.T) {
		res := validRemote()
		assert.Equal(t,
			"remote-resource|gmd:onLine|link-1|rev-1|https://files.example.org/a.zip",
			res.UniqueKey())
	})

	t.Run("feature type key carries the candidate", func(t *testing.T) {
		res := validFeatureType()
		assert.Equal(t,
			"feature-type|srv:coupledResource|cr-1|rev-1|communes|https://wfs.example.org",
			res.UniqueKey())
	})

	t.Run("no variant yields no key", func(t *testing.T) {
		assert.Empty(t, (&resource.Resource{}).UniqueKey())
	})
}

func TestResourceVariantType(t *testing.T) {
	remote := validRemote()
	assert.Equal(t, resource.TypeRemoteResource, remote.VariantType())

	ft := validFeatureType()
	assert.Equal(t, resource.TypeFeatureType, ft.VariantType())

	assert.Empty(t, (&resource.Resource{}).VariantType())
}

func TestRemoteResourceHashLocation(t *testing.T) {
	t.Run("derives the hash from the location", func(t *testing.T) {
		remote := resource.RemoteResource{Location: "https://files.example.org/a.zip"}
		assert.Equal(t, dataset.HashLocation(remote.Location), remote.HashLocation())
	})

	t.Run("keeps a precomputed hash", func(t *testing.T) {
		remote := resource.RemoteResource{Location: "https://files.example.org/a.zip", HashedLocation: "abc"}
		assert.Equal(t, "abc", remote.HashLocation())
	})
}

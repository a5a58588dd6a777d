package dataset_test

import (
	"testing"

	"github.com/geodatahub/geocat/core/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	t.Run("should return error for unsupported record type", func(t *testing.T) {
		_, err := dataset.Convert("FGDC", map[string]interface{}{})
		assert.ErrorIs(t, err, dataset.ErrUnsupportedRecordType)
	})

	t.Run("should be deterministic", func(t *testing.T) {
		content := map[string]interface{}{
			"title":       "Occupation du sol",
			"description": "Couche d'occupation du sol",
		}

		first, err := dataset.Convert(dataset.RecordTypeDublinCore, content)
		require.NoError(t, err)
		second, err := dataset.Convert(dataset.RecordTypeDublinCore, content)
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})
}

func TestFromISO(t *testing.T) {
	content := map[string]interface{}{
		"hierarchyLevel": "series",
		"identificationInfo": map[string]interface{}{
			"citation": map[string]interface{}{
				"title": "Occupation du sol 2018",
			},
			"abstract":      "Couche d'occupation du sol de la region",
			"useLimitation": "Licence Ouverte",
			"pointOfContact": []interface{}{
				map[string]interface{}{
					"organisationName": "Region Bretagne",
					"role":             "owner",
				},
				map[string]interface{}{
					"role": "pointOfContact", // no organisation name, dropped
				},
			},
			"descriptiveKeywords": []interface{}{
				map[string]interface{}{
					"keyword": []interface{}{"occupation du sol", "environnement"},
				},
			},
			"graphicOverview": map[string]interface{}{
				"fileName": "https://geo.example.org/thumb.png",
			},
		},
		"distributionInfo": map[string]interface{}{
			"transferOptions": map[string]interface{}{
				"onLine": []interface{}{
					map[string]interface{}{
						"linkage": "https://geo.example.org/data.zip",
						"name":    "Telechargement",
					},
					map[string]interface{}{
						"name": "no linkage, dropped",
					},
				},
			},
		},
	}

	m := dataset.FromISO(content)

	assert.Equal(t, "Occupation du sol 2018", m.Title)
	assert.Equal(t, "Couche d'occupation du sol de la region", m.Description)
	assert.Equal(t, "series", m.Type)
	assert.Equal(t, "Licence Ouverte", m.License)
	assert.Equal(t, []dataset.Contact{
		{OrganizationName: "Region Bretagne", Role: "owner"},
	}, m.Contacts)
	assert.Equal(t, []string{"occupation du sol", "environnement"}, m.Keywords)

	require.Len(t, m.Thumbnails, 1)
	assert.Equal(t, "https://geo.example.org/thumb.png", m.Thumbnails[0].OriginalURL)
	assert.Equal(t, dataset.HashLocation("https://geo.example.org/thumb.png"), m.Thumbnails[0].OriginalURLHash)

	require.Len(t, m.Links, 1)
	assert.Equal(t, dataset.Link{
		ID:   dataset.HashLocation("https://geo.example.org/data.zip"),
		Name: "Telechargement",
		Href: "https://geo.example.org/data.zip",
	}, m.Links[0])
}

func TestFromISODefaults(t *testing.T) {
	m := dataset.FromISO(map[string]interface{}{})
	assert.Equal(t, "dataset", m.Type)
	assert.Empty(t, m.Title)
	assert.Empty(t, m.Contacts)
	assert.Empty(t, m.Links)
}

func TestFromDublinCore(t *testing.T) {
	content := map[string]interface{}{
		"title":       "Reseau routier",
		"description": "Graphe du reseau routier departemental",
		"type":        "dataset",
		"rights":      "ODbL",
		"creator":     "Departement 35",
		"subject":     []interface{}{"transport", "routes"},
		"references":  "https://geo.example.org/wfs",
	}

	m := dataset.FromDublinCore(content)

	assert.Equal(t, "Reseau routier", m.Title)
	assert.Equal(t, "ODbL", m.License)
	assert.Equal(t, []dataset.Contact{{OrganizationName: "Departement 35"}}, m.Contacts)
	assert.Equal(t, []string{"transport", "routes"}, m.Keywords)
	require.Len(t, m.Links, 1)
	assert.Equal(t, "https://geo.example.org/wfs", m.Links[0].Href)
	assert.Equal(t, dataset.HashLocation("https://geo.example.org/wfs"), m.Links[0].ID)
}

func TestHashLocation(t *testing.T) {
	first := dataset.HashLocation("https://geo.example.org/data.zip")
	second := dataset.HashLocation("https://geo.example.org/data.zip")
	other := dataset.HashLocation("https://geo.example.org/other.zip")

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
	assert.Len(t, first, 40)
}

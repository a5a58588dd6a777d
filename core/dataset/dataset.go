package dataset

// Model is the canonical dataset shape derived from one harvested record
// revision, independent of the source catalog's native format.
type Model struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Type        string      `json:"type"`
	License     string      `json:"license,omitempty"`
	Contacts    []Contact   `json:"contacts,omitempty"`
	Keywords    []string    `json:"keywords,omitempty"`
	Thumbnails  []Thumbnail `json:"thumbnails,omitempty"`
	Links       []Link      `json:"links,omitempty"`
}

type Contact struct {
	OrganizationName string `json:"organization_name"`
	Role             string `json:"role,omitempty"`
}

type Thumbnail struct {
	OriginalURL     string `json:"original_url"`
	OriginalURLHash string `json:"original_url_hash"`
}

type Link struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Href string `json:"href"`
}

// Distribution is one way of obtaining the actual data of a dataset: a WFS
// feature type, a layer extracted from a remote archive, or the raw file
// itself.
type Distribution struct {
	UniqueID  string `json:"unique_id"`
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
	Service   string `json:"service,omitempty"`
	TypeName  string `json:"type_name,omitempty"`
	Location  string `json:"location,omitempty"`
	Layer     string `json:"layer,omitempty"`
	Available bool   `json:"available"`
}

const (
	DistributionWFSFeatureType = "wfs-featuretype"
	DistributionFileLayer      = "file-layer"
	DistributionFile           = "file-distribution"
)

// AlternateResource is a link that points at related material rather than at
// the data itself.
type AlternateResource struct {
	Name      string `json:"name,omitempty"`
	Location  string `json:"location"`
	Available bool   `json:"available"`
}

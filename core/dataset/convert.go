package dataset

import (
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"errors"
	"fmt"
)

// Revision record types produced by the harvesters.
const (
	RecordTypeISO        = "MD_Metadata"
	RecordTypeDublinCore = "Record"
)

var ErrUnsupportedRecordType = errors.New("unsupported record type")

// Convert derives the canonical dataset model from a raw revision content
// tree. It is a pure function: the same content always yields the same model.
func Convert(recordType string, content map[string]interface{}) (Model, error) {
	switch recordType {
	case RecordTypeISO:
		return FromISO(content), nil
	case RecordTypeDublinCore:
		return FromDublinCore(content), nil
	default:
		return Model{}, fmt.Errorf("%w: %q", ErrUnsupportedRecordType, recordType)
	}
}

// FromISO maps an ISO 19139 content tree onto the canonical model.
func FromISO(content map[string]interface{}) Model {
	ident := subMap(content, "identificationInfo")

	m := Model{
		Title:       str(subMap(ident, "citation"), "title"),
		Description: str(ident, "abstract"),
		Type:        strDefault(content, "hierarchyLevel", "dataset"),
		License:     str(ident, "useLimitation"),
	}

	for _, poc := range subMaps(ident, "pointOfContact") {
		name := str(poc, "organisationName")
		if name == "" {
			continue
		}
		m.Contacts = append(m.Contacts, Contact{
			OrganizationName: name,
			Role:             str(poc, "role"),
		})
	}

	for _, dk := range subMaps(ident, "descriptiveKeywords") {
		m.Keywords = append(m.Keywords, strs(dk, "keyword")...)
	}

	for _, gr := range subMaps(ident, "graphicOverview") {
		if u := str(gr, "fileName"); u != "" {
			m.Thumbnails = append(m.Thumbnails, Thumbnail{
				OriginalURL:     u,
				OriginalURLHash: HashLocation(u),
			})
		}
	}

	transfer := subMap(subMap(content, "distributionInfo"), "transferOptions")
	for _, online := range subMaps(transfer, "onLine") {
		href := str(online, "linkage")
		if href == "" {
			continue
		}
		m.Links = append(m.Links, Link{
			ID:   HashLocation(href),
			Name: str(online, "name"),
			Href: href,
		})
	}

	return m
}

// FromDublinCore maps a CSW Dublin Core record onto the canonical model.
func FromDublinCore(content map[string]interface{}) Model {
	m := Model{
		Title:       str(content, "title"),
		Description: str(content, "description"),
		Type:        strDefault(content, "type", "dataset"),
		License:     str(content, "rights"),
		Keywords:    strs(content, "subject"),
	}

	if creator := str(content, "creator"); creator != "" {
		m.Contacts = append(m.Contacts, Contact{OrganizationName: creator})
	}

	for _, ref := range strs(content, "references") {
		m.Links = append(m.Links, Link{ID: HashLocation(ref), Href: ref})
	}

	return m
}

// HashLocation returns the hex SHA-1 of a URL, used to address deduplicated
// remote resources and thumbnails.
func HashLocation(location string) string {
	sum := sha1.Sum([]byte(location)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func subMap(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	sub, _ := m[key].(map[string]interface{})
	return sub
}

func subMaps(m map[string]interface{}, key string) []map[string]interface{} {
	if m == nil {
		return nil
	}

	switch v := m[key].(type) {
	case []interface{}:
		var subs []map[string]interface{}
		for _, item := range v {
			if sub, ok := item.(map[string]interface{}); ok {
				subs = append(subs, sub)
			}
		}
		return subs
	case map[string]interface{}:
		return []map[string]interface{}{v}
	default:
		return nil
	}
}

func str(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func strDefault(m map[string]interface{}, key, fallback string) string {
	if s := str(m, key); s != "" {
		return s
	}
	return fallback
}

func strs(m map[string]interface{}, key string) []string {
	if m == nil {
		return nil
	}

	switch v := m[key].(type) {
	case []interface{}:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

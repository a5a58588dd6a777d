package elasticsearch

// index settings with the mapping inlined; keyword subfields back the facet
// filters, text fields back the full text query
var indexSettings = `{
	"mappings": ` + recordIndexMapping + `,
	"settings": {
		"index.mapping.ignore_malformed": true
	}
}`

var recordIndexMapping = `{
	"properties": {
		"record_id": {
			"type": "keyword"
		},
		"title": {
			"type": "text",
			"fields": {
				"keyword": {
					"type": "keyword",
					"ignore_above": 256.0
				}
			}
		},
		"description": {
			"type": "text"
		},
		"keywords": {
			"type": "text",
			"fields": {
				"keyword": {
					"type": "keyword",
					"ignore_above": 256.0
				}
			}
		},
		"organizations": {
			"type": "text",
			"fields": {
				"keyword": {
					"type": "keyword",
					"ignore_above": 256.0
				}
			}
		},
		"catalogs": {
			"type": "text",
			"fields": {
				"keyword": {
					"type": "keyword",
					"ignore_above": 256.0
				}
			}
		},
		"facets": {
			"properties": {
				"name": {
					"type": "keyword"
				},
				"value": {
					"type": "keyword"
				}
			}
		},
		"revision_date": {
			"type": "date"
		},
		"updated_at": {
			"type": "date"
		}
	}
}`

package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/geodatahub/geocat/core/resource"
)

type ResourceModel struct {
	Type       string         `db:"type"`
	Name       sql.NullString `db:"name"`
	OriginType string         `db:"origin_type"`
	OriginID   string         `db:"origin_id"`
	OriginHash string         `db:"origin_hash"`
	RecordID   string         `db:"record_id"`
	UniqKey    string         `db:"uniq_key"`
	Checking   bool           `db:"checking"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`

	FtCandidateName     sql.NullString `db:"ft_candidate_name"`
	FtCandidateLocation sql.NullString `db:"ft_candidate_location"`
	FtMatchingService   sql.NullString `db:"ft_matching_service"`

	RemoteLocation       sql.NullString `db:"remote_location"`
	RemoteHashedLocation sql.NullString `db:"remote_hashed_location"`
	RemoteType           sql.NullString `db:"remote_type"`
	RemoteAvailable      sql.NullBool   `db:"remote_available"`
	RemoteLayers         []byte         `db:"remote_layers"`
}

func buildResourceModel(res resource.Resource) (ResourceModel, error) {
	m := ResourceModel{
		Type:       res.Type,
		Name:       nullString(res.Name),
		OriginType: res.OriginType,
		OriginID:   res.OriginID,
		OriginHash: res.OriginHash,
		RecordID:   res.RecordID,
		UniqKey:    res.UniqueKey(),
		Checking:   res.Checking,
	}

	switch {
	case res.FeatureType != nil:
		m.FtCandidateName = nullString(res.FeatureType.CandidateName)
		m.FtCandidateLocation = nullString(res.FeatureType.CandidateLocation)
		m.FtMatchingService = nullString(res.FeatureType.MatchingService)
	case res.RemoteResource != nil:
		m.RemoteLocation = nullString(res.RemoteResource.Location)
		m.RemoteHashedLocation = nullString(res.RemoteResource.HashLocation())
		m.RemoteType = nullString(res.RemoteResource.Type)
		m.RemoteAvailable = sql.NullBool{Bool: res.RemoteResource.Available, Valid: true}

		layers, err := json.Marshal(res.RemoteResource.Layers)
		if err != nil {
			return ResourceModel{}, fmt.Errorf("marshal remote layers: %w", err)
		}
		m.RemoteLayers = layers
	}

	return m, nil
}

func (m ResourceModel) toResource() (resource.Resource, error) {
	res := resource.Resource{
		Type:       m.Type,
		Name:       m.Name.String,
		OriginType: m.OriginType,
		OriginID:   m.OriginID,
		OriginHash: m.OriginHash,
		RecordID:   m.RecordID,
		Checking:   m.Checking,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}

	switch m.Type {
	case resource.TypeFeatureType:
		res.FeatureType = &resource.FeatureType{
			CandidateName:     m.FtCandidateName.String,
			CandidateLocation: m.FtCandidateLocation.String,
			MatchingService:   m.FtMatchingService.String,
		}
	case resource.TypeRemoteResource:
		remote := &resource.RemoteResource{
			Location:       m.RemoteLocation.String,
			HashedLocation: m.RemoteHashedLocation.String,
			Type:           m.RemoteType.String,
			Available:      m.RemoteAvailable.Bool,
		}
		if len(m.RemoteLayers) > 0 {
			if err := json.Unmarshal(m.RemoteLayers, &remote.Layers); err != nil {
				return resource.Resource{}, fmt.Errorf("unmarshal remote layers: %w", err)
			}
		}
		res.RemoteResource = remote
	}

	return res, nil
}

type RemoteResourceModel struct {
	Location       string         `db:"location"`
	HashedLocation string         `db:"hashed_location"`
	Type           sql.NullString `db:"type"`
	Available      sql.NullBool   `db:"available"`
	Layers         []byte         `db:"layers"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (m RemoteResourceModel) toRemoteResource() (resource.RemoteResource, error) {
	remote := resource.RemoteResource{
		Location:       m.Location,
		HashedLocation: m.HashedLocation,
		Type:           m.Type.String,
		Available:      m.Available.Bool,
	}
	if len(m.Layers) > 0 {
		if err := json.Unmarshal(m.Layers, &remote.Layers); err != nil {
			return resource.RemoteResource{}, fmt.Errorf("unmarshal remote layers: %w", err)
		}
	}
	return remote, nil
}

type ServiceModel struct {
	ID        string    `db:"id"`
	Location  string    `db:"location"`
	Protocol  string    `db:"protocol"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (m ServiceModel) toServiceRecord() resource.ServiceRecord {
	return resource.ServiceRecord{
		ID:       m.ID,
		Location: m.Location,
		Protocol: m.Protocol,
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

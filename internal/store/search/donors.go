// internal/store/search/donors.go

// Package search serves donor candidates from an Elasticsearch index with a geo_point mapping.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/common/logger"
	"donor-dispatch/internal/models"
)

const (
	DefaultIndex  = "donors"
	maxHits       = 1000
	syncBatchSize = 500
)

// Mapping is the index definition EnsureIndex applies.
const Mapping = `{
	"mappings": {
		"properties": {
			"id":              {"type": "keyword"},
			"full_name":       {"type": "text"},
			"blood_type":      {"type": "keyword"},
			"location":        {"type": "geo_point"},
			"district":        {"type": "text"},
			"is_donor":        {"type": "boolean"},
			"is_available":    {"type": "boolean"},
			"is_verified":     {"type": "boolean"},
			"notify_email":    {"type": "boolean"},
			"notify_sms":      {"type": "boolean"},
			"total_donations": {"type": "integer"}
		}
	}
}`

type donorDocument struct {
	ID             string     `json:"id"`
	FullName       string     `json:"full_name"`
	BloodType      string     `json:"blood_type"`
	Location       *geoSource `json:"location,omitempty"`
	District       string     `json:"district"`
	IsDonor        bool       `json:"is_donor"`
	IsAvailable    bool       `json:"is_available"`
	IsVerified     bool       `json:"is_verified"`
	NotifyEmail    bool       `json:"notify_email"`
	NotifySMS      bool       `json:"notify_sms"`
	TotalDonations int        `json:"total_donations"`
}

type geoSource struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source donorDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// DonorLister is the system of record the index is rebuilt from.
type DonorLister interface {
	ListDonors(ctx context.Context) ([]models.DonorCandidate, error)
}

// DonorIndex implements the donor lookup on Elasticsearch.
type DonorIndex struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewDonorIndex(client *elasticsearch.Client, index string, log logger.Logger) *DonorIndex {
	if index == "" {
		index = DefaultIndex
	}
	return &DonorIndex{client: client, index: index, logger: log}
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (d *DonorIndex) EnsureIndex(ctx context.Context) error {
	res, err := d.client.Indices.Exists([]string{d.index}, d.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return errors.NewStoreUnavailableError("check donor index", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = d.client.Indices.Create(d.index,
		d.client.Indices.Create.WithBody(strings.NewReader(Mapping)),
		d.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return errors.NewStoreUnavailableError("create donor index", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.NewStoreUnavailableError("create donor index", fmt.Errorf("%s", res.String()))
	}
	return nil
}

// Sync copies every donor profile from source into the index with bulk
// requests. Documents are keyed by user id, so repeated syncs overwrite.
func (d *DonorIndex) Sync(ctx context.Context, source DonorLister) (int, error) {
	donors, err := source.ListDonors(ctx)
	if err != nil {
		return 0, err
	}

	indexed := 0
	for start := 0; start < len(donors); start += syncBatchSize {
		end := start + syncBatchSize
		if end > len(donors) {
			end = len(donors)
		}
		if err := d.bulkIndex(ctx, donors[start:end]); err != nil {
			return indexed, err
		}
		indexed += end - start
	}

	d.logger.Info("Donor index synced", map[string]interface{}{
		"index":  d.index,
		"donors": indexed,
	})
	return indexed, nil
}

// RunSync calls Sync every interval until ctx ends.
func (d *DonorIndex) RunSync(ctx context.Context, source DonorLister, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Sync(ctx, source); err != nil {
				d.logger.Warn("Donor index sync failed", map[string]interface{}{"error": err})
			}
		}
	}
}

func (d *DonorIndex) bulkIndex(ctx context.Context, donors []models.DonorCandidate) error {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, donor := range donors {
		meta := map[string]interface{}{"index": map[string]interface{}{"_id": donor.ID}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(toDocument(donor)); err != nil {
			return fmt.Errorf("encode donor %s: %w", donor.ID, err)
		}
	}

	req := esapi.BulkRequest{
		Index: d.index,
		Body:  &body,
	}
	res, err := req.Do(ctx, d.client)
	if err != nil {
		return errors.NewStoreUnavailableError("bulk index donors", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.NewStoreUnavailableError("bulk index donors", fmt.Errorf("%s", res.String()))
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return errors.NewStoreUnavailableError("decode bulk response", err)
	}
	if !parsed.Errors {
		return nil
	}
	failed := 0
	var first string
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Error == nil {
				continue
			}
			if failed == 0 {
				first = result.ID + ": " + result.Error.Type + ": " + result.Error.Reason
			}
			failed++
		}
	}
	return errors.NewStoreUnavailableError("bulk index donors",
		fmt.Errorf("%d of %d documents failed, first %s", failed, len(donors), first))
}

// FindDonors runs a filtered bool query. The geo_distance filter applies only
// when a center and radius are set.
func (d *DonorIndex) FindDonors(ctx context.Context, q models.DonorQuery) ([]models.DonorCandidate, error) {
	body, err := json.Marshal(BuildDonorQuery(q))
	if err != nil {
		return nil, fmt.Errorf("encode donor query: %w", err)
	}

	size := maxHits
	req := esapi.SearchRequest{
		Index: []string{d.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}
	res, err := req.Do(ctx, d.client)
	if err != nil {
		return nil, errors.NewStoreUnavailableError("search donors", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, errors.NewStoreUnavailableError("search donors", fmt.Errorf("%s", res.String()))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.NewStoreUnavailableError("decode donor hits", err)
	}

	if total := parsed.Hits.Total.Value; total > len(parsed.Hits.Hits) {
		d.logger.Warn("Donor search truncated", map[string]interface{}{
			"index":    d.index,
			"total":    total,
			"returned": len(parsed.Hits.Hits),
		})
	}

	donors := make([]models.DonorCandidate, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		donors = append(donors, fromDocument(hit.Source))
	}
	return donors, nil
}

// BuildDonorQuery renders the search body for a donor query.
func BuildDonorQuery(q models.DonorQuery) map[string]interface{} {
	types := make([]string, 0, len(q.BloodTypes))
	for _, t := range q.BloodTypes {
		types = append(types, string(t))
	}

	filters := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"is_donor": true}},
		map[string]interface{}{"term": map[string]interface{}{"is_available": true}},
		map[string]interface{}{"terms": map[string]interface{}{"blood_type": types}},
	}
	if q.RequireVerified {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"is_verified": true}})
	}
	if q.District != "" {
		filters = append(filters, map[string]interface{}{"match": map[string]interface{}{"district": q.District}})
	}
	if q.Center != nil && q.RadiusKm > 0 {
		filters = append(filters, map[string]interface{}{
			"geo_distance": map[string]interface{}{
				"distance": strconv.FormatFloat(q.RadiusKm, 'f', -1, 64) + "km",
				"location": map[string]interface{}{"lat": q.Center.Lat, "lon": q.Center.Lon},
			},
		})
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"filter": filters},
		},
		"sort": []interface{}{
			map[string]interface{}{"total_donations": map[string]interface{}{"order": "desc"}},
		},
	}
}

func toDocument(d models.DonorCandidate) donorDocument {
	doc := donorDocument{
		ID:             d.ID,
		FullName:       d.FullName,
		BloodType:      string(d.BloodType),
		District:       d.District,
		IsDonor:        true,
		IsAvailable:    d.Available,
		IsVerified:     d.Verified,
		NotifyEmail:    d.Preferences.Email,
		NotifySMS:      d.Preferences.SMS,
		TotalDonations: d.TotalDonations,
	}
	if d.Location != nil {
		doc.Location = &geoSource{Lat: d.Location.Lat, Lon: d.Location.Lon}
	}
	return doc
}

func fromDocument(doc donorDocument) models.DonorCandidate {
	c := models.DonorCandidate{
		ID:             doc.ID,
		FullName:       doc.FullName,
		BloodType:      models.BloodType(doc.BloodType),
		District:       doc.District,
		Available:      doc.IsAvailable,
		Verified:       doc.IsVerified,
		Preferences:    models.ChannelPreferences{Email: doc.NotifyEmail, SMS: doc.NotifySMS},
		TotalDonations: doc.TotalDonations,
	}
	if doc.Location != nil {
		c.Location = &models.GeoPoint{Lat: doc.Location.Lat, Lon: doc.Location.Lon}
	}
	return c
}

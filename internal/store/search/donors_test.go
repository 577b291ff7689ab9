// internal/store/search/donors_test.go
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	apperrors "donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/common/logger"
	"donor-dispatch/internal/models"
)

func newTestIndex(t *testing.T, handler http.HandlerFunc) *DonorIndex {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewDonorIndex(client, "donors-test", logger.NewTestLogger(t))
}

func TestBuildDonorQuery_GeoDistanceOnlyWithCenter(t *testing.T) {
	q := BuildDonorQuery(models.DonorQuery{
		BloodTypes: []models.BloodType{models.BloodTypeONeg},
		Center:     &models.GeoPoint{Lat: 6.9, Lon: 79.8},
		RadiusKm:   25,
	})
	body, err := json.Marshal(q)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"geo_distance":{"distance":"25km"`)
	assert.Contains(t, string(body), `"terms":{"blood_type":["O-"]}`)
	assert.NotContains(t, string(body), "is_verified")

	q = BuildDonorQuery(models.DonorQuery{
		BloodTypes:      []models.BloodType{models.BloodTypeAPos},
		RequireVerified: true,
		District:        "Kandy",
	})
	body, err = json.Marshal(q)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "geo_distance")
	assert.Contains(t, string(body), `"is_verified":true`)
	assert.Contains(t, string(body), `"district":"Kandy"`)
}

func TestFindDonors_DecodesHits(t *testing.T) {
	var gotPath, gotBody string
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":2},"hits":[
			{"_source":{"id":"d-1","full_name":"Nimal","blood_type":"O-","location":{"lat":6.93,"lon":79.85},"is_available":true,"is_verified":true,"notify_sms":true,"total_donations":4}},
			{"_source":{"id":"d-2","full_name":"Kamala","blood_type":"O+","is_available":true}}
		]}}`))
	})

	donors, err := idx.FindDonors(context.Background(), models.DonorQuery{
		BloodTypes: []models.BloodType{models.BloodTypeOPos, models.BloodTypeONeg},
		Center:     &models.GeoPoint{Lat: 6.9271, Lon: 79.8612},
		RadiusKm:   50,
	})

	require.NoError(t, err)
	assert.Equal(t, "/donors-test/_search", gotPath)
	assert.True(t, strings.Contains(gotBody, `"50km"`))
	require.Len(t, donors, 2)
	require.NotNil(t, donors[0].Location)
	assert.InDelta(t, 79.85, donors[0].Location.Lon, 1e-9)
	assert.True(t, donors[0].Preferences.SMS)
	assert.Equal(t, 4, donors[0].TotalDonations)
	assert.Nil(t, donors[1].Location)
}

func TestFindDonors_ErrorStatusIsStoreUnavailable(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"cluster_block_exception"}`))
	})

	_, err := idx.FindDonors(context.Background(), models.DonorQuery{BloodTypes: []models.BloodType{models.BloodTypeAPos}})

	assert.True(t, errors.Is(err, apperrors.ErrStoreUnavailable))
}

type donorList []models.DonorCandidate

func (l donorList) ListDonors(context.Context) ([]models.DonorCandidate, error) {
	return l, nil
}

func TestSync_BulkIndexesEveryDonor(t *testing.T) {
	var gotMethod, gotPath string
	var lines []string
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		b, _ := io.ReadAll(r.Body)
		lines = strings.Split(strings.TrimSpace(string(b)), "\n")
		_, _ = w.Write([]byte(`{"errors":false,"items":[]}`))
	})

	n, err := idx.Sync(context.Background(), donorList{
		{ID: "d-7", FullName: "Ruwan", BloodType: models.BloodTypeBNeg, Location: &models.GeoPoint{Lat: 7.29, Lon: 80.63}, Available: true},
		{ID: "d-8", FullName: "Former", BloodType: models.BloodTypeAPos},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/donors-test/_bulk", gotPath)
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"index":{"_id":"d-7"}}`, lines[0])

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &doc))
	assert.Equal(t, "B-", doc["blood_type"])
	assert.Equal(t, true, doc["is_available"])

	require.NoError(t, json.Unmarshal([]byte(lines[3]), &doc))
	assert.Equal(t, false, doc["is_available"])
}

func TestSync_SplitsLargeListsIntoBatches(t *testing.T) {
	requests := 0
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		_, _ = w.Write([]byte(`{"errors":false,"items":[]}`))
	})

	donors := make(donorList, syncBatchSize+1)
	for i := range donors {
		donors[i] = models.DonorCandidate{ID: fmt.Sprintf("d-%d", i), BloodType: models.BloodTypeOPos}
	}

	n, err := idx.Sync(context.Background(), donors)

	require.NoError(t, err)
	assert.Equal(t, syncBatchSize+1, n)
	assert.Equal(t, 2, requests)
}

func TestSync_ItemErrorsAreStoreUnavailable(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":true,"items":[
			{"index":{"_id":"d-1","status":201}},
			{"index":{"_id":"d-2","status":400,"error":{"type":"mapper_parsing_exception","reason":"failed to parse field [location]"}}}
		]}`))
	})

	_, err := idx.Sync(context.Background(), donorList{{ID: "d-1"}, {ID: "d-2"}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStoreUnavailable))
	assert.Contains(t, err.Error(), "d-2")
}

func TestFindDonors_WarnsWhenHitsAreCapped(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":1500},"hits":[{"_source":{"id":"d-1","blood_type":"O-","is_available":true}}]}}`))
	}))
	t.Cleanup(srv.Close)
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	idx := NewDonorIndex(client, "donors-test", logger.NewZapAdapter(zap.New(core)))

	donors, err := idx.FindDonors(context.Background(), models.DonorQuery{BloodTypes: []models.BloodType{models.BloodTypeONeg}})

	require.NoError(t, err)
	assert.Len(t, donors, 1)
	require.Equal(t, 1, logs.FilterMessage("Donor search truncated").Len())
	assert.EqualValues(t, 1500, logs.All()[0].ContextMap()["total"])
}

func TestEnsureIndex_SkipsExistingIndex(t *testing.T) {
	var calls []string
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, idx.EnsureIndex(context.Background()))
	assert.Equal(t, []string{"HEAD /donors-test"}, calls)
}

func TestEnsureIndex_CreatesMissingIndex(t *testing.T) {
	var calls []string
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	})

	require.NoError(t, idx.EnsureIndex(context.Background()))
	assert.Equal(t, []string{"HEAD /donors-test", "PUT /donors-test"}, calls)
}

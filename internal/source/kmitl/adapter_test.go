package kmitl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"academic-sync-service/internal/retry"
	"academic-sync-service/internal/source"
)

const pageBody = `{
  "status": 1,
  "data": {
    "01006002": {"status": 1, "data": {
      "title": "01006002 2567 (2)",
      "basic_information": {"course_no": "01006002", "course_title_en": "Physics", "credits": "3"}
    }},
    "01006001": {"status": 1, "data": {
      "title": "01006001 2567 (1)",
      "basic_information": {"course_no": "01006001", "course_title_en": "Calculus", "credits": "3"},
      "course_information": {"academic_year": "2567"}
    }},
    "01006003": {"status": 0}
  },
  "meta": {"total_items": 250, "total_pages": 3, "current_page": 1, "page_size": 100, "has_next_page": true}
}`

func TestFetchPage(t *testing.T) {
	var gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/syllabus", r.URL.Path)
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(pageBody))
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL + "/api/", APIKey: "secret", Timeout: time.Second})
	page, err := a.FetchPage(context.Background(), source.PageRequest{Page: 1, PageSize: 100, Year: "2567", Term: "1"})
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "page=1")
	assert.Contains(t, gotQuery, "page_size=100")
	assert.Contains(t, gotQuery, "year=2567")
	assert.Contains(t, gotQuery, "semester=1")
	assert.Equal(t, "secret", gotKey)

	assert.Len(t, page.Items, 3)
	assert.Equal(t, 3, page.Metadata.TotalPages)
	assert.Equal(t, 250, page.Metadata.TotalItems)

	recs, err := a.Normalize(page.Items, source.Filters{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "01006001", recs[0].CourseID)
	assert.Equal(t, "1", recs[0].Term)
	assert.Equal(t, "01006002", recs[1].CourseID)
	assert.Equal(t, "2", recs[1].Term)

	recs, err = a.Normalize(page.Items, source.Filters{Term: "2"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Physics", recs[0].CourseTitleEn)
}

func TestFetchPageWithoutMeta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":1,"data":{"a":{"status":1,"data":{}},"b":{"status":1,"data":{}}}}`))
	}))
	defer srv.Close()

	page, err := New(Config{BaseURL: srv.URL}).FetchPage(context.Background(), source.PageRequest{Page: 1, PageSize: 100})
	require.NoError(t, err)
	assert.Equal(t, source.Metadata{TotalItems: 2, TotalPages: 1, CurrentPage: 1, PageSize: 2}, page.Metadata)
}

func TestFetchPageErrorClassification(t *testing.T) {
	cases := []struct {
		status    int
		permanent bool
	}{
		{http.StatusNotFound, true},
		{http.StatusUnauthorized, true},
		{http.StatusForbidden, true},
		{http.StatusBadRequest, true},
		{http.StatusBadGateway, false},
		{http.StatusServiceUnavailable, false},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := New(Config{BaseURL: srv.URL}).FetchPage(context.Background(), source.PageRequest{Page: 1, PageSize: 10})
			require.Error(t, err)
			assert.Equal(t, tc.permanent, retry.IsPermanent(err))
		})
	}
}

func TestFetchPageUnexpectedBodyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":0}`))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).FetchPage(context.Background(), source.PageRequest{Page: 1, PageSize: 10})
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err))
}

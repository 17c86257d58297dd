package onemap_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/carparkfinder/internal/adapters/onemap"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "clementi mall", q.Get("searchVal"))
		assert.Equal(t, "Y", q.Get("returnGeom"))
		assert.Equal(t, "Y", q.Get("getAddrDetails"))
		_, _ = w.Write([]byte(`{"found":3,"results":[
			{"SEARCHVAL":"CLEMENTI MALL","ADDRESS":"3155 COMMONWEALTH AVENUE WEST CLEMENTI MALL SINGAPORE 129588","LATITUDE":"1.31490","LONGITUDE":"103.76440"},
			{"SEARCHVAL":"BROKEN","ADDRESS":"X","LATITUDE":"","LONGITUDE":"103.7"},
			{"SEARCHVAL":"CLEMENTI MRT","ADDRESS":"NIL","LATITUDE":"1.3151","LONGITUDE":"103.7652"}
		]}`))
	}))
	defer srv.Close()

	g := onemap.New(srv.URL, time.Second)
	places, err := g.Search(context.Background(), "clementi mall")
	require.NoError(t, err)
	require.Len(t, places, 2)
	assert.Contains(t, places[0].DisplayName, "CLEMENTI MALL")
	assert.InDelta(t, 1.3149, places[0].Lat, 1e-9)
	assert.Equal(t, "CLEMENTI MRT", places[1].DisplayName)
}

func TestSearch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := onemap.New(srv.URL, time.Second).Search(context.Background(), "x")
	assert.Error(t, err)
}

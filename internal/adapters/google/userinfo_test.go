package google_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/carparkfinder/internal/adapters/google"
)

func TestEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":"1","email":"driver@example.com","verified_email":true}`))
	}))
	defer srv.Close()

	u := google.NewUserInfo(srv.URL, time.Second)

	email, err := u.Email(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "driver@example.com", email)

	_, err = u.Email(context.Background(), "bad")
	assert.Error(t, err)
}

func TestEmail_Missing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer srv.Close()

	_, err := google.NewUserInfo(srv.URL, time.Second).Email(context.Background(), "tok")
	assert.Error(t, err)
}

package csvcatalog_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/carparkfinder/internal/adapters/csvcatalog"
	"github.com/samirrijal/carparkfinder/internal/core/domain"
)

const sample = `CarParkID,latitude,longitude
A0007,1.3009,103.8547

B0001,abc,103.8
C0002,95.0,103.8
D0003,1.2950,103.7734
A0007,1.0,103.0
E0004,1.31
,1.3,103.8
`

func TestParse_SkipsBadRows(t *testing.T) {
	got, err := csvcatalog.Parse(strings.NewReader(sample), nil)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, domain.FacilityLocation{ID: "A0007", Latitude: 1.3009, Longitude: 103.8547}, got[0])
	assert.Equal(t, "D0003", got[1].ID)
}

func TestParse_EmptyInput(t *testing.T) {
	got, err := csvcatalog.Parse(strings.NewReader(""), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteThenParse(t *testing.T) {
	items := []domain.FacilityLocation{
		{ID: "Z9", Latitude: 1.2345678901, Longitude: 103.9876543210},
		{ID: "A1", Latitude: 1.3, Longitude: 103.8},
	}

	var buf bytes.Buffer
	require.NoError(t, csvcatalog.Write(&buf, items))
	assert.True(t, strings.HasPrefix(buf.String(), "CarParkID,latitude,longitude\nA1,"))

	got, err := csvcatalog.Parse(&buf, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A1", got[0].ID)
	assert.InDelta(t, 1.2345678901, got[1].Latitude, 1e-10)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carparks.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	got, err := csvcatalog.FileSource{Path: path}.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = csvcatalog.FileSource{Path: filepath.Join(t.TempDir(), "missing.csv")}.Load(context.Background())
	assert.Error(t, err)
}

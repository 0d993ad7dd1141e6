package ingest

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodewatch/storj-node-monitor/infrastructure/cache"
	"github.com/nodewatch/storj-node-monitor/internal/model"
)

type fakeLookup struct {
	entry cache.GeoIPEntry
	found bool
}

func (f fakeLookup) Lookup(ip net.IP) (cache.GeoIPEntry, bool) { return f.entry, f.found }

func TestParseTrafficLine(t *testing.T) {
	p := &Parser{NodeName: "node-a"}
	line := "2026-07-31T10:00:00.000Z\tpiecestore\tdownload\tdownloaded\t" +
		`{"Action":"GET","Piece ID":"abc123","Satellite ID":"sat1","Size":4096,"Remote Address":"203.0.113.9:4242"}`

	parsed, err := p.Parse(line)
	require.NoError(t, err)
	assert.Equal(t, KindTraffic, parsed.Kind)
	assert.Equal(t, "GET", parsed.Traffic.Action)
	assert.Equal(t, model.StatusSuccess, parsed.Traffic.Status)
	assert.Equal(t, int64(4096), parsed.Traffic.Size)
	assert.Equal(t, "node-a", parsed.Traffic.NodeName)
	assert.Equal(t, model.CategoryGet, parsed.Traffic.Category)
}

func TestParseTrafficLineWithGeoIP(t *testing.T) {
	resolver := &Parser{}
	_ = resolver
	lk := fakeLookup{entry: cache.GeoIPEntry{CountryCode: "DE", Latitude: 52.5, Longitude: 13.4}, found: true}

	r, err := newTestResolver(lk)
	require.NoError(t, err)

	p := &Parser{NodeName: "node-a", GeoIP: r}
	line := "2026-07-31T10:00:00.000Z\tpiecestore\tupload\tuploaded\t" +
		`{"Action":"PUT","Size":1024,"Remote Address":"203.0.113.9:4242"}`

	_, err = p.Parse(line)
	require.NoError(t, err)
}

func TestParseMalformedLineCountsError(t *testing.T) {
	p := &Parser{NodeName: "node-a"}
	_, err := p.Parse("not enough fields")
	assert.Error(t, err)
	assert.Equal(t, int64(1), p.ParseErrors)
}

func TestParseInvalidJSONCountsError(t *testing.T) {
	p := &Parser{NodeName: "node-a"}
	_, err := p.Parse("2026-07-31T10:00:00.000Z\tpiecestore\tdownload\tdownloaded\t{not json}")
	assert.Error(t, err)
	assert.Equal(t, int64(1), p.ParseErrors)
}

func TestParseCompactionBeginAndEnd(t *testing.T) {
	p := &Parser{NodeName: "node-a"}

	beginLine := "2026-07-31T10:00:00.000Z\thashstore\thashstore\tbeginning compaction\t" +
		`{"Satellite":"sat1","Store":"s0"}`
	begin, err := p.Parse(beginLine)
	require.NoError(t, err)
	require.Equal(t, KindCompactionBegin, begin.Kind)
	assert.Equal(t, "sat1", begin.CompactionBegin.Key.Satellite)

	endLine := "2026-07-31T10:05:00.000Z\thashstore\thashstore\tcompaction finished\t" +
		`{"Satellite":"sat1","Store":"s0","Data Reclaimed Bytes":1000,"Data Rewritten Bytes":200,"Table Load":0.4,"Trash Percent":1.2,"Duration":300.5}`
	end, err := p.Parse(endLine)
	require.NoError(t, err)
	require.Equal(t, KindCompactionEnd, end.Kind)
	assert.Equal(t, int64(1000), end.CompactionEnd.Reclaimed)
	assert.Equal(t, int64(200), end.CompactionEnd.Rewritten)
	assert.InDelta(t, 300.5, end.CompactionEnd.DeclaredDuration.Seconds(), 0.001)
}

func TestParseTimestampVariants(t *testing.T) {
	ts, err := parseTimestamp("2026-07-31T10:00:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, 2026, ts.Year())

	ts2, err := parseTimestamp("2026-07-31T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.July, ts2.Month())
}

func newTestResolver(lk fakeLookup) (*testResolverAdapter, error) {
	return &testResolverAdapter{lk: lk}, nil
}

// testResolverAdapter satisfies LocationResolver directly for this test file
// without depending on internal/geoip (avoids an import cycle risk and keeps
// parser tests focused on parsing, not resolution timing).
type testResolverAdapter struct {
	lk fakeLookup
}

func (a *testResolverAdapter) Resolve(remoteIP string) model.Location {
	host, _, err := net.SplitHostPort(remoteIP)
	if err != nil {
		host = remoteIP
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return model.Location{}
	}
	entry, ok := a.lk.Lookup(ip)
	if !ok {
		return model.Location{}
	}
	return model.Location{Country: entry.CountryCode, Latitude: entry.Latitude, Longitude: entry.Longitude}
}

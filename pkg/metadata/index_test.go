package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumvault/quorumvault/pkg/coreerr"
	"github.com/quorumvault/quorumvault/pkg/types"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestCreateBucketRejectsDuplicate(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.CreateBucket("photos", "us-east"))

	err := idx.CreateBucket("photos", "us-east")
	require.Error(t, err)
	assert.ErrorIs(t, err, coreerr.AlreadyExists)

	exists, err := idx.BucketExists("photos")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDeleteBucketRejectsNonEmpty(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.CreateBucket("photos", ""))
	require.NoError(t, idx.PutVersion(types.VersionMeta{
		Bucket: "photos", Key: "a.jpg", VersionID: "v1", Digest: "d1", Size: 10, CreatedAtMS: 1,
	}))

	err := idx.DeleteBucket("photos")
	require.Error(t, err)
	assert.ErrorIs(t, err, coreerr.NotEmpty)
}

func TestDeleteBucketAllowsEmptyOrFullyTombstoned(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.CreateBucket("empty", ""))
	require.NoError(t, idx.DeleteBucket("empty"))

	require.NoError(t, idx.CreateBucket("tombstoned", ""))
	require.NoError(t, idx.PutVersion(types.VersionMeta{
		Bucket: "tombstoned", Key: "a", VersionID: "v1", Digest: "d1", Size: 1, CreatedAtMS: 1,
	}))
	require.NoError(t, idx.PutDeleteMarker("tombstoned", "a", "v2", 2))
	require.NoError(t, idx.DeleteBucket("tombstoned"))
}

func TestPutThenGetLatestRoundTrip(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.CreateBucket("b", ""))

	vm := types.VersionMeta{Bucket: "b", Key: "k", VersionID: "v1", Digest: "d1", Size: 42, ETag: "e1", CreatedAtMS: 100}
	require.NoError(t, idx.PutVersion(vm))

	got, err := idx.GetLatestLive("b", "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v1", got.VersionID)
	assert.Equal(t, int64(42), got.Size)
	assert.Equal(t, "e1", got.ETag)
}

func TestDeleteMarkerHidesLatestLiveButKeepsHistory(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.CreateBucket("b", ""))
	require.NoError(t, idx.PutVersion(types.VersionMeta{Bucket: "b", Key: "k", VersionID: "v1", Digest: "d1", Size: 1, CreatedAtMS: 100}))
	require.NoError(t, idx.PutDeleteMarker("b", "k", "v2", 200))

	live, err := idx.GetLatestLive("b", "k")
	require.NoError(t, err)
	assert.Nil(t, live)

	any, err := idx.GetVersion("b", "k", "")
	require.NoError(t, err)
	require.NotNil(t, any)
	assert.True(t, any.IsDeleteMarker)
	assert.Equal(t, "v2", any.VersionID)

	versions, err := idx.ListVersions("b", "k")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "v1", versions[0].VersionID)
	assert.Equal(t, "v2", versions[1].VersionID)
}

func TestVersionsOrderedByTimestampThenVersionID(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.CreateBucket("b", ""))
	require.NoError(t, idx.PutVersion(types.VersionMeta{Bucket: "b", Key: "k", VersionID: "vB", Digest: "d1", CreatedAtMS: 100}))
	require.NoError(t, idx.PutVersion(types.VersionMeta{Bucket: "b", Key: "k", VersionID: "vA", Digest: "d2", CreatedAtMS: 100}))
	require.NoError(t, idx.PutVersion(types.VersionMeta{Bucket: "b", Key: "k", VersionID: "vC", Digest: "d3", CreatedAtMS: 50}))

	versions, err := idx.ListVersions("b", "k")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, "vC", versions[0].VersionID)
	assert.Equal(t, "vA", versions[1].VersionID)
	assert.Equal(t, "vB", versions[2].VersionID)
}

func TestRemoveVersionRecomputesLatest(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.CreateBucket("b", ""))
	require.NoError(t, idx.PutVersion(types.VersionMeta{Bucket: "b", Key: "k", VersionID: "v1", Digest: "d1", CreatedAtMS: 100}))
	require.NoError(t, idx.PutVersion(types.VersionMeta{Bucket: "b", Key: "k", VersionID: "v2", Digest: "d2", CreatedAtMS: 200}))

	existed, err := idx.RemoveVersion("b", "k", "v2")
	require.NoError(t, err)
	assert.True(t, existed)

	latest, err := idx.GetLatestLive("b", "k")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "v1", latest.VersionID)

	existed, err = idx.RemoveVersion("b", "k", "v2")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestRefcountTracksSharedDigest(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.CreateBucket("b", ""))
	require.NoError(t, idx.PutVersion(types.VersionMeta{Bucket: "b", Key: "k1", VersionID: "v1", Digest: "shared", CreatedAtMS: 1}))
	require.NoError(t, idx.PutVersion(types.VersionMeta{Bucket: "b", Key: "k2", VersionID: "v1", Digest: "shared", CreatedAtMS: 1}))

	count, err := idx.RefCount("shared")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	_, err = idx.RemoveVersion("b", "k1", "v1")
	require.NoError(t, err)
	count, err = idx.RefCount("shared")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	unreferenced, err := idx.UnreferencedDigests()
	require.NoError(t, err)
	assert.NotContains(t, unreferenced, types.Digest("shared"))
}

func TestPutVersionIsIdempotentOnReplay(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.CreateBucket("b", ""))
	vm := types.VersionMeta{Bucket: "b", Key: "k", VersionID: "v1", Digest: "d1", CreatedAtMS: 1}

	require.NoError(t, idx.PutVersion(vm))
	require.NoError(t, idx.PutVersion(vm))

	count, err := idx.RefCount("d1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count, "replaying the same committed entry must not double the refcount")

	versions, err := idx.ListVersions("b", "k")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestListKeysPaginates(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.CreateBucket("b", ""))
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, idx.PutVersion(types.VersionMeta{Bucket: "b", Key: k, VersionID: "v1", Digest: types.Digest(k), CreatedAtMS: 1}))
	}

	page1, next1, err := idx.ListKeys("b", "", 2, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, page1)
	assert.Equal(t, "b", next1)

	page2, next2, err := idx.ListKeys("b", "", 2, next1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, page2)
	assert.Equal(t, "d", next2)

	page3, next3, err := idx.ListKeys("b", "", 2, next2)
	require.NoError(t, err)
	assert.Equal(t, []string{"e"}, page3)
	assert.Equal(t, "", next3)
}

func TestListKeysHidesTombstonedLatest(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.CreateBucket("b", ""))
	require.NoError(t, idx.PutVersion(types.VersionMeta{Bucket: "b", Key: "live", VersionID: "v1", Digest: "d1", CreatedAtMS: 1}))
	require.NoError(t, idx.PutVersion(types.VersionMeta{Bucket: "b", Key: "gone", VersionID: "v1", Digest: "d2", CreatedAtMS: 1}))
	require.NoError(t, idx.PutDeleteMarker("b", "gone", "v2", 2))

	keys, _, err := idx.ListKeys("b", "", 100, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, keys)
}

func TestStatsCountsLiveObjectsOnly(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.CreateBucket("b", ""))
	require.NoError(t, idx.PutVersion(types.VersionMeta{Bucket: "b", Key: "a", VersionID: "v1", Digest: "d1", Size: 10, CreatedAtMS: 1}))
	require.NoError(t, idx.PutVersion(types.VersionMeta{Bucket: "b", Key: "b", VersionID: "v1", Digest: "d2", Size: 20, CreatedAtMS: 1}))
	require.NoError(t, idx.PutDeleteMarker("b", "b", "v2", 2))

	count, bytes, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, int64(10), bytes)
}

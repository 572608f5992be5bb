package coordinator

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/quorumvault/quorumvault/pkg/blobstore"
	"github.com/quorumvault/quorumvault/pkg/consensus"
	"github.com/quorumvault/quorumvault/pkg/coreerr"
	"github.com/quorumvault/quorumvault/pkg/metadata"
	"github.com/quorumvault/quorumvault/pkg/metrics"
	"github.com/quorumvault/quorumvault/pkg/replog"
	"github.com/quorumvault/quorumvault/pkg/transport"
	"github.com/quorumvault/quorumvault/pkg/types"
)

// Coordinator composes the blob store, metadata index and consensus node
// into the object store's external operations.
type Coordinator struct {
	store *blobstore.Store
	idx   *metadata.Index
	node  *consensus.Node
	cfg   types.NodeConfig
}

// New constructs a Coordinator and wires the blob store into the node's
// peer transport so other nodes can fetch blobs from this one.
func New(store *blobstore.Store, idx *metadata.Index, node *consensus.Node, cfg types.NodeConfig) *Coordinator {
	c := &Coordinator{store: store, idx: idx, node: node, cfg: cfg}
	node.SetBlobFetchHandler(c.handleBlobFetch)
	return c
}

func (c *Coordinator) handleBlobFetch(req transport.BlobFetchRequest) transport.BlobFetchResponse {
	data, err := c.store.Read(req.Digest)
	if err != nil {
		return transport.BlobFetchResponse{Found: false, Digest: req.Digest}
	}
	return transport.BlobFetchResponse{Found: true, Digest: req.Digest, Size: int64(len(data)), Data: data}
}

func (c *Coordinator) checkReplicationGate(verb string) error {
	if c.node.ActiveCount() < c.cfg.ReplicationFactor {
		metrics.GateRejectionsTotal.WithLabelValues(verb).Inc()
		return coreerr.InsufficientReplicas.With(
			"need %d active replicas, have %d", c.cfg.ReplicationFactor, c.node.ActiveCount())
	}
	return nil
}

func recordOutcome(verb string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.OperationsTotal.WithLabelValues(verb, outcome).Inc()
}

// CreateBucket registers a new bucket, replicated via the raft log.
func (c *Coordinator) CreateBucket(name, region string) (err error) {
	defer func() { recordOutcome("create_bucket", err) }()

	if err = c.checkReplicationGate("create_bucket"); err != nil {
		return err
	}
	if exists, existsErr := c.idx.BucketExists(name); existsErr == nil && exists {
		return coreerr.AlreadyExists.With("bucket %q", name)
	}

	cmd, err := replog.NewCreateBucketCommand(types.CreateBucketPayload{
		Name: name, Region: region, CreatedAtMS: nowMS(),
	})
	if err != nil {
		return coreerr.InvalidRequest.Wrap(err)
	}

	res, err := c.node.Apply(cmd)
	if err != nil {
		return err
	}
	return res.Err
}

// PutObject writes body's bytes to the local blob store (idempotent,
// content-addressed) then proposes a PutObject log entry recording the
// new version. Blocked by the replication-factor gate before either step.
func (c *Coordinator) PutObject(bucket, key string, body []byte, contentType string, userMeta map[string]string) (result types.PutObjectResult, err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.PutDuration)
		recordOutcome("put_object", err)
	}()

	if err = c.checkReplicationGate("put_object"); err != nil {
		return types.PutObjectResult{}, err
	}
	if exists, existsErr := c.idx.BucketExists(bucket); existsErr != nil || !exists {
		return types.PutObjectResult{}, coreerr.NoSuchBucket.With("bucket %q", bucket)
	}

	digest := blobstore.Digest(body)
	shaSum := sha256.Sum256(body)
	if err = c.store.Write(digest, body); err != nil {
		return types.PutObjectResult{}, err
	}

	versionID := uuid.NewString()
	etag := string(digest)
	payload := types.PutObjectPayload{
		Bucket:       bucket,
		Key:          key,
		VersionID:    versionID,
		Digest:       digest,
		SHA256:       hex.EncodeToString(shaSum[:]),
		Size:         int64(len(body)),
		ETag:         etag,
		ContentType:  contentType,
		UserMetadata: userMeta,
		CreatedAtMS:  nowMS(),
	}

	cmd, err := replog.NewPutObjectCommand(payload)
	if err != nil {
		return types.PutObjectResult{}, coreerr.InvalidRequest.Wrap(err)
	}

	res, err := c.node.Apply(cmd)
	if err != nil {
		return types.PutObjectResult{}, err
	}
	if res.Err != nil {
		return types.PutObjectResult{}, res.Err
	}

	return types.PutObjectResult{VersionID: versionID, ETag: etag, Size: payload.Size}, nil
}

// GetObject returns a version's metadata and bytes, fetching the blob from
// a peer over pkg/transport if it isn't present on local disk yet.
func (c *Coordinator) GetObject(bucket, key, versionID string) (obj *types.ObjectData, err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.GetDuration)
		recordOutcome("get_object", err)
	}()

	meta, err := c.resolveVersion(bucket, key, versionID)
	if err != nil {
		return nil, err
	}

	body, err := c.readBlobWithFetch(*meta)
	if err != nil {
		return nil, err
	}
	return &types.ObjectData{Meta: *meta, Body: body}, nil
}

// HeadObject returns a version's metadata without reading its blob bytes.
func (c *Coordinator) HeadObject(bucket, key, versionID string) (*types.VersionMeta, error) {
	return c.resolveVersion(bucket, key, versionID)
}

func (c *Coordinator) resolveVersion(bucket, key, versionID string) (*types.VersionMeta, error) {
	var meta *types.VersionMeta
	var err error
	if versionID == "" {
		meta, err = c.idx.GetLatestLive(bucket, key)
	} else {
		meta, err = c.idx.GetVersion(bucket, key, versionID)
		if err == nil && meta != nil && meta.IsDeleteMarker {
			return nil, coreerr.NoSuchKey.With("%s/%s version %s is a delete marker", bucket, key, versionID)
		}
	}
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, coreerr.NoSuchKey.With("%s/%s", bucket, key)
	}
	return meta, nil
}

func (c *Coordinator) readBlobWithFetch(meta types.VersionMeta) ([]byte, error) {
	data, err := c.store.Read(meta.Digest)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, coreerr.NoSuchKey) {
		if errors.Is(err, coreerr.Corruption) {
			metrics.IntegrityFailuresTotal.Inc()
		}
		return nil, err
	}

	for _, addr := range c.node.PeerTransportAddrs() {
		resp, fetchErr := c.node.FetchBlobFromPeer(addr, transport.BlobFetchRequest{Digest: meta.Digest})
		if fetchErr != nil || !resp.Found {
			continue
		}
		if writeErr := c.store.Write(meta.Digest, resp.Data); writeErr != nil {
			continue
		}
		return resp.Data, nil
	}
	return nil, coreerr.NoSuchKey.With("blob %s not available locally or from any peer", meta.Digest)
}

// DeleteObject appends a delete marker (versionID empty) or removes one
// specific version (versionID set), per the specification's resolution
// that an unqualified delete is still gated by replication factor.
func (c *Coordinator) DeleteObject(bucket, key, versionID string) (markerID string, err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.DeleteDuration)
		recordOutcome("delete_object", err)
	}()

	if err = c.checkReplicationGate("delete_object"); err != nil {
		return "", err
	}

	payload := types.DeleteObjectPayload{Bucket: bucket, Key: key, CreatedAtMS: nowMS()}
	if versionID != "" {
		existing, getErr := c.idx.GetVersion(bucket, key, versionID)
		if getErr != nil {
			return "", getErr
		}
		if existing == nil {
			return "", coreerr.NoSuchKey.With("%s/%s version %s", bucket, key, versionID)
		}
		payload.VersionID = versionID
	} else {
		markerID = uuid.NewString()
		payload.MarkerID = markerID
	}

	cmd, err := replog.NewDeleteObjectCommand(payload)
	if err != nil {
		return "", coreerr.InvalidRequest.Wrap(err)
	}

	res, err := c.node.Apply(cmd)
	if err != nil {
		return "", err
	}
	if res.Err != nil {
		return "", res.Err
	}
	return markerID, nil
}

// ListObjectsV2 returns up to maxKeys live keys under bucket with the
// given prefix, resuming after the opaque continuation token from a prior
// call.
func (c *Coordinator) ListObjectsV2(bucket, prefix, continuation string, maxKeys int) (types.ListObjectsResult, error) {
	keys, next, err := c.idx.ListKeys(bucket, prefix, maxKeys, continuation)
	if err != nil {
		return types.ListObjectsResult{}, err
	}
	return types.ListObjectsResult{
		Keys:             keys,
		NextContinuation: next,
		IsTruncated:      next != "",
	}, nil
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}

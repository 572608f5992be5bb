/*
Package blobstore implements C1, the object store: content-addressed,
immutable byte-sequence persistence on local disk with integrity
verification on every read.

Blobs are keyed by their BLAKE3-256 digest and sharded under
<root>/objects/<first-2-hex-chars>/<full-digest>. Writes go to a
"<path>.tmp" file, are fsync'd, then renamed into place — atomic on the
same filesystem, so a crash mid-write leaves either nothing or a
complete file, never a partial one; a leftover .tmp file found at
startup is removed. write is idempotent: a digest that already exists on
disk is left untouched, which is what lets followers accept the same
blob from multiple sources during replication without coordination, and
lets different versions referencing identical content share storage for
free.
*/
package blobstore

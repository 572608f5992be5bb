package replog

import (
	"encoding/json"

	"github.com/quorumvault/quorumvault/pkg/types"
)

// Command is the tagged union carried by every raft.Log entry, mirroring
// the teacher's manager.Command envelope (Op string + json.RawMessage).
type Command struct {
	Type types.CommandType `json:"type"`
	Data json.RawMessage   `json:"data"`
}

func newCommand(t types.CommandType, payload any) (Command, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Command{}, err
	}
	return Command{Type: t, Data: data}, nil
}

// Encode marshals cmd to the bytes passed to raft.Raft.Apply.
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// Decode unmarshals a raft.Log's Data back into a Command.
func Decode(data []byte) (Command, error) {
	var c Command
	err := json.Unmarshal(data, &c)
	return c, err
}

// NewPutObjectCommand builds the command proposed for a committed
// PutObject: the blob itself has already been written to the local blob
// store on the proposing node; a node without it fetches it over
// pkg/transport on the first GetObject that needs it.
func NewPutObjectCommand(p types.PutObjectPayload) (Command, error) {
	return newCommand(types.CommandPutObject, p)
}

// NewDeleteObjectCommand builds the command proposed for a committed
// DeleteObject. An empty VersionID appends a delete marker (MarkerID is
// the new version id); a non-empty VersionID removes exactly that
// version.
func NewDeleteObjectCommand(p types.DeleteObjectPayload) (Command, error) {
	return newCommand(types.CommandDeleteObject, p)
}

// NewCreateBucketCommand builds the command proposed for a committed
// CreateBucket.
func NewCreateBucketCommand(p types.CreateBucketPayload) (Command, error) {
	return newCommand(types.CommandCreateBucket, p)
}

// NewMembershipChangeCommand builds the command recording a cluster
// membership change, applied to the FSM purely for observability — raft
// itself tracks voter configuration out of band.
func NewMembershipChangeCommand(p types.MembershipChangePayload) (Command, error) {
	return newCommand(types.CommandMembershipChange, p)
}

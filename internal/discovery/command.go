package discovery

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/google/uuid"

	"github.com/dreamware/vindex/internal/cluster"
	"github.com/dreamware/vindex/internal/index"
	"github.com/dreamware/vindex/internal/routing"
)

const (
	opAddNode       = "add_node"
	opRemoveNode    = "remove_node"
	opSetMaster     = "set_master"
	opNoMasterBlock = "no_master_block"
	opPutIndex      = "put_index"
	opRemoveIndex   = "remove_index"
	opSetRouting    = "set_routing"
)

func encodeCommand(op string, payload any) ([]byte, error) {
	var pb bytes.Buffer
	if err := gob.NewEncoder(&pb).Encode(payload); err != nil {
		return nil, fmt.Errorf("discovery: encode %s payload: %w", op, err)
	}
	var cb bytes.Buffer
	if err := gob.NewEncoder(&cb).Encode(command{Op: op, Payload: pb.Bytes()}); err != nil {
		return nil, fmt.Errorf("discovery: encode %s command: %w", op, err)
	}
	return cb.Bytes(), nil
}

func decodePayload(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func applyCommand(state cluster.State, cmd command) (cluster.State, error) {
	switch cmd.Op {
	case opAddNode:
		var n cluster.Node
		if err := decodePayload(cmd.Payload, &n); err != nil {
			return state, err
		}
		return state.WithNode(n), nil

	case opRemoveNode:
		var id uuid.UUID
		if err := decodePayload(cmd.Payload, &id); err != nil {
			return state, err
		}
		return state.WithoutNode(id), nil

	case opSetMaster:
		var id uuid.UUID
		if err := decodePayload(cmd.Payload, &id); err != nil {
			return state, err
		}
		return state.WithMaster(id), nil

	case opNoMasterBlock:
		var level cluster.NoMasterBlockLevel
		if err := decodePayload(cmd.Payload, &level); err != nil {
			return state, err
		}
		return state.WithNoMasterBlock(level), nil

	case opPutIndex:
		var m index.Metadata
		if err := decodePayload(cmd.Payload, &m); err != nil {
			return state, err
		}
		return state.PutIndex(m), nil

	case opRemoveIndex:
		var id uuid.UUID
		if err := decodePayload(cmd.Payload, &id); err != nil {
			return state, err
		}
		return state.RemoveIndex(id), nil

	case opSetRouting:
		var t routing.Table
		if err := decodePayload(cmd.Payload, &t); err != nil {
			return state, err
		}
		return state.WithRouting(t), nil

	default:
		return state, fmt.Errorf("discovery: unknown command op %q", cmd.Op)
	}
}

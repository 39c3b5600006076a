package server

import (
	"encoding/json"

	"github.com/npezzotti/go-notify/internal/types"
)

// newSyncHintMessage strips the recipient list, which is server side routing
// only.
func newSyncHintMessage(hint types.SyncHint) *types.ServerMessage {
	return &types.ServerMessage{
		Timestamp: types.Now(),
		Notification: types.Notification{
			SyncHint: &types.SyncHint{
				ChannelId: hint.ChannelId,
				Reason:    hint.Reason,
			},
		},
	}
}

func serializeMessage(msg *types.ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

package pubsub

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/Graze/Graze/internal/model"
)

// clientFrame is the envelope for LISTEN/UNLISTEN/PING commands.
type clientFrame struct {
	Type  string           `json:"type"`
	Nonce string           `json:"nonce,omitempty"`
	Data  *clientFrameData `json:"data,omitempty"`
}

type clientFrameData struct {
	Topics    []string `json:"topics"`
	AuthToken string   `json:"auth_token,omitempty"`
}

// serverFrame is the envelope for everything the edge pushes back.
type serverFrame struct {
	Type  string           `json:"type"`
	Nonce string           `json:"nonce,omitempty"`
	Error string           `json:"error,omitempty"`
	Data  *serverFrameData `json:"data,omitempty"`
}

type serverFrameData struct {
	Topic string `json:"topic"`
	// Message is JSON encoded as a string, one more time.
	Message string `json:"message"`
}

const (
	frameListen    = "LISTEN"
	frameUnlisten  = "UNLISTEN"
	framePing      = "PING"
	framePong      = "PONG"
	frameResponse  = "RESPONSE"
	frameReconnect = "RECONNECT"
	frameMessage   = "MESSAGE"
)

const nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// newNonce returns a 30-character alphanumeric command nonce.
func newNonce() string {
	b := make([]byte, 30)
	for i := range b {
		b[i] = nonceAlphabet[rand.IntN(len(nonceAlphabet))]
	}
	return string(b)
}

// Payload is one decoded topic message delivered on the pool's output channel.
// Reply holds one of StreamUp, StreamDown, PredictionUpdate, ClaimClaimed,
// ClaimAvailable or RaidUpdate.
type Payload struct {
	Topic Topic
	Reply any
}

// StreamUp signals a broadcast starting on a video-playback topic.
type StreamUp struct {
	ServerTime float64 `json:"server_time"`
	PlayDelay  int     `json:"play_delay"`
}

// StreamDown signals a broadcast ending. The pool synthesizes one with
// ServerTime zero when a video-playback topic is unlistened.
type StreamDown struct {
	ServerTime float64 `json:"server_time"`
}

// PredictionUpdate carries an event-created or event-updated payload.
type PredictionUpdate struct {
	Type  string
	Event model.Event
}

// PointsClaim describes a community-points bonus claim.
type PointsClaim struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	PointGain struct {
		TotalPoints int64 `json:"total_points"`
	} `json:"point_gain"`
}

// ClaimClaimed reports a bonus claim landing, with the post-claim balance.
type ClaimClaimed struct {
	Timestamp time.Time   `json:"timestamp"`
	Claim     PointsClaim `json:"claim"`
}

// ClaimAvailable reports a bonus becoming claimable.
type ClaimAvailable struct {
	Timestamp time.Time   `json:"timestamp"`
	Claim     PointsClaim `json:"claim"`
}

// RaidUpdate describes an outgoing raid on a raid topic.
type RaidUpdate struct {
	ID          string `json:"id"`
	SourceID    string `json:"source_id"`
	TargetID    string `json:"target_id"`
	TargetLogin string `json:"target_login"`
}

// decodeMessage decodes the inner message of a MESSAGE frame for the given
// topic. It returns (nil, nil) for sub-kinds the pool does not forward.
func decodeMessage(topic Topic, message string) (any, error) {
	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
		// video-playback payloads are flat, raid nests under "raid"
		ServerTime float64         `json:"server_time"`
		PlayDelay  int             `json:"play_delay"`
		Raid       json.RawMessage `json:"raid"`
	}
	if err := json.Unmarshal([]byte(message), &envelope); err != nil {
		return nil, fmt.Errorf("decode %s message: %w", topic, err)
	}

	switch topic.Kind {
	case VideoPlaybackByID:
		switch envelope.Type {
		case "stream-up":
			return StreamUp{ServerTime: envelope.ServerTime, PlayDelay: envelope.PlayDelay}, nil
		case "stream-down":
			return StreamDown{ServerTime: envelope.ServerTime}, nil
		default:
			// viewcount and commercial sub-kinds are noise
			return nil, nil
		}
	case PredictionsChannelV1:
		switch envelope.Type {
		case "event-created", "event-updated":
			var data struct {
				Event model.Event `json:"event"`
			}
			if err := json.Unmarshal(envelope.Data, &data); err != nil {
				return nil, fmt.Errorf("decode prediction event: %w", err)
			}
			return PredictionUpdate{Type: envelope.Type, Event: data.Event}, nil
		default:
			return nil, nil
		}
	case CommunityPointsUserV1:
		switch envelope.Type {
		case "claim-claimed":
			var reply ClaimClaimed
			if err := json.Unmarshal(envelope.Data, &reply); err != nil {
				return nil, fmt.Errorf("decode claim-claimed: %w", err)
			}
			return reply, nil
		case "claim-available":
			var reply ClaimAvailable
			if err := json.Unmarshal(envelope.Data, &reply); err != nil {
				return nil, fmt.Errorf("decode claim-available: %w", err)
			}
			return reply, nil
		default:
			return nil, nil
		}
	case RaidTopic:
		if envelope.Type != "raid_update_v2" || envelope.Raid == nil {
			return nil, nil
		}
		var reply RaidUpdate
		if err := json.Unmarshal(envelope.Raid, &reply); err != nil {
			return nil, fmt.Errorf("decode raid_update_v2: %w", err)
		}
		return reply, nil
	}
	return nil, nil
}

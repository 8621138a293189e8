// Package pubsub implements the pooled client for the platform's pub/sub
// WebSocket edge: topic multiplexing across connections, reconnect handling,
// and command retry.
package pubsub

import (
	"fmt"
	"strconv"
	"strings"
)

// TopicKind enumerates the topic families the agent subscribes to.
type TopicKind int

const (
	PredictionsChannelV1 TopicKind = iota
	CommunityPointsUserV1
	RaidTopic
	VideoPlaybackByID
)

// Topic identifies one pub/sub subscription target.
type Topic struct {
	Kind      TopicKind
	ChannelID int64
}

func (t Topic) String() string {
	switch t.Kind {
	case PredictionsChannelV1:
		return "predictions-channel-v1." + strconv.FormatInt(t.ChannelID, 10)
	case CommunityPointsUserV1:
		return "community-points-user-v1." + strconv.FormatInt(t.ChannelID, 10)
	case RaidTopic:
		return "raid." + strconv.FormatInt(t.ChannelID, 10)
	case VideoPlaybackByID:
		return "video-playback-by-id." + strconv.FormatInt(t.ChannelID, 10)
	}
	return "unknown." + strconv.FormatInt(t.ChannelID, 10)
}

// ParseTopic parses a wire topic string into a Topic.
func ParseTopic(s string) (Topic, error) {
	dot := strings.LastIndexByte(s, '.')
	if dot < 0 {
		return Topic{}, fmt.Errorf("malformed topic %q", s)
	}
	id, err := strconv.ParseInt(s[dot+1:], 10, 64)
	if err != nil {
		return Topic{}, fmt.Errorf("malformed topic id in %q: %w", s, err)
	}
	var kind TopicKind
	switch s[:dot] {
	case "predictions-channel-v1":
		kind = PredictionsChannelV1
	case "community-points-user-v1":
		kind = CommunityPointsUserV1
	case "raid":
		kind = RaidTopic
	case "video-playback-by-id":
		kind = VideoPlaybackByID
	default:
		return Topic{}, fmt.Errorf("unknown topic family in %q", s)
	}
	return Topic{Kind: kind, ChannelID: id}, nil
}

// Package channeltest provides test doubles for the channel package.
// It is intended for use by other packages' tests.
package channeltest

import (
	"github.com/telegate/telegate/internal/channel"
)

// NewMockChannel creates a recording channel double. Pass nil for allowList
// to admit everyone, matching an unrestricted deployment.
func NewMockChannel(name string, allowList *channel.AllowList) *channel.MockChannel {
	return channel.NewMockChannel(name, allowList)
}

// NewMockStreamingChannel creates a recording channel double that also
// implements StreamingChannel.
func NewMockStreamingChannel(name string, allowList *channel.AllowList) *channel.MockStreamingChannel {
	return channel.NewMockStreamingChannel(name, allowList)
}

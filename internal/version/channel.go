package version

import "strings"

// Channel selects which releases a client is willing to install.
type Channel string

const (
	ChannelStable Channel = "stable"
	ChannelTest   Channel = "test"
)

var allChannels = []Channel{ChannelStable, ChannelTest}

var channelSet = func() map[Channel]struct{} {
	set := make(map[Channel]struct{}, len(allChannels))
	for _, channel := range allChannels {
		set[channel] = struct{}{}
	}
	return set
}()

// AllChannels returns the known channels in preference order.
func AllChannels() []Channel {
	cp := make([]Channel, len(allChannels))
	copy(cp, allChannels)
	return cp
}

// ParseChannel converts a string into a known Channel.
func ParseChannel(value string) (Channel, bool) {
	normalized := Channel(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := channelSet[normalized]
	return normalized, ok
}

// ChannelFor reports the channel a version belongs to. Prereleases publish on
// the test channel, everything else on stable.
func ChannelFor(v Version) Channel {
	if v.Stable() {
		return ChannelStable
	}
	return ChannelTest
}

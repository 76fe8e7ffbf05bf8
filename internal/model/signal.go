package model

import (
	"fmt"
	"time"
)

// Channel identifies the observation source a Signal was produced by.
type Channel int

const (
	// ChannelRequestTap is an outbound request URL seen on the network tap.
	ChannelRequestTap Channel = iota

	// ChannelResponseTap is an inbound response whose URL or content type
	// identifies it as a manifest.
	ChannelResponseTap

	// ChannelResponseBodyScan is a URL extracted from a captured response body.
	ChannelResponseBodyScan

	// ChannelDomScan is a media element source found in the document tree,
	// including nested documents.
	ChannelDomScan

	// ChannelGlobalScan is a URL found in a shallow serialization of the
	// page's top-level bindings.
	ChannelGlobalScan

	// ChannelTimingScan is a resource-timing entry name.
	ChannelTimingScan

	// ChannelSocketFrame is a URL found in a WebSocket frame payload.
	ChannelSocketFrame

	// ChannelHookCapture is a URL recorded by the fetch/XHR hooks installed
	// into the page before any page script runs.
	ChannelHookCapture
)

// channelNames maps channels to their wire names.
var channelNames = map[Channel]string{
	ChannelRequestTap:       "request-tap",
	ChannelResponseTap:      "response-tap",
	ChannelResponseBodyScan: "response-body-scan",
	ChannelDomScan:          "dom-scan",
	ChannelGlobalScan:       "global-scan",
	ChannelTimingScan:       "timing-scan",
	ChannelSocketFrame:      "socket-frame",
	ChannelHookCapture:      "hook-capture",
}

// AllChannels returns every channel in declaration order.
func AllChannels() []Channel {
	return []Channel{
		ChannelRequestTap,
		ChannelResponseTap,
		ChannelResponseBodyScan,
		ChannelDomScan,
		ChannelGlobalScan,
		ChannelTimingScan,
		ChannelSocketFrame,
		ChannelHookCapture,
	}
}

// String returns the wire name of the channel.
func (c Channel) String() string {
	if name, ok := channelNames[c]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler so channels serialize
// as their wire names in JSON reports and in the database.
func (c Channel) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Channel) UnmarshalText(text []byte) error {
	ch, err := ParseChannel(string(text))
	if err != nil {
		return err
	}
	*c = ch
	return nil
}

// ParseChannel converts a wire name back into a Channel.
func ParseChannel(s string) (Channel, error) {
	for ch, name := range channelNames {
		if name == s {
			return ch, nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", s)
}

// Signal is a single observation of a possible manifest URL.
// Signals are immutable once created.
type Signal struct {
	// URL is the observed absolute URL.
	URL string `json:"url"`

	// Channel is the source that produced the observation.
	Channel Channel `json:"channel"`

	// ObservedAt is when the source saw the URL.
	ObservedAt time.Time `json:"observedAt"`

	// BodyExcerpt holds the response body for response-tap signals whose
	// body was captured. Empty for every other channel.
	BodyExcerpt string `json:"bodyExcerpt,omitempty"`
}

// NewSignal creates a Signal observed now.
func NewSignal(url string, ch Channel) Signal {
	return Signal{
		URL:        url,
		Channel:    ch,
		ObservedAt: time.Now(),
	}
}

package signaling

import (
	"fmt"
	"strings"

	"github.com/sebas/bellbridge/internal/sipmsg"
)

// audioAnswer builds the fixed audio session description advertised on every
// INVITE. The gateway never actually receives media on the advertised port;
// the answer exists so the device completes its call setup and starts
// listening on its own two-way-audio channel. Field order matches what the
// devices parse, including the nonstandard "ftmp" line seen on the wire.
func audioAnswer(host string) sipmsg.SessionDescription {
	host, _, _ = strings.Cut(host, ":")
	return sipmsg.SessionDescription{
		{Type: "v", Value: "0"},
		{Type: "o", Value: fmt.Sprintf("- 2253 3984 IN IP4 %s", host)},
		{Type: "s", Value: "fake"},
		{Type: "c", Value: fmt.Sprintf("IN IP4 %s", host)},
		{Type: "t", Value: "0 0"},
		{Type: "a", Value: "msid-semantic:WMS *"},
		{Type: "m", Value: "audio 16852 RTP/AVP 0 8 98 96 101"},
		{Type: "a", Value: "connection:new"},
		{Type: "a", Value: "setup:actpass"},
		{Type: "a", Value: "rtpmap:0 PCMU/8000"},
		{Type: "a", Value: "rtpmap:8 PCMA/8000"},
		{Type: "a", Value: "rtpmap:98 speex/8000"},
		{Type: "a", Value: "rtpmap:96 opus/48000/2"},
		{Type: "a", Value: "rtpmap:101 telephone-event/8000"},
		{Type: "a", Value: "ftmp:101 0-16"},
		{Type: "a", Value: "ptime:20"},
		{Type: "a", Value: "maxptime:60"},
		{Type: "a", Value: "sendrecv"},
	}
}

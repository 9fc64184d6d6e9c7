package sipmsg

import "strings"

// SDPField is one type=value line of a session description.
type SDPField struct {
	Type  string
	Value string
}

// SessionDescription is an ordered sequence of SDP fields. Order is
// significant: the protocol version line must come first and peers parse the
// remaining lines positionally, so fields serialize exactly as given.
type SessionDescription []SDPField

// Encode renders the description as CR-LF terminated type=value lines,
// including the terminator on the final line.
func (sd SessionDescription) Encode() string {
	var b strings.Builder
	for _, f := range sd {
		b.WriteString(f.Type)
		b.WriteByte('=')
		b.WriteString(f.Value)
		b.WriteString("\r\n")
	}
	return b.String()
}

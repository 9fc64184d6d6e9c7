// Package sipmsg implements the line-oriented signaling wire format spoken by
// the doorbell devices: a minimal SIP subset plus the companion session
// description text format. It is a pure codec and holds no dialog state.
package sipmsg

import (
	"fmt"
	"strings"
)

// Method is a SIP request method. Methods outside the supported set are kept
// opaque so the dialog layer can drop them without a parse failure.
type Method string

const (
	MethodRegister Method = "REGISTER"
	MethodInvite   Method = "INVITE"
	MethodAck      Method = "ACK"
	MethodBye      Method = "BYE"
)

// ParseError reports a malformed signaling message. Messages failing to parse
// are dropped by the caller; there is no partial-success mode.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed SIP message: %s (line %q)", e.Reason, e.Line)
}

// Header is a single name/value pair.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header collection. Insertion order is preserved for
// serialization; lookups are exact-case; setting an existing name replaces its
// value in place (last wins).
type Headers struct {
	fields []Header
}

// NewHeaders returns an empty header collection.
func NewHeaders() *Headers {
	return &Headers{}
}

// Set adds the header, replacing the value if the name is already present.
// Setting an empty value still records the header; empty values are omitted at
// serialization time.
func (h *Headers) Set(name, value string) {
	for i := range h.fields {
		if h.fields[i].Name == name {
			h.fields[i].Value = value
			return
		}
	}
	h.fields = append(h.fields, Header{Name: name, Value: value})
}

// Get returns the value for name, or "" if absent. Matching is exact-case.
func (h *Headers) Get(name string) string {
	for i := range h.fields {
		if h.fields[i].Name == name {
			return h.fields[i].Value
		}
	}
	return ""
}

// Has reports whether name is present.
func (h *Headers) Has(name string) bool {
	for i := range h.fields {
		if h.fields[i].Name == name {
			return true
		}
	}
	return false
}

// Fields returns the headers in insertion order.
func (h *Headers) Fields() []Header {
	out := make([]Header, len(h.fields))
	copy(out, h.fields)
	return out
}

func (h *Headers) encode(b *strings.Builder) {
	for _, f := range h.fields {
		if f.Value == "" {
			continue
		}
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString("\r\n")
	}
}

// Request is a parsed or generated signaling request.
type Request struct {
	Method  Method
	URI     string
	Version string
	Headers *Headers
	Body    string
}

// Response is a generated signaling response. Responses are built per reply
// and never reused.
type Response struct {
	Status  string
	Version string
	Headers *Headers
	Body    string
}

// ParseRequest parses a datagram into a Request. The first line must be
// "METHOD URI VERSION"; each following line up to the blank separator must be
// "Name: Value". Any line that does not fit is a *ParseError.
func ParseRequest(data []byte) (*Request, error) {
	lines := strings.Split(string(data), "\r\n")

	parts := strings.Split(lines[0], " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, &ParseError{Line: lines[0], Reason: "invalid request line"}
	}

	req := &Request{
		Method:  Method(parts[0]),
		URI:     parts[1],
		Version: parts[2],
		Headers: NewHeaders(),
	}

	for i := 1; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			req.Body = strings.Join(lines[i+1:], "\r\n")
			break
		}
		name, value, found := strings.Cut(line, ": ")
		if !found || name == "" {
			return nil, &ParseError{Line: line, Reason: "invalid header line"}
		}
		req.Headers.Set(name, value)
	}

	return req, nil
}

// Encode serializes the request in wire form. Headers are emitted in insertion
// order; the body, if any, follows the blank separator verbatim.
func (r *Request) Encode() []byte {
	var b strings.Builder
	b.WriteString(string(r.Method))
	b.WriteByte(' ')
	b.WriteString(r.URI)
	b.WriteByte(' ')
	b.WriteString(r.Version)
	b.WriteString("\r\n")
	r.Headers.encode(&b)
	b.WriteString("\r\n")
	b.WriteString(r.Body)
	return []byte(b.String())
}

// Encode serializes the response in wire form. A response carries one extra
// trailing line break after the body.
func (r *Response) Encode() []byte {
	var b strings.Builder
	b.WriteString(r.Version)
	b.WriteByte(' ')
	b.WriteString(r.Status)
	b.WriteString("\r\n")
	r.Headers.encode(&b)
	b.WriteString("\r\n")
	b.WriteString(r.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

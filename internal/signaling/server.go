// Package signaling runs the gateway's SIP surface: a single-owner UDP socket
// and the dialog handler for the four supported method flows. The handler is
// stateless across messages; dialog correlation lives in the echoed header
// fields, and the only side effect is the button-press trigger handed to a
// device's session controller.
package signaling

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/sebas/bellbridge/internal/sipmsg"
)

const serverAgent = "Asterisk PBX 18.14.0"

// ButtonPresser is the trigger entrypoint of a device's audio session
// controller.
type ButtonPresser interface {
	HandleButtonPress() error
}

// DeviceDirectory resolves device identities extracted from signaling
// messages. Unknown identities are a log-only outcome; the peer is never told
// its identity failed.
type DeviceDirectory interface {
	Lookup(name string) (ButtonPresser, bool)
}

type sendFunc func(addr *net.UDPAddr, data []byte) error

// Server owns the signaling socket and dispatches inbound datagrams.
type Server struct {
	port    int
	devices DeviceDirectory

	mu      sync.Mutex
	conn    *net.UDPConn
	running bool
	wg      sync.WaitGroup

	// send is swapped out in tests to capture outbound datagrams.
	send sendFunc
}

// NewServer creates a signaling server listening on the given UDP port.
func NewServer(port int, devices DeviceDirectory) *Server {
	s := &Server{port: port, devices: devices}
	s.send = s.writeUDP
	return s
}

// Start binds the UDP socket and begins receiving datagrams.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("signaling server already running")
	}

	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP port %d: %w", s.port, err)
	}

	s.conn = conn
	s.running = true

	slog.Info("[SIP] Starting SIP server", "addr", conn.LocalAddr().String())

	s.wg.Add(1)
	go s.receive()
	return nil
}

// Stop closes the socket and waits for the receive loop to exit.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Server) receive() {
	defer s.wg.Done()

	buf := make([]byte, 8192)
	for {
		n, src, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if running {
				slog.Error("[SIP] Read error", "error", err)
			}
			return
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		s.handleDatagram(data, src)
	}
}

func (s *Server) writeUDP(addr *net.UDPAddr, data []byte) error {
	_, err := s.conn.WriteToUDP(data, addr)
	return err
}

// handleDatagram parses one inbound datagram and runs the method flow.
// Malformed messages are dropped after logging; no reply is sent for them.
func (s *Server) handleDatagram(data []byte, src *net.UDPAddr) {
	req, err := sipmsg.ParseRequest(data)
	if err != nil {
		slog.Warn("[SIP] Dropping unparsable message", "src", src.String(), "error", err)
		return
	}

	slog.Debug("[SIP] Incoming message", "method", string(req.Method), "src", src.String())

	switch req.Method {
	case sipmsg.MethodRegister:
		s.handleRegister(req, src)
	case sipmsg.MethodInvite:
		s.handleInvite(req, src)
	case sipmsg.MethodAck:
		s.handleAck(req, src)
	case sipmsg.MethodBye:
		s.sendReply(src, req, "200 OK", nil, "")
	default:
		slog.Debug("[SIP] Dropping unsupported method", "method", string(req.Method))
	}
}

// handleRegister answers every REGISTER with 200 OK. Unknown devices still get
// the same answer so network probes learn nothing about the registry.
func (s *Server) handleRegister(req *sipmsg.Request, src *net.UDPAddr) {
	name, err := deviceIdentity(req.Headers.Get("To"))
	if err != nil {
		slog.Warn("[SIP] Dropping REGISTER without device identity", "error", err)
		return
	}

	if _, ok := s.devices.Lookup(name); ok {
		slog.Info("[SIP] Doorbell registered", "doorbell", name)
	} else {
		slog.Warn("[SIP] Unknown doorbell attempted REGISTER (check config)", "doorbell", name)
	}

	contact := fmt.Sprintf("<sip:%s@%s:%d;transport=udp>;expires=3600", name, src.IP.String(), src.Port)
	s.sendReply(src, req, "200 OK", []sipmsg.Header{{Name: "Contact", Value: contact}}, "")
}

// handleInvite fires the device's button-press trigger and answers the INVITE
// with the fixed three-reply handshake. The handshake is sent even for
// unknown devices; only the trigger is skipped.
func (s *Server) handleInvite(req *sipmsg.Request, src *net.UDPAddr) {
	from := req.Headers.Get("From")

	name, err := deviceIdentity(from)
	if err != nil {
		slog.Warn("[SIP] Dropping INVITE without device identity", "error", err)
		return
	}

	if ctrl, ok := s.devices.Lookup(name); ok {
		go func() {
			if err := ctrl.HandleButtonPress(); err != nil {
				slog.Error("[SIP] Button press handling failed", "doorbell", name, "error", err)
			}
		}()
	} else {
		slog.Warn("[SIP] Unknown doorbell pressed", "doorbell", name)
	}

	host := addressHost(from)
	if host == "" {
		slog.Warn("[SIP] Dropping INVITE without host in From header", "from", from)
		return
	}
	external := fmt.Sprintf("%s:%d", host, s.port)

	sdp := audioAnswer(host).Encode()
	mediaHeaders := []sipmsg.Header{
		{Name: "Contact", Value: fmt.Sprintf("<sip:%s>", external)},
		{Name: "Content-Type", Value: "application/sdp"},
	}

	s.sendReply(src, req, "100 Trying", nil, "")
	s.sendReply(src, req, "183 Session Progress", mediaHeaders, sdp)
	s.sendReply(src, req, "200 OK", mediaHeaders, sdp)
}

// handleAck closes the exchange from the server side with a BYE back to the
// peer.
func (s *Server) handleAck(req *sipmsg.Request, src *net.UDPAddr) {
	uri := fmt.Sprintf("sip:%s:%d", src.IP.String(), src.Port)
	s.sendRequest(src, req, sipmsg.MethodBye, uri)
}

// sendReply builds and sends a response correlated to the inbound request:
// branch echoed in Via, Call-ID copied, To tagged with the branch. Extra
// headers override the defaults by name.
func (s *Server) sendReply(src *net.UDPAddr, req *sipmsg.Request, status string, extra []sipmsg.Header, body string) {
	branch, err := viaBranch(req.Headers.Get("Via"))
	if err != nil {
		slog.Warn("[SIP] Cannot reply without Via branch", "error", err)
		return
	}
	toURI, err := sipURI(req.Headers.Get("To"))
	if err != nil {
		slog.Warn("[SIP] Cannot reply without To URI", "error", err)
		return
	}

	headers := sipmsg.NewHeaders()
	headers.Set("Via", fmt.Sprintf("%s/UDP %s:%d;rport=%d;received=%s;branch=%s",
		req.Version, src.IP.String(), src.Port, src.Port, src.IP.String(), branch))
	headers.Set("Call-ID", req.Headers.Get("Call-ID"))
	headers.Set("From", req.Headers.Get("From"))
	headers.Set("To", fmt.Sprintf("<%s>;tag=%s", toURI, branch))
	headers.Set("CSeq", req.Headers.Get("CSeq"))
	headers.Set("Server", serverAgent)
	headers.Set("Content-Length", strconv.Itoa(len(body)))
	for _, h := range extra {
		headers.Set(h.Name, h.Value)
	}

	resp := &sipmsg.Response{
		Status:  status,
		Version: req.Version,
		Headers: headers,
		Body:    body,
	}
	if err := s.send(src, resp.Encode()); err != nil {
		slog.Error("[SIP] Failed to send reply", "status", status, "error", err)
	}
}

// sendRequest originates a request within the inbound exchange: same branch
// and Call-ID, From/To swapped for the reversed direction.
func (s *Server) sendRequest(src *net.UDPAddr, req *sipmsg.Request, method sipmsg.Method, uri string) {
	branch, err := viaBranch(req.Headers.Get("Via"))
	if err != nil {
		slog.Warn("[SIP] Cannot send request without Via branch", "error", err)
		return
	}

	headers := sipmsg.NewHeaders()
	headers.Set("Via", fmt.Sprintf("%s/UDP %s:%d;branch=%s;rport",
		req.Version, src.IP.String(), src.Port, branch))
	headers.Set("Call-ID", req.Headers.Get("Call-ID"))
	headers.Set("From", req.Headers.Get("To"))
	headers.Set("To", req.Headers.Get("From"))
	headers.Set("CSeq", fmt.Sprintf("10 %s", method))
	headers.Set("Max-Forwards", "70")
	headers.Set("User-Agent", serverAgent)
	headers.Set("Content-Length", "0")

	out := &sipmsg.Request{
		Method:  method,
		URI:     uri,
		Version: req.Version,
		Headers: headers,
	}
	if err := s.send(src, out.Encode()); err != nil {
		slog.Error("[SIP] Failed to send request", "method", string(method), "error", err)
	}
}

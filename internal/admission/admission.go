// Package admission implements the AdmissionController (spec §4.6): it
// validates an incoming handshake, applies the configured whitelist
// policy, and decides whether the sender becomes (or remains) the
// host's single active client session.
package admission

import (
	"net"
	"sync"

	"github.com/moonmic/moonmic/internal/config"
	"github.com/moonmic/moonmic/internal/wire"
)

// ClientSession identifies the host's current admitted client. Only one
// session is active at a time; admitting a new sender preempts any
// existing one (spec §4.6: "a later valid handshake from a different
// sender preempts the current session").
type ClientSession struct {
	Addr       *net.UDPAddr
	UniqueID   string
	DeviceName string
}

// Controller holds the admission policy and the single active session.
type Controller struct {
	mu      sync.Mutex
	policy  config.AdmissionPolicy
	enabled bool
	current *ClientSession

	resolution config.ResolutionRequester
}

// New constructs a Controller. If enableWhitelist is false, every
// syntactically valid handshake is admitted regardless of policy (spec
// §4.6: the whitelist switch gates whether AdmissionPolicy is
// consulted at all).
func New(policy config.AdmissionPolicy, enableWhitelist bool, resolution config.ResolutionRequester) *Controller {
	if resolution == nil {
		resolution = config.NoopResolutionRequester{}
	}
	return &Controller{policy: policy, enabled: enableWhitelist, resolution: resolution}
}

// Result reports the admission decision and whether the caller must
// reset decoder/resampler/ring state because the admitted sender
// changed (spec §4.6).
type Result struct {
	Admitted       bool
	SessionChanged bool
	Session        ClientSession
}

// Evaluate validates hs's protocol-level fields, applies the whitelist
// policy, and updates the current session on success. addr is the UDP
// source address the datagram actually arrived from.
func (c *Controller) Evaluate(hs wire.HandshakePacket, addr *net.UDPAddr) Result {
	if !validFields(hs) {
		return Result{}
	}

	if c.enabled && c.policy != nil && !c.policy.Admit(hs.PairStatus, hs.UniqueID, hs.DeviceName) {
		return Result{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	changed := c.current == nil || c.current.Addr.String() != addr.String() || c.current.UniqueID != hs.UniqueID
	session := ClientSession{Addr: addr, UniqueID: hs.UniqueID, DeviceName: hs.DeviceName}
	c.current = &session

	hasResolution := hs.DisplayWidth != 0 || hs.DisplayHeight != 0
	if hasResolution && (changed || hs.ForceUpdate()) {
		c.resolution.RequestResolution(hs.DisplayWidth, hs.DisplayHeight, hs.ForceUpdate())
	}

	return Result{Admitted: true, SessionChanged: changed, Session: session}
}

// validFields checks the protocol-level constraints spec §4.6 assigns
// to the AdmissionController itself, independent of whitelist policy:
// a supported version and non-empty identifying fields.
func validFields(hs wire.HandshakePacket) bool {
	if hs.Version != wire.ProtocolVersion {
		return false
	}
	if hs.UniqueID == "" || hs.DeviceName == "" {
		return false
	}
	if hs.PairStatus != 0 && hs.PairStatus != 1 {
		return false
	}
	return true
}

// Current returns the active session, or ok == false if none is
// admitted.
func (c *Controller) Current() (ClientSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ClientSession{}, false
	}
	return *c.current, true
}

// IsCurrent reports whether addr matches the currently admitted
// session's source address (spec §4.6: audio datagrams from any other
// sender are discarded once a session is active).
func (c *Controller) IsCurrent(addr *net.UDPAddr) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.Addr.String() == addr.String()
}

// Clear drops the current session, e.g. on host-side connection timeout.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}

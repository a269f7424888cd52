package config

// ErrorCallback reports a TransientFrame/SessionFault/FatalInit-class
// error to whatever surfaces it to a human (tray UI, log sink). message
// is human-readable; userdata is opaque and passed through unexamined.
type ErrorCallback func(message string, userdata any)

// StatusCallback reports a coarse connected/disconnected transition.
type StatusCallback func(connected bool, userdata any)

// ResolutionRequester is the "resolution_change_request" external
// collaborator: a narrow hook into the coexisting screen-streaming
// product. It is deliberately decoupled from the audio core; a no-op
// implementation still satisfies the audio contract.
type ResolutionRequester interface {
	RequestResolution(width, height uint16, force bool) (applied bool)
}

// NoopResolutionRequester implements ResolutionRequester by doing
// nothing and reporting the change as applied. It is the default used
// when no collaborator is wired in.
type NoopResolutionRequester struct{}

// RequestResolution always reports success without side effects.
func (NoopResolutionRequester) RequestResolution(uint16, uint16, bool) bool { return true }

// AdmissionPolicy is the "admission_policy" external collaborator:
// given a handshake's pairing bit, unique ID, and device name, decide
// whether to admit the sender. The whitelist
// enable/disable switch itself lives in Security.EnableWhitelist;
// AdmissionPolicy is consulted only when that switch is on.
type AdmissionPolicy interface {
	Admit(pairStatus uint8, uniqueID, deviceName string) bool
}

// PairStatusPolicy implements AdmissionPolicy using only the
// handshake's own pair_status bit ("require pair_status == 1").
// SyncWithSunshine-aware policies may
// replace this with one that also consults Sunshine's pairing state.
type PairStatusPolicy struct{}

// Admit admits iff pairStatus == 1.
func (PairStatusPolicy) Admit(pairStatus uint8, _, _ string) bool {
	return pairStatus == 1
}

// SunshinePairedPolicy gates admission on both the handshake's
// pair_status bit and the Sunshine collaborator's reported pairing
// state (config.Sunshine.Paired), per security.sync_with_sunshine.
type SunshinePairedPolicy struct {
	SunshinePaired func() bool
}

// Admit admits iff the handshake claims pairing and Sunshine agrees.
func (p SunshinePairedPolicy) Admit(pairStatus uint8, _, _ string) bool {
	if pairStatus != 1 {
		return false
	}
	if p.SunshinePaired == nil {
		return true
	}
	return p.SunshinePaired()
}

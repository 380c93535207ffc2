package race

// VoteState tracks a dual-consent handshake (play-again, restart) as one
// tagged value instead of two ad-hoc booleans, so the transition-on-both
// rule is auditable in isolation from transport.
type VoteState int

const (
	VoteNone VoteState = iota
	VoteLocalOnly
	VoteRemoteOnly
	VoteBoth
)

// WithLocal records the local participant's vote.
func (v VoteState) WithLocal() VoteState {
	switch v {
	case VoteNone, VoteLocalOnly:
		return VoteLocalOnly
	default:
		return VoteBoth
	}
}

// WithRemote records the remote participant's vote.
func (v VoteState) WithRemote() VoteState {
	switch v {
	case VoteNone, VoteRemoteOnly:
		return VoteRemoteOnly
	default:
		return VoteBoth
	}
}

// Both reports whether both parties have consented.
func (v VoteState) Both() bool {
	return v == VoteBoth
}

func (v VoteState) String() string {
	switch v {
	case VoteNone:
		return "none"
	case VoteLocalOnly:
		return "local"
	case VoteRemoteOnly:
		return "remote"
	case VoteBoth:
		return "both"
	default:
		return "unknown"
	}
}

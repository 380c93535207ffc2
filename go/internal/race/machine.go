package race

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typeracer/go/internal/models"
	"github.com/mcdev12/typeracer/go/internal/relay"
)

// State is a race phase as seen by one peer. Both peers run the same
// machine and converge through the events they exchange; there is no
// central coordinator.
type State string

const (
	StateIdle         State = "idle"
	StateJoined       State = "joined"
	StateReadyPending State = "ready_pending"
	StateCountdown    State = "countdown"
	StateRacing       State = "racing"
	StateFinished     State = "finished"
)

// CountdownTicks is the fixed local countdown once both peers are known
// ready. No network round-trip is involved: each client counts down on its
// own clock after observing both readiness signals.
const CountdownTicks = 3

// Completion is a recorded race finish.
type Completion struct {
	ParticipantID  string  `json:"participant_id"`
	SpeedWPM       int     `json:"speed_wpm"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Publisher is the outbound half of the relay boundary.
type Publisher interface {
	Publish(roomID string, eventType string, payload any) error
}

// Listener receives machine callbacks. Implementations must not call back
// into the machine from within a callback.
type Listener interface {
	StateChanged(from, to State)
	CountdownTick(remaining int)
	PeerProgress(participantID, input string)
	PeerJoined(participantID, displayName string)
	PeerLeft(participantID string)
	RaceFinished(winner Completion)
}

// NopListener is a Listener that ignores every callback.
type NopListener struct{}

func (NopListener) StateChanged(from, to State)                  {}
func (NopListener) CountdownTick(remaining int)                  {}
func (NopListener) PeerProgress(participantID, input string)     {}
func (NopListener) PeerJoined(participantID, displayName string) {}
func (NopListener) PeerLeft(participantID string)                {}
func (NopListener) RaceFinished(winner Completion)               {}

// Machine is the per-client race state machine. All transitions are local
// decisions triggered by local actions or received relay events; nothing
// blocks on a round-trip acknowledgment.
type Machine struct {
	mu sync.Mutex

	self   models.Participant
	roomID string

	state       State
	passage     string
	input       string
	localReady  bool
	remoteReady bool
	peerSeen    bool
	startedAt   time.Time

	// raceSeq counts races within this room session, 1-based. A rematch or
	// restart advances it so each race's win event is distinguishable.
	raceSeq int

	// Monotonically accumulating within one race session, bounded by room
	// membership.
	completions map[string]Completion
	winner      *Completion
	rematch     VoteState
	restart     VoteState

	// Running win tally across rematches; zeroed by the restart handshake.
	wins map[string]int

	countdownCancel chan struct{}

	clock    clockwork.Clock
	pub      Publisher
	listener Listener
}

// NewMachine creates a race machine for one participant in one room.
func NewMachine(self models.Participant, roomID string, pub Publisher, clock clockwork.Clock, listener Listener) *Machine {
	if listener == nil {
		listener = NopListener{}
	}
	return &Machine{
		self:        self,
		roomID:      roomID,
		state:       StateIdle,
		completions: make(map[string]Completion),
		wins:        make(map[string]int),
		clock:       clock,
		pub:         pub,
		listener:    listener,
	}
}

// Join enters the room with the passage to type and announces presence.
func (m *Machine) Join(passage string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return
	}
	m.passage = passage
	m.raceSeq = 1
	m.setStateLocked(StateJoined)
	m.emit(relay.EventJoin, relay.JoinPayload{
		ParticipantID: m.self.ID,
		DisplayName:   m.self.DisplayName,
	})
}

// Ready marks the local participant ready and announces it. If the peer's
// readiness was already observed, the countdown starts immediately: the
// dual local-ready rule is order independent.
func (m *Machine) Ready() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readyLocked()
}

func (m *Machine) readyLocked() {
	if m.state != StateJoined {
		return
	}
	m.localReady = true
	m.emit(relay.EventReady, relay.ReadyPayload{ParticipantID: m.self.ID})
	m.setStateLocked(StateReadyPending)
	m.maybeStartCountdownLocked()
}

// UpdateInput publishes a full snapshot of the current input and, when the
// input equals the target passage, completes the race locally.
func (m *Machine) UpdateInput(input string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRacing {
		return
	}
	m.input = input
	m.emit(relay.EventTextUpdate, relay.TextUpdatePayload{
		ParticipantID: m.self.ID,
		Input:         input,
	})

	if input == m.passage {
		m.finishLocalLocked()
	}
}

// VotePlayAgain casts the local play-again vote. The race only resets once
// the remote vote has also been observed.
func (m *Machine) VotePlayAgain() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateFinished {
		return
	}
	m.rematch = m.rematch.WithLocal()
	m.emit(relay.EventPlayAgain, relay.VotePayload{ParticipantID: m.self.ID})
	m.maybeRematchLocked()
}

// VoteRestart casts the local restart vote. Restart follows the same
// dual-consent shape as play-again but additionally zeroes the win tally
// once both votes are in.
func (m *Machine) VoteRestart() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRacing && m.state != StateFinished {
		return
	}
	m.restart = m.restart.WithLocal()
	m.emit(relay.EventRestart, relay.VotePayload{ParticipantID: m.self.ID})
	m.maybeRestartLocked()
}

// Leave exits the room. The leave event is emitted only if the peer's
// presence was ever observed, so a lone participant closing its session
// does not publish a spurious departure.
func (m *Machine) Leave() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateIdle {
		return
	}
	if m.peerSeen {
		m.emit(relay.EventLeave, relay.LeavePayload{ParticipantID: m.self.ID})
	}
	m.resetToIdleLocked()
}

// HandleEvent dispatches a received relay envelope. Events originated by
// the local participant are ignored; the relay fans out to every
// subscriber including the sender.
func (m *Machine) HandleEvent(env *relay.Envelope) {
	payload, err := relay.ParseEventPayload(env)
	if err != nil {
		log.Warn().Err(err).Str("event_type", env.EventType).Msg("dropping unparseable race event")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch p := payload.(type) {
	case relay.JoinPayload:
		if p.ParticipantID == m.self.ID {
			return
		}
		m.peerSeen = true
		// Transient notification only; a join never changes race state.
		m.listener.PeerJoined(p.ParticipantID, p.DisplayName)

	case relay.ReadyPayload:
		if p.ParticipantID == m.self.ID {
			return
		}
		m.peerSeen = true
		m.remoteReady = true
		m.maybeStartCountdownLocked()

	case relay.TextUpdatePayload:
		if p.ParticipantID == m.self.ID {
			return
		}
		// Full snapshot; a stale one only dims the display briefly.
		m.listener.PeerProgress(p.ParticipantID, p.Input)

	case relay.WinPayload:
		if p.ParticipantID == m.self.ID {
			return
		}
		m.handleRemoteWinLocked(p)

	case relay.VotePayload:
		if p.ParticipantID == m.self.ID {
			return
		}
		switch env.EventType {
		case relay.EventPlayAgain:
			m.rematch = m.rematch.WithRemote()
			m.maybeRematchLocked()
		case relay.EventRestart:
			m.restart = m.restart.WithRemote()
			m.maybeRestartLocked()
		}

	case relay.LeavePayload:
		if p.ParticipantID == m.self.ID {
			return
		}
		if m.state == StateIdle {
			return
		}
		// Terminal from any non-idle state: no further race events will
		// arrive from this peer.
		m.listener.PeerLeft(p.ParticipantID)
		m.resetToIdleLocked()
	}
}

// SetPassage swaps the target passage for the next race cycle. Ignored
// mid-race.
func (m *Machine) SetPassage(passage string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateCountdown || m.state == StateRacing {
		return
	}
	m.passage = passage
}

// State returns the current race phase.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Winner returns the authoritative winner as observed by this client, nil
// while the race is undecided.
func (m *Machine) Winner() *Completion {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.winner == nil {
		return nil
	}
	w := *m.winner
	return &w
}

// Scores returns a copy of the running win tally.
func (m *Machine) Scores() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.wins))
	for id, n := range m.wins {
		out[id] = n
	}
	return out
}

// maybeStartCountdownLocked applies the dual local-ready rule: once this
// client has observed both its own readiness and the peer's, it counts
// down on its own clock. Each peer reaches Countdown independently, so no
// clock authority is needed.
func (m *Machine) maybeStartCountdownLocked() {
	if m.state != StateReadyPending || !m.localReady || !m.remoteReady {
		return
	}
	m.setStateLocked(StateCountdown)

	cancel := make(chan struct{})
	m.countdownCancel = cancel
	go m.runCountdown(cancel)
}

func (m *Machine) runCountdown(cancel chan struct{}) {
	for remaining := CountdownTicks; remaining > 0; remaining-- {
		m.listener.CountdownTick(remaining)
		timer := m.clock.NewTimer(time.Second)
		select {
		case <-timer.Chan():
		case <-cancel:
			stopAndDrainTimer(timer)
			return
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateCountdown {
		return
	}
	m.countdownCancel = nil
	m.startedAt = m.clock.Now()
	m.setStateLocked(StateRacing)
}

func (m *Machine) finishLocalLocked() {
	elapsed := m.clock.Now().Sub(m.startedAt)
	completion := Completion{
		ParticipantID:  m.self.ID,
		SpeedWPM:       SpeedWPM(m.input, elapsed),
		ElapsedSeconds: elapsed.Seconds(),
	}
	m.completions[m.self.ID] = completion

	// First observed completion wins on this client; a peer win that
	// arrived earlier stands.
	if m.winner == nil {
		m.winner = &completion
		m.wins[m.self.ID]++
	}

	m.emit(relay.EventWin, relay.WinPayload{
		ParticipantID:  completion.ParticipantID,
		RaceSeq:        m.raceSeq,
		SpeedWPM:       completion.SpeedWPM,
		ElapsedSeconds: completion.ElapsedSeconds,
	})
	m.setStateLocked(StateFinished)
	m.listener.RaceFinished(*m.winner)
}

func (m *Machine) handleRemoteWinLocked(p relay.WinPayload) {
	completion := Completion{
		ParticipantID:  p.ParticipantID,
		SpeedWPM:       p.SpeedWPM,
		ElapsedSeconds: p.ElapsedSeconds,
	}
	m.completions[p.ParticipantID] = completion

	if m.winner == nil {
		m.winner = &completion
		m.wins[p.ParticipantID]++
	}

	if m.state == StateRacing || m.state == StateCountdown {
		m.cancelCountdownLocked()
		m.setStateLocked(StateFinished)
		m.listener.RaceFinished(*m.winner)
	}
}

func (m *Machine) maybeRematchLocked() {
	if !m.rematch.Both() {
		return
	}
	m.resetForNewRaceLocked()
}

func (m *Machine) maybeRestartLocked() {
	if !m.restart.Both() {
		return
	}
	// Restart is a full stat reset, not just a new race.
	m.wins = make(map[string]int)
	m.resetForNewRaceLocked()
}

// resetForNewRaceLocked clears the race session and re-arms readiness.
// Mutual consent was already established by the vote handshake, so the
// machine immediately re-emits on-ready and moves back through
// Joined/ReadyPending; the countdown then waits on the peer's fresh ready
// signal as usual.
func (m *Machine) resetForNewRaceLocked() {
	m.cancelCountdownLocked()
	m.clearSessionLocked()
	m.raceSeq++
	m.setStateLocked(StateJoined)
	m.readyLocked()
}

func (m *Machine) resetToIdleLocked() {
	m.cancelCountdownLocked()
	m.clearSessionLocked()
	m.peerSeen = false
	m.raceSeq = 0
	m.wins = make(map[string]int)
	m.setStateLocked(StateIdle)
}

func (m *Machine) clearSessionLocked() {
	m.localReady = false
	m.remoteReady = false
	m.input = ""
	m.startedAt = time.Time{}
	m.completions = make(map[string]Completion)
	m.winner = nil
	m.rematch = VoteNone
	m.restart = VoteNone
}

func (m *Machine) cancelCountdownLocked() {
	if m.countdownCancel != nil {
		close(m.countdownCancel)
		m.countdownCancel = nil
	}
}

func (m *Machine) setStateLocked(next State) {
	if m.state == next {
		return
	}
	prev := m.state
	m.state = next
	log.Debug().
		Str("room_id", m.roomID).
		Str("participant_id", m.self.ID).
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("race state transition")
	m.listener.StateChanged(prev, next)
}

// emit publishes fire-and-forget: a failed publish is logged and local
// state advances anyway, because the relay offers no acknowledgment and
// every phase re-evaluates on the next received event.
func (m *Machine) emit(eventType string, payload any) {
	if err := m.pub.Publish(m.roomID, eventType, payload); err != nil {
		log.Error().
			Err(err).
			Str("room_id", m.roomID).
			Str("event_type", eventType).
			Msg("relay publish failed")
	}
}

func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

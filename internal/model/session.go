package model

import "time"

// Phase is the session's current stage in the fixed debate lifecycle.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseVeto     Phase = "veto"
	PhaseCoinToss Phase = "coin_toss"
	PhaseDebating Phase = "debating"
	PhaseFinished Phase = "finished"
)

// Role identifies one side of the debate.
type Role string

const (
	RolePro Role = "pro"
	RoleCon Role = "con"
)

// Opposite returns the other debate side.
func (r Role) Opposite() Role {
	if r == RolePro {
		return RoleCon
	}
	return RolePro
}

// Valid reports whether r is one of the two debate roles.
func (r Role) Valid() bool {
	return r == RolePro || r == RoleCon
}

// SessionMode distinguishes how the two participants were matched.
type SessionMode string

const (
	ModeInvite SessionMode = "invite"
	ModeRandom SessionMode = "random"
)

// EndReason records why a session reached the finished phase.
type EndReason string

const (
	EndReasonEnded         EndReason = "ended"
	EndReasonTotalTime     EndReason = "total_time"
	EndReasonMaxTurns      EndReason = "max_turns"
	EndReasonModerationCap EndReason = "moderation_cap"
)

// Participant is one human debater bound to a session role.
type Participant struct {
	Name        string    `json:"name" bson:"name"`
	Role        Role      `json:"role" bson:"role"`
	ConnID      string    `json:"-" bson:"-"`
	Connected   bool      `json:"connected" bson:"connected"`
	JoinedAt    time.Time `json:"joinedAt" bson:"joinedAt"`
	VetoedTopic string    `json:"vetoedTopic,omitempty" bson:"vetoedTopic,omitempty"`
	TimeSpent   int       `json:"timeSpent" bson:"timeSpent"`
	Warnings    int       `json:"warnings" bson:"warnings"`
}

// Turn is one accepted argument. Immutable once appended.
type Turn struct {
	Index     int       `json:"turn" bson:"turn"`
	Role      Role      `json:"role" bson:"role"`
	Speaker   string    `json:"speaker" bson:"speaker"`
	Content   string    `json:"content" bson:"content"`
	TimeTaken int       `json:"timeTaken" bson:"timeTaken"`
	CreatedAt time.Time `json:"timestamp" bson:"timestamp"`
}

// Limits are the per-session tuning values, copied from configuration at
// creation so a session keeps the rules it started with.
type Limits struct {
	TurnSeconds       int `json:"turnSeconds" bson:"turnSeconds"`
	TotalSeconds      int `json:"totalSeconds" bson:"totalSeconds"`
	MaxTurns          int `json:"maxTurns" bson:"maxTurns"`
	TopicRefreshLimit int `json:"topicRefreshLimit" bson:"topicRefreshLimit"`
	MaxWarnings       int `json:"maxWarnings" bson:"maxWarnings"`
}

// Session is the aggregate state for one debate. All mutation is serialized
// through the owning engine's event loop; nothing else writes these fields.
type Session struct {
	ID         string
	InviteCode string
	Mode       SessionMode
	Phase      Phase
	CreatedAt  time.Time

	Participants map[Role]*Participant

	TopicOptions       []string
	TopicRefreshes     int
	ChosenTopic        string
	CustomTopicAllowed bool
	PendingCustomTopic string
	CustomConfirms     map[Role]bool

	Transcript   []Turn
	CurrentTurn  Role
	TotalElapsed int
	MissedTurns  map[Role]int

	CoinToss     map[Role]string
	CoinTossDone bool

	EndReason    EndReason
	FinishedAt   *time.Time
	Result       *JudgingResult
	JudgingError string

	Limits Limits
}

// NewSession allocates a session in the lobby phase with the first
// participant bound to the pro role.
func NewSession(id, inviteCode string, mode SessionMode, hostName string, limits Limits) *Session {
	s := &Session{
		ID:             id,
		InviteCode:     inviteCode,
		Mode:           mode,
		Phase:          PhaseLobby,
		CreatedAt:      time.Now().UTC(),
		Participants:   make(map[Role]*Participant, 2),
		CustomConfirms: map[Role]bool{},
		MissedTurns:    map[Role]int{},
		CurrentTurn:    RolePro,
		Limits:         limits,
	}
	s.CustomTopicAllowed = mode == ModeInvite
	s.Participants[RolePro] = &Participant{
		Name:     hostName,
		Role:     RolePro,
		JoinedAt: time.Now().UTC(),
	}
	return s
}

// NextRole returns the role that speaks after the current one.
func (s *Session) NextRole() Role {
	return s.CurrentTurn.Opposite()
}

// RecordTurn appends an accepted argument and flips the active role.
func (s *Session) RecordTurn(role Role, content string, timeTaken int) Turn {
	turn := Turn{
		Index:     len(s.Transcript),
		Role:      role,
		Speaker:   s.Participants[role].Name,
		Content:   content,
		TimeTaken: timeTaken,
		CreatedAt: time.Now().UTC(),
	}
	s.Transcript = append(s.Transcript, turn)
	s.CurrentTurn = s.NextRole()
	return turn
}

// RemainingTopics returns the topics no participant has vetoed, in the
// original candidate order.
func (s *Session) RemainingTopics() []string {
	vetoed := make(map[string]bool, 2)
	for _, p := range s.Participants {
		if p.VetoedTopic != "" {
			vetoed[p.VetoedTopic] = true
		}
	}
	remaining := make([]string, 0, len(s.TopicOptions))
	for _, topic := range s.TopicOptions {
		if !vetoed[topic] {
			remaining = append(remaining, topic)
		}
	}
	return remaining
}

// VetoesExhausted reports whether every bound participant has used their veto.
func (s *Session) VetoesExhausted() bool {
	if len(s.Participants) < 2 {
		return false
	}
	for _, p := range s.Participants {
		if p.VetoedTopic == "" {
			return false
		}
	}
	return true
}

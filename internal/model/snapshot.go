package model

import "time"

// ParticipantSnapshot is the wire view of a participant.
type ParticipantSnapshot struct {
	Name        string `json:"name" bson:"name"`
	Connected   bool   `json:"connected" bson:"connected"`
	TimeSpent   int    `json:"timeSpent" bson:"timeSpent"`
	VetoedTopic string `json:"vetoedTopic,omitempty" bson:"vetoedTopic,omitempty"`
	Warnings    int    `json:"warnings" bson:"warnings"`
}

// SessionSnapshot is the full, immutable view of a session broadcast after
// every state mutation and handed to the judging pipeline. It carries
// everything needed to reconstruct the session for clients, scoring and
// export without touching live state.
type SessionSnapshot struct {
	SessionID          string                       `json:"sessionId" bson:"_id"`
	InviteCode         string                       `json:"inviteCode" bson:"inviteCode"`
	Mode               SessionMode                  `json:"mode" bson:"mode"`
	Phase              Phase                        `json:"status" bson:"status"`
	TopicOptions       []string                     `json:"topicOptions" bson:"topicOptions"`
	TopicRefreshes     int                          `json:"topicRefreshes" bson:"topicRefreshes"`
	TopicRefreshLimit  int                          `json:"topicRefreshLimit" bson:"topicRefreshLimit"`
	ChosenTopic        string                       `json:"chosenTopic,omitempty" bson:"chosenTopic,omitempty"`
	PendingCustomTopic string                       `json:"pendingCustomTopic,omitempty" bson:"pendingCustomTopic,omitempty"`
	CurrentTurn        string                       `json:"currentTurn,omitempty" bson:"currentTurn,omitempty"`
	Participants       map[Role]ParticipantSnapshot `json:"participants" bson:"participants"`
	Transcript         []Turn                       `json:"transcript" bson:"transcript"`
	CoinToss           map[Role]string              `json:"coinToss,omitempty" bson:"coinToss,omitempty"`
	CoinTossDone       bool                         `json:"coinTossCompleted" bson:"coinTossCompleted"`
	TotalElapsed       int                          `json:"totalElapsed" bson:"totalElapsed"`
	MissedTurns        map[Role]int                 `json:"missedTurns,omitempty" bson:"missedTurns,omitempty"`
	EndReason          EndReason                    `json:"endReason,omitempty" bson:"endReason,omitempty"`
	FinishedAt         *time.Time                   `json:"finishedAt,omitempty" bson:"finishedAt,omitempty"`
	Result             *JudgingResult               `json:"result,omitempty" bson:"result,omitempty"`
	JudgingError       string                       `json:"judgingError,omitempty" bson:"judgingError,omitempty"`
	MaxWarnings        int                          `json:"maxWarnings" bson:"maxWarnings"`
	MaxTurns           int                          `json:"maxTurns" bson:"maxTurns"`
	TotalSeconds       int                          `json:"totalSeconds" bson:"totalSeconds"`
	TurnSeconds        int                          `json:"turnSeconds" bson:"turnSeconds"`
	CreatedAt          time.Time                    `json:"createdAt" bson:"createdAt"`
}

// Snapshot builds an independent copy of the session's observable state.
func (s *Session) Snapshot() *SessionSnapshot {
	snap := &SessionSnapshot{
		SessionID:          s.ID,
		InviteCode:         s.InviteCode,
		Mode:               s.Mode,
		Phase:              s.Phase,
		TopicOptions:       append([]string(nil), s.TopicOptions...),
		TopicRefreshes:     s.TopicRefreshes,
		TopicRefreshLimit:  s.Limits.TopicRefreshLimit,
		ChosenTopic:        s.ChosenTopic,
		PendingCustomTopic: s.PendingCustomTopic,
		Participants:       make(map[Role]ParticipantSnapshot, len(s.Participants)),
		Transcript:         append([]Turn(nil), s.Transcript...),
		CoinTossDone:       s.CoinTossDone,
		TotalElapsed:       s.TotalElapsed,
		EndReason:          s.EndReason,
		JudgingError:       s.JudgingError,
		MaxWarnings:        s.Limits.MaxWarnings,
		MaxTurns:           s.Limits.MaxTurns,
		TotalSeconds:       s.Limits.TotalSeconds,
		TurnSeconds:        s.Limits.TurnSeconds,
		CreatedAt:          s.CreatedAt,
	}
	if s.Phase == PhaseDebating {
		snap.CurrentTurn = string(s.CurrentTurn)
	}
	for role, p := range s.Participants {
		snap.Participants[role] = ParticipantSnapshot{
			Name:        p.Name,
			Connected:   p.Connected,
			TimeSpent:   p.TimeSpent,
			VetoedTopic: p.VetoedTopic,
			Warnings:    p.Warnings,
		}
	}
	if s.CoinToss != nil {
		snap.CoinToss = make(map[Role]string, len(s.CoinToss))
		for role, name := range s.CoinToss {
			snap.CoinToss[role] = name
		}
	}
	if len(s.MissedTurns) > 0 {
		snap.MissedTurns = make(map[Role]int, len(s.MissedTurns))
		for role, n := range s.MissedTurns {
			snap.MissedTurns[role] = n
		}
	}
	if s.FinishedAt != nil {
		at := *s.FinishedAt
		snap.FinishedAt = &at
	}
	if s.Result != nil {
		res := *s.Result
		snap.Result = &res
	}
	return snap
}

package match

import (
	"github.com/toronlabs/toron_backend/internal/clock"
)

// TimerConfig holds the speaking-clock budgets. All boundaries are
// strict: a player overflows only once usage exceeds the limit, never
// when it lands exactly on it.
type TimerConfig struct {
	RoundLimitMs    int64
	TotalLimitMs    int64
	OvertimeLimitMs int64
	PenaltyStep     int
	PenaltyMax      int
}

// DefaultTimerConfig returns the standard competition budgets: two
// minutes per round, five minutes total, 30 second overtime windows,
// three penalty points per overflow, forfeit at 18.
func DefaultTimerConfig() TimerConfig {
	return TimerConfig{
		RoundLimitMs:    120_000,
		TotalLimitMs:    300_000,
		OvertimeLimitMs: 30_000,
		PenaltyStep:     3,
		PenaltyMax:      18,
	}
}

// PlayerTimer tracks one player's clock and penalty state
type PlayerTimer struct {
	TotalTimeUsedMs     int64
	RoundTimeUsedMs     int64
	PenaltyPoints       int
	PenaltyCount        int
	IsOvertime          bool
	OvertimeStartedAtMs int64
}

// OverflowKind classifies which budget was exceeded
type OverflowKind string

const (
	OverflowRound OverflowKind = "round"
	OverflowTotal OverflowKind = "total"
)

// Overflow reports a budget violation detected by a tick
type Overflow struct {
	UserID string
	Kind   OverflowKind
}

// TimerUpdate is the broadcast shape of the speaking clock
type TimerUpdate struct {
	CurrentPlayerID       string `json:"currentPlayerId"`
	RoundTimeRemainingSec int64  `json:"roundTimeRemainingSec"`
	TotalTimeRemainingSec int64  `json:"totalTimeRemainingSec"`
	IsOvertime            bool   `json:"isOvertime"`
	OvertimeRemainingSec  int64  `json:"overtimeRemainingSec"`
	RoundLimitSec         int64  `json:"roundLimitSec"`
	TotalLimitSec         int64  `json:"totalLimitSec"`
}

// TimerEngine drives per-player speaking clocks. It is not safe for
// concurrent use; the owning Match serializes access under its lock.
type TimerEngine struct {
	cfg     TimerConfig
	clock   clock.Clock
	players map[string]*PlayerTimer

	currentUserID   string
	turnStartedAtMs int64

	// Last whole-second values broadcast, used to suppress ticks that
	// would repeat the same display state.
	lastRoundSec    int64
	lastTotalSec    int64
	lastOvertimeSec int64
	hasLast         bool
}

// NewTimerEngine creates an engine with no registered players
func NewTimerEngine(cfg TimerConfig, c clock.Clock) *TimerEngine {
	return &TimerEngine{
		cfg:     cfg,
		clock:   c,
		players: make(map[string]*PlayerTimer),
	}
}

// Register adds a player clock starting at zero usage
func (e *TimerEngine) Register(userID string) {
	e.players[userID] = &PlayerTimer{}
}

// Player returns the timer state for a player, or nil if unknown
func (e *TimerEngine) Player(userID string) *PlayerTimer {
	return e.players[userID]
}

// CurrentUserID returns the player whose clock is running, or ""
func (e *TimerEngine) CurrentUserID() string {
	return e.currentUserID
}

// StartTurn hands the floor to userID. The round budget and overtime
// state reset; total usage carries over.
func (e *TimerEngine) StartTurn(userID string) {
	p, ok := e.players[userID]
	if !ok {
		return
	}
	e.currentUserID = userID
	e.turnStartedAtMs = e.clock.NowMs()
	e.hasLast = false
	p.RoundTimeUsedMs = 0
	p.IsOvertime = false
	p.OvertimeStartedAtMs = 0
}

// AbsorbTurn folds the running turn into the current speaker's total
// and stops their clock. No-op when nobody holds the floor.
func (e *TimerEngine) AbsorbTurn() {
	p, ok := e.players[e.currentUserID]
	if !ok || e.turnStartedAtMs == 0 {
		e.currentUserID = ""
		e.turnStartedAtMs = 0
		return
	}
	elapsed := e.clock.NowMs() - e.turnStartedAtMs
	p.TotalTimeUsedMs += elapsed
	p.RoundTimeUsedMs = 0
	p.IsOvertime = false
	p.OvertimeStartedAtMs = 0
	e.currentUserID = ""
	e.turnStartedAtMs = 0
}

// Tick recomputes the running clock. It returns a TimerUpdate when the
// whole-second display changed since the last tick, and an Overflow
// when a budget was exceeded. At most one overflow is reported per
// tick; round overflow wins over total when both trip together.
func (e *TimerEngine) Tick() (*TimerUpdate, *Overflow) {
	p, ok := e.players[e.currentUserID]
	if !ok || e.turnStartedAtMs == 0 {
		return nil, nil
	}

	now := e.clock.NowMs()
	roundUsed := now - e.turnStartedAtMs
	totalUsed := p.TotalTimeUsedMs + roundUsed
	p.RoundTimeUsedMs = roundUsed

	var overflow *Overflow
	if !p.IsOvertime {
		if roundUsed > e.cfg.RoundLimitMs {
			overflow = &Overflow{UserID: e.currentUserID, Kind: OverflowRound}
		} else if totalUsed > e.cfg.TotalLimitMs {
			overflow = &Overflow{UserID: e.currentUserID, Kind: OverflowTotal}
		}
	} else if now-p.OvertimeStartedAtMs > e.cfg.OvertimeLimitMs {
		overflow = &Overflow{UserID: e.currentUserID, Kind: OverflowRound}
	}

	update := e.buildUpdate(p, now, roundUsed, totalUsed)
	if e.hasLast &&
		update.RoundTimeRemainingSec == e.lastRoundSec &&
		update.TotalTimeRemainingSec == e.lastTotalSec &&
		update.OvertimeRemainingSec == e.lastOvertimeSec {
		return nil, overflow
	}
	e.hasLast = true
	e.lastRoundSec = update.RoundTimeRemainingSec
	e.lastTotalSec = update.TotalTimeRemainingSec
	e.lastOvertimeSec = update.OvertimeRemainingSec

	return update, overflow
}

// CheckOverflow revalidates a client-reported overflow claim against
// the engine's own clock. It returns the overflow only when the claim
// actually holds right now.
func (e *TimerEngine) CheckOverflow(kind OverflowKind) *Overflow {
	p, ok := e.players[e.currentUserID]
	if !ok || e.turnStartedAtMs == 0 {
		return nil
	}

	now := e.clock.NowMs()
	roundUsed := now - e.turnStartedAtMs
	totalUsed := p.TotalTimeUsedMs + roundUsed

	if p.IsOvertime {
		if now-p.OvertimeStartedAtMs > e.cfg.OvertimeLimitMs {
			return &Overflow{UserID: e.currentUserID, Kind: OverflowRound}
		}
		return nil
	}
	switch kind {
	case OverflowRound:
		if roundUsed > e.cfg.RoundLimitMs {
			return &Overflow{UserID: e.currentUserID, Kind: OverflowRound}
		}
	case OverflowTotal:
		if totalUsed > e.cfg.TotalLimitMs {
			return &Overflow{UserID: e.currentUserID, Kind: OverflowTotal}
		}
	}
	return nil
}

// ApplyOverflow charges the penalty for an overflow and opens a fresh
// overtime window. It returns the new penalty state and whether the
// player crossed the forfeit threshold.
func (e *TimerEngine) ApplyOverflow(userID string) (points, count int, forfeited bool) {
	p, ok := e.players[userID]
	if !ok {
		return 0, 0, false
	}

	p.PenaltyPoints += e.cfg.PenaltyStep
	if p.PenaltyPoints > e.cfg.PenaltyMax {
		p.PenaltyPoints = e.cfg.PenaltyMax
	}
	p.PenaltyCount++
	p.IsOvertime = true
	p.OvertimeStartedAtMs = e.clock.NowMs()
	e.hasLast = false

	return p.PenaltyPoints, p.PenaltyCount, p.PenaltyPoints >= e.cfg.PenaltyMax
}

// AdjustPenalty applies a referee point change, positive to punish and
// negative to pardon. Points clamp to [0, max]; crossing the maximum
// forfeits.
func (e *TimerEngine) AdjustPenalty(userID string, delta int) (points int, forfeited bool) {
	p, ok := e.players[userID]
	if !ok {
		return 0, false
	}

	p.PenaltyPoints += delta
	if p.PenaltyPoints < 0 {
		p.PenaltyPoints = 0
	}
	if p.PenaltyPoints > e.cfg.PenaltyMax {
		p.PenaltyPoints = e.cfg.PenaltyMax
	}

	return p.PenaltyPoints, delta > 0 && p.PenaltyPoints >= e.cfg.PenaltyMax
}

// AdjustTotal shifts a player's consumed total time. Negative deltas
// hand time back; usage never drops below zero.
func (e *TimerEngine) AdjustTotal(userID string, deltaMs int64) int64 {
	p, ok := e.players[userID]
	if !ok {
		return 0
	}
	p.TotalTimeUsedMs += deltaMs
	if p.TotalTimeUsedMs < 0 {
		p.TotalTimeUsedMs = 0
	}
	e.hasLast = false
	return p.TotalTimeUsedMs
}

// Snapshot returns the live clock view, or nil when no clock runs
func (e *TimerEngine) Snapshot() *TimerUpdate {
	p, ok := e.players[e.currentUserID]
	if !ok || e.turnStartedAtMs == 0 {
		return nil
	}
	now := e.clock.NowMs()
	roundUsed := now - e.turnStartedAtMs
	return e.buildUpdate(p, now, roundUsed, p.TotalTimeUsedMs+roundUsed)
}

func (e *TimerEngine) buildUpdate(p *PlayerTimer, now, roundUsed, totalUsed int64) *TimerUpdate {
	update := &TimerUpdate{
		CurrentPlayerID:       e.currentUserID,
		RoundTimeRemainingSec: remainingSec(e.cfg.RoundLimitMs, roundUsed),
		TotalTimeRemainingSec: remainingSec(e.cfg.TotalLimitMs, totalUsed),
		IsOvertime:            p.IsOvertime,
		RoundLimitSec:         e.cfg.RoundLimitMs / 1000,
		TotalLimitSec:         e.cfg.TotalLimitMs / 1000,
	}
	if p.IsOvertime {
		update.OvertimeRemainingSec = remainingSec(e.cfg.OvertimeLimitMs, now-p.OvertimeStartedAtMs)
	}
	return update
}

// remainingSec converts remaining milliseconds to whole seconds,
// rounding up so the display flips exactly on second boundaries.
func remainingSec(limitMs, usedMs int64) int64 {
	remaining := limitMs - usedMs
	if remaining <= 0 {
		return 0
	}
	return (remaining + 999) / 1000
}

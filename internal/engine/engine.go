package engine

import (
	"sync/atomic"
	"time"

	"github.com/barbel-engine/barbel/internal/board"
)

// SearchInfo contains information about the current search, suitable for
// forwarding directly to a UCI "info" line.
type SearchInfo struct {
	Depth    int
	Score    int
	Nodes    uint64
	Time     time.Duration
	PV       []board.Move
	HashFull int // Permille of hash table used
}

// SearchLimits specifies constraints on a single search.
type SearchLimits struct {
	Depth    int           // Maximum depth (0 = no limit)
	Nodes    uint64        // Maximum nodes (0 = no limit)
	MoveTime time.Duration // Time for this move (0 = no limit)
	Infinite bool          // Search until stopped
}

// Difficulty represents the engine's playing strength, used outside of the
// UCI protocol where a caller wants a quick move without configuring time
// controls itself.
type Difficulty int

const (
	Easy   Difficulty = iota // ~3 ply, 500ms
	Medium                   // ~7 ply, 1s
	Hard                     // time-limited, full strength
)

// DifficultySettings maps difficulty to search limits.
var DifficultySettings = map[Difficulty]SearchLimits{
	Easy:   {Depth: 3, MoveTime: 500 * time.Millisecond},
	Medium: {Depth: 7, MoveTime: 1 * time.Second},
	Hard:   {Depth: 40, MoveTime: 3 * time.Second},
}

// watchdogInterval is how often the supervisor checks whether the running
// search has exceeded its time or node budget.
const watchdogInterval = 2 * time.Millisecond

// Engine drives a single Searcher through iterative deepening, under a
// supervisor goroutine that owns time management and a watchdog that polls
// for the deadline so the search loop itself never has to check a clock.
type Engine struct {
	tt       *TranspositionTable
	searcher *Searcher
	stopFlag atomic.Bool

	difficulty Difficulty

	// rootPosHashes holds the Zobrist hashes of positions played before the
	// current search root, for repetition detection across the game.
	rootPosHashes []uint64

	// OnInfo is called after every completed iterative-deepening depth.
	OnInfo func(SearchInfo)
}

// NewEngine creates a new chess engine with the given transposition table
// size in MB.
func NewEngine(ttSizeMB int) *Engine {
	tt := NewTranspositionTable(ttSizeMB)
	return &Engine{
		tt:         tt,
		searcher:   NewSearcher(tt),
		difficulty: Medium,
	}
}

// SetDifficulty sets the engine difficulty used by Search.
func (e *Engine) SetDifficulty(d Difficulty) {
	e.difficulty = d
}

// SetPositionHistory sets the position history for repetition detection.
// Call this before Search/SearchWithLimits/SearchWithUCILimits with hashes
// from the game's move history up to (but not including) the root.
func (e *Engine) SetPositionHistory(hashes []uint64) {
	e.rootPosHashes = make([]uint64, len(hashes))
	copy(e.rootPosHashes, hashes)
	e.searcher.SetRootHistory(hashes)
}

// Search finds the best move for the given position using the engine's
// configured difficulty.
func (e *Engine) Search(pos *board.Position) board.Move {
	limits := DifficultySettings[e.difficulty]
	return e.SearchWithLimits(pos, limits)
}

// SearchWithLimits finds the best move under a fixed depth/node/time budget.
func (e *Engine) SearchWithLimits(pos *board.Position, limits SearchLimits) board.Move {
	var deadline time.Time
	startTime := time.Now()
	if limits.MoveTime > 0 {
		deadline = startTime.Add(limits.MoveTime)
	}

	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}

	return e.iterate(pos, maxDepth, limits.Nodes, startTime, deadline, nil)
}

// SearchWithUCILimits finds the best move using UCI time controls
// (wtime/btime/winc/binc/movestogo), budgeted by a TimeManager. Its
// optimum/maximum times are fixed at the start; iterate stops early once the
// optimum has passed and the best move has held for four iterations.
func (e *Engine) SearchWithUCILimits(pos *board.Position, limits UCILimits, ply int) board.Move {
	tm := NewTimeManager()
	tm.Init(limits, pos.SideToMove, ply)

	startTime := time.Now()
	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}

	return e.iterate(pos, maxDepth, limits.Nodes, startTime, time.Time{}, tm)
}

// iterate runs iterative deepening, reporting SearchInfo after each
// completed depth, and stopping when the watchdog goroutine signals the
// stop flag. A nil TimeManager means plain deadline/depth/node limits; a
// non-nil one drives move-stability-aware early stopping for UCI play.
func (e *Engine) iterate(pos *board.Position, maxDepth int, nodeLimit uint64, startTime time.Time, deadline time.Time, tm *TimeManager) board.Move {
	e.stopFlag.Store(false)
	e.searcher.Reset()

	stop := make(chan struct{})
	go e.watchdog(startTime, deadline, tm, nodeLimit, stop)
	defer close(stop)

	var bestMove board.Move
	var bestScore int
	var bestDepth int
	var lastBestMove board.Move
	var stabilityCount int

	for depth := 1; depth <= maxDepth; depth++ {
		if e.stopFlag.Load() {
			break
		}

		// Generation is bumped at the start of each iteration, not once per
		// whole search, so the TT's aging-based replacement can tell apart
		// entries from this iteration and entries left over from several
		// iterations back.
		e.tt.NewSearch()

		move, score := e.searcher.Search(pos, depth)

		if e.stopFlag.Load() && depth > 1 {
			// Partial iteration: the previous depth's result is still the
			// most trustworthy complete one.
			break
		}

		if move != board.NoMove {
			if move == lastBestMove {
				stabilityCount++
			} else {
				stabilityCount = 0
			}
			lastBestMove = move

			bestMove = move
			bestScore = score
			bestDepth = depth

			if e.OnInfo != nil {
				e.OnInfo(SearchInfo{
					Depth:    bestDepth,
					Score:    bestScore,
					Nodes:    e.searcher.Nodes(),
					Time:     time.Since(startTime),
					PV:       e.searcher.GetPV(),
					HashFull: e.tt.HashFull(),
				})
			}
		}

		if bestScore > MateScore-100 || bestScore < -MateScore+100 {
			break
		}

		if tm != nil && tm.PastOptimum() && stabilityCount >= 4 {
			break
		}
	}

	e.stopFlag.Store(true)
	return bestMove
}

// watchdog polls the clock and node count at a fixed interval and sets the
// stop flag once any configured limit is exceeded, so the search loop
// itself never needs to call time.Now().
func (e *Engine) watchdog(startTime time.Time, deadline time.Time, tm *TimeManager, nodeLimit uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			expired := (!deadline.IsZero() && time.Now().After(deadline)) ||
				(tm != nil && tm.ShouldStop()) ||
				(nodeLimit > 0 && e.searcher.Nodes() >= nodeLimit)

			// Keep re-asserting rather than exiting once expired: Searcher.Reset
			// clears its own stop flag at the start of every depth, and if this
			// goroutine had already exited there would be nothing left to set
			// it again for the remainder of the search.
			if expired {
				e.searcher.Stop()
				e.stopFlag.Store(true)
			}
		}
	}
}

// Stop sets the engine's and the searcher's stop flags directly; the search
// unwinds at the next node that polls its flag.
func (e *Engine) Stop() {
	e.stopFlag.Store(true)
	e.searcher.Stop()
}

// Clear clears the transposition table and move-ordering caches, as UCI's
// "ucinewgame" requires.
func (e *Engine) Clear() {
	e.tt.Clear()
	e.searcher.pawnTable.Clear()
	e.searcher.orderer.Clear()
	e.searcher.corrHist.Clear()
}

// Perft performs a perft test (for debugging move generation).
func (e *Engine) Perft(pos *board.Position, depth int) uint64 {
	if depth == 0 {
		return 1
	}

	moves := pos.GenerateLegalMoves()
	if depth == 1 {
		return uint64(moves.Len())
	}

	var nodes uint64
	for i := 0; i < moves.Len(); i++ {
		move := moves.Get(i)
		undo := pos.MakeMove(move)
		nodes += e.Perft(pos, depth-1)
		pos.UnmakeMove(move, undo)
	}

	return nodes
}

// Evaluate returns the static evaluation of a position.
func (e *Engine) Evaluate(pos *board.Position) int {
	return Evaluate(pos)
}

// ScoreToString converts a score to a human-readable string.
func ScoreToString(score int) string {
	if score > MateScore-100 {
		mateIn := (MateScore - score + 1) / 2
		return "Mate in " + itoa(mateIn)
	}
	if score < -MateScore+100 {
		mateIn := (MateScore + score + 1) / 2
		return "Mated in " + itoa(mateIn)
	}

	sign := ""
	if score < 0 {
		sign = "-"
		score = -score
	}
	pawns := score / 100
	centipawns := score % 100

	return sign + itoa(pawns) + "." + itoa(centipawns)
}

// itoa avoids pulling in fmt for a single integer-to-string conversion on
// the hot info-reporting path.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + itoa(-n)
	}
	s := ""
	for n > 0 {
		s = string('0'+byte(n%10)) + s
		n /= 10
	}
	return s
}

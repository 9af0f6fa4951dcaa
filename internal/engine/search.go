package engine

import (
	"math"
	"sync/atomic"

	"github.com/barbel-engine/barbel/internal/board"
)

// Search constants
const (
	Infinity  = 30000
	MateScore = 29000
	MaxPly    = 128
)

// lmrTable[remaining][moveNumber] holds the late-move reduction, computed as
// floor(0.99 + ln(remaining)*ln(moveNumber)/pi), capped by the caller at
// remaining-1.
var lmrTable [MaxPly][MaxPly]int

func init() {
	for d := 1; d < MaxPly; d++ {
		for m := 1; m < MaxPly; m++ {
			lmrTable[d][m] = int(0.99 + math.Log(float64(d))*math.Log(float64(m))/math.Pi)
		}
	}
}

// PVTable stores the principal variation.
type PVTable struct {
	length [MaxPly]int
	moves  [MaxPly][MaxPly]board.Move
}

// Searcher performs the single-threaded alpha-beta search that the
// supervisor/watchdog pair in Engine drives through iterative deepening.
type Searcher struct {
	pos       *board.Position
	tt        *TranspositionTable
	orderer   *MoveOrderer
	pawnTable *PawnTable
	corrHist  *CorrectionHistory

	// Search state
	nodes    uint64
	stopFlag atomic.Bool

	// PV tracking
	pv PVTable

	// Undo stack, indexed by ply, preallocated. Move lists and ordering
	// scores are still allocated at every node.
	undoStack [MaxPly]board.UndoInfo

	// rootHistory holds Zobrist hashes of positions played before the
	// root, for repetition detection across the game, not just the
	// search tree.
	rootHistory []uint64

	// searchPath holds the Zobrist hash at each ply visited by the
	// current search, so in-tree repetitions are also detected.
	searchPath [MaxPly]uint64
}

// NewSearcher creates a new searcher.
func NewSearcher(tt *TranspositionTable) *Searcher {
	return &Searcher{
		tt:        tt,
		orderer:   NewMoveOrderer(),
		pawnTable: NewPawnTable(1),
		corrHist:  NewCorrectionHistory(),
	}
}

// Stop signals the search to stop.
func (s *Searcher) Stop() {
	s.stopFlag.Store(true)
}

// Reset resets the searcher for a new search.
func (s *Searcher) Reset() {
	s.stopFlag.Store(false)
	s.nodes = 0
	s.orderer.Clear()
}

// SetRootHistory records the hashes of positions played before the search
// root, used to detect repetition draws that span the actual game.
func (s *Searcher) SetRootHistory(hashes []uint64) {
	s.rootHistory = make([]uint64, len(hashes))
	copy(s.rootHistory, hashes)
}

// Nodes returns the number of nodes searched.
func (s *Searcher) Nodes() uint64 {
	return s.nodes
}

// Search performs the search at the given depth.
func (s *Searcher) Search(pos *board.Position, depth int) (board.Move, int) {
	s.pos = pos.Copy()
	s.Reset()

	score := s.negamax(depth, 0, -Infinity, Infinity)

	var bestMove board.Move
	if s.pv.length[0] > 0 {
		bestMove = s.pv.moves[0][0]
	}

	return bestMove, score
}

// staticEval returns the classical evaluation adjusted by the correction
// history, which nudges the static eval of a position toward what recent
// searches from similar positions actually found.
func (s *Searcher) staticEval() int {
	return EvaluateWithPawnTable(s.pos, s.pawnTable) + s.corrHist.Get(s.pos)
}

// negamax implements the negamax algorithm with alpha-beta pruning, null-move
// pruning and late-move reductions.
func (s *Searcher) negamax(depth, ply int, alpha, beta int) int {
	// Check for stop signal periodically
	if s.nodes&4095 == 0 && s.stopFlag.Load() {
		return alpha
	}

	s.nodes++

	// Initialize PV length for this ply
	s.pv.length[ply] = ply

	pvNode := beta-alpha > 1
	s.searchPath[ply] = s.pos.Hash

	// Check for draw
	if ply > 0 && s.isDraw(ply) {
		return 0
	}

	// Probe transposition table
	var ttMove board.Move
	ttEntry, found := s.tt.Probe(s.pos.Hash)
	if found {
		ttMove = ttEntry.BestMove
		if int(ttEntry.Depth) >= depth && !pvNode {
			score := AdjustScoreFromTT(int(ttEntry.Score), ply)
			switch ttEntry.Flag {
			case TTExact:
				return score
			case TTLowerBound:
				if score > alpha {
					alpha = score
				}
			case TTUpperBound:
				if score < beta {
					beta = score
				}
			}
			if alpha >= beta {
				return score
			}
		}
	}

	// Quiescence search at depth 0
	if depth <= 0 {
		return s.quiescence(ply, alpha, beta)
	}

	// Check if in check
	inCheck := s.pos.InCheck()

	// Null-move pruning: give the opponent a free move and see if we still
	// fail high. Guarded against zugzwang by requiring non-pawn material,
	// and skipped in check or near mate scores, and in PV nodes.
	if !pvNode && !inCheck && depth > 3 && ply > 0 &&
		s.pos.HasNonPawnMaterial() && beta < MateScore-MaxPly && beta > -MateScore+MaxPly {
		nullUndo := s.pos.MakeNullMove()
		s.searchPath[ply+1] = s.pos.Hash
		score := -s.negamax(depth-1-3, ply+1, -beta, -beta+1)
		s.pos.UnmakeNullMove(nullUndo)

		if s.stopFlag.Load() {
			return alpha
		}
		if score >= beta {
			return beta
		}
	}

	// Generate moves
	moves := s.pos.GenerateLegalMoves()

	// Check for checkmate or stalemate
	if moves.Len() == 0 {
		if inCheck {
			return -MateScore + ply // Checkmate
		}
		return 0 // Stalemate
	}

	// Score and sort moves
	scores := s.orderer.ScoreMoves(s.pos, moves, ply, ttMove)

	bestScore := -Infinity
	bestMove := board.NoMove
	flag := TTUpperBound
	moveNumber := 0

	for i := 0; i < moves.Len(); i++ {
		// Pick the best remaining move
		PickMove(moves, scores, i)
		move := moves.Get(i)

		isCapture := move.IsCapture(s.pos)
		isPromotion := move.IsPromotion()
		isKiller := move == s.orderer.killers[ply][0] || move == s.orderer.killers[ply][1]

		// Make move
		s.undoStack[ply] = s.pos.MakeMove(move)

		// Skip if move was invalid (no piece at from square)
		if !s.undoStack[ply].Valid {
			continue
		}

		moveNumber++
		s.searchPath[ply+1] = s.pos.Hash
		givesCheck := s.pos.InCheck()

		var score int
		reduction := 0
		if depth > 3 && moveNumber >= 3 && !isCapture && !isPromotion && !isKiller && !givesCheck && !inCheck {
			reduction = lmrTable[min(depth, MaxPly-1)][min(moveNumber, MaxPly-1)]
			if reduction > depth-1 {
				reduction = depth - 1
			}
			if reduction < 0 {
				reduction = 0
			}
		}

		if reduction > 0 {
			// Reduced zero-window search first; re-search at full depth
			// and window if it beats alpha.
			score = -s.negamax(depth-1-reduction, ply+1, -alpha-1, -alpha)
			if score > alpha {
				score = -s.negamax(depth-1, ply+1, -beta, -alpha)
			}
		} else {
			score = -s.negamax(depth-1, ply+1, -beta, -alpha)
		}

		// Unmake move
		s.pos.UnmakeMove(move, s.undoStack[ply])

		// Check for stop
		if s.stopFlag.Load() {
			return alpha
		}

		if score > bestScore {
			bestScore = score
			bestMove = move

			if score > alpha {
				alpha = score
				flag = TTExact

				// Update PV
				s.pv.moves[ply][ply] = move
				for j := ply + 1; j < s.pv.length[ply+1]; j++ {
					s.pv.moves[ply][j] = s.pv.moves[ply+1][j]
				}
				s.pv.length[ply] = s.pv.length[ply+1]
			}
		}

		// Beta cutoff
		if score >= beta {
			// Store in TT
			s.tt.Store(s.pos.Hash, depth, AdjustScoreToTT(score, ply), TTLowerBound, bestMove)

			// Update killer and history for quiet moves
			if !isCapture {
				s.orderer.UpdateKillers(move, ply)
				s.orderer.UpdateHistory(move, depth, true)
			}

			return score
		}
	}

	// Store in TT
	s.tt.Store(s.pos.Hash, depth, AdjustScoreToTT(bestScore, ply), flag, bestMove)

	if !inCheck && bestScore > -MateScore+MaxPly && bestScore < MateScore-MaxPly {
		s.corrHist.Update(s.pos, bestScore, EvaluateWithPawnTable(s.pos, s.pawnTable), depth)
	}

	return bestScore
}

// quiescence searches only captures and promotions to avoid the horizon effect.
func (s *Searcher) quiescence(ply int, alpha, beta int) int {
	// Depth limit to prevent infinite recursion
	if ply >= MaxPly {
		return EvaluateWithPawnTable(s.pos, s.pawnTable)
	}

	// Check for stop
	if s.stopFlag.Load() {
		return alpha
	}

	s.nodes++

	// Stand pat (evaluate current position)
	standPat := s.staticEval()

	if standPat >= beta {
		return beta
	}

	if standPat > alpha {
		alpha = standPat
	}

	// Delta pruning: if we're very far behind, prune
	bigDelta := QueenValue
	if standPat+bigDelta < alpha {
		return alpha
	}

	// Generate captures only
	moves := s.pos.GenerateCaptures()

	// No captures and no other legal move either: checkmate or stalemate
	if moves.Len() == 0 && !s.pos.HasLegalMoves() {
		if s.pos.InCheck() {
			return -MateScore + ply
		}
		return 0
	}

	// Score captures/promotions by SEE-aware staging
	scores := s.orderer.ScoreMoves(s.pos, moves, ply, board.NoMove)

	for i := 0; i < moves.Len(); i++ {
		PickMove(moves, scores, i)
		move := moves.Get(i)

		// Delta pruning for individual moves: skip captures that can't
		// improve alpha significantly.
		if !s.pos.InCheck() {
			var captureValue int
			if move.IsEnPassant() {
				captureValue = seeValues[board.Pawn]
			} else {
				capturedPiece := s.pos.PieceAt(move.To())
				if capturedPiece != board.NoPiece {
					captureValue = seeValues[capturedPiece.Type()]
				}
			}
			if move.IsPromotion() {
				captureValue += seeValues[move.Promotion()] - seeValues[board.Pawn]
			}
			if standPat+captureValue+200 < alpha {
				continue
			}

			// Skip clearly losing captures (SEE < 0) once a quiet floor
			// has already been established.
			if move.IsCapture(s.pos) && SEE(s.pos, move) < 0 {
				continue
			}
		}

		// Make move
		undo := s.pos.MakeMove(move)

		// Skip if move was invalid (no piece at from square)
		if !undo.Valid {
			continue
		}

		// Recursive search
		score := -s.quiescence(ply+1, -beta, -alpha)

		// Unmake move
		s.pos.UnmakeMove(move, undo)

		if score >= beta {
			return beta
		}

		if score > alpha {
			alpha = score
		}
	}

	return alpha
}

// isDraw checks for draw by 50-move rule, insufficient material, or
// repetition against either the in-tree search path or the game history
// leading up to the search root.
func (s *Searcher) isDraw(ply int) bool {
	if s.pos.HalfMoveClock >= 100 {
		return true
	}

	if s.pos.IsInsufficientMaterial() {
		return true
	}

	hash := s.pos.Hash
	for p := ply - 2; p >= 0; p -= 2 {
		if s.searchPath[p] == hash {
			return true
		}
	}
	for _, h := range s.rootHistory {
		if h == hash {
			return true
		}
	}

	return false
}

// GetPV returns the principal variation from the last search.
func (s *Searcher) GetPV() []board.Move {
	pv := make([]board.Move, s.pv.length[0])
	for i := 0; i < s.pv.length[0]; i++ {
		pv[i] = s.pv.moves[0][i]
	}
	return pv
}

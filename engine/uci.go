package engine

import (
	"strconv"
	"strings"

	"github.com/vendigo0/stockfish-local-analysis-web/analysis"
)

// parseBestMoveLine extracts the move pair from a "bestmove" line.
func parseBestMoveLine(line string) (bestMove string, ponder string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "bestmove" {
		return "", "", false
	}
	bestMove = fields[1]
	for i := 2; i+1 < len(fields); i++ {
		if fields[i] == "ponder" {
			ponder = fields[i+1]
			break
		}
	}
	return bestMove, ponder, true
}

// parseInfoLine converts an "info" line into an aggregator update. Lines
// without both a score and a pv (currmove progress, "info string" chatter)
// are not updates and report ok=false.
func parseInfoLine(line string) (analysis.InfoUpdate, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "info" {
		return analysis.InfoUpdate{}, false
	}

	update := analysis.InfoUpdate{}
	hasScore := false
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "multipv":
			if i+1 < len(fields) {
				if rank, err := strconv.Atoi(fields[i+1]); err == nil && rank > 0 {
					update.Rank = rank - 1
				}
				i++
			}
		case "depth":
			if i+1 < len(fields) {
				if depth, err := strconv.Atoi(fields[i+1]); err == nil {
					update.Depth = depth
				}
				i++
			}
		case "score":
			if i+2 < len(fields) {
				scoreType := fields[i+1]
				if value, err := strconv.Atoi(fields[i+2]); err == nil {
					if scoreType == "cp" {
						update.ScoreCP = intPtr(value)
						hasScore = true
					}
					if scoreType == "mate" {
						update.Mate = intPtr(value)
						hasScore = true
					}
				}
				i += 2
			}
		case "pv":
			if i+1 < len(fields) {
				update.PV = append([]string(nil), fields[i+1:]...)
			}
			return update, hasScore && len(update.PV) > 0
		}
	}

	return analysis.InfoUpdate{}, false
}

func intPtr(value int) *int {
	return &value
}

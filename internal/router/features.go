package router

import (
	"strings"
	"unicode"
)

var creativityCues = []string{"write", "story", "imagine", "compose", "poem", "creative", "brainstorm"}
var timeSensitivityCues = []string{"quick", "now", "briefly", "asap", "hurry", "fast"}
var contextCues = []string{"that", "it", "again", "also", "previous", "earlier", "before"}

// extractFeatures scores the lexical signals §4.1 names. It is deliberately
// simple, allocation-light string processing — there is no clause parser
// here, only cue-word and shape heuristics, which is sufficient for routing
// a query to a track rather than fully understanding it.
func extractFeatures(query string, priorTurnCount int) Features {
	trimmed := strings.TrimSpace(query)
	words := strings.Fields(trimmed)
	lower := strings.ToLower(trimmed)

	f := Features{
		Length: len(words),
	}

	if strings.HasSuffix(trimmed, "?") || startsWithQuestionWord(lower) {
		f.IsQuestion = 1
	}
	if startsWithImperative(words) {
		f.IsImperative = 1
	}

	f.Creativity = cueScore(lower, creativityCues)
	f.TimeSensitivity = cueScore(lower, timeSensitivityCues)

	f.Complexity = complexityScore(trimmed, words)

	if priorTurnCount > 0 {
		f.ContextDependence = cueScore(lower, contextCues)
	}

	return f
}

func cueScore(lower string, cues []string) float64 {
	for _, cue := range cues {
		if strings.Contains(lower, cue) {
			return 1
		}
	}
	return 0
}

var questionWords = []string{"what", "who", "where", "when", "why", "how", "which", "is", "are", "do", "does", "can", "could", "would", "should"}

func startsWithQuestionWord(lower string) bool {
	fields := strings.Fields(lower)
	if len(fields) == 0 {
		return false
	}
	first := strings.TrimFunc(fields[0], func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range questionWords {
		if first == w {
			return true
		}
	}
	return false
}

var imperativeVerbs = []string{"turn", "set", "play", "stop", "start", "open", "close", "tell", "give", "show", "remind", "schedule", "add", "delete", "cancel"}

func startsWithImperative(words []string) bool {
	if len(words) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimFunc(words[0], func(r rune) bool { return !unicode.IsLetter(r) }))
	for _, v := range imperativeVerbs {
		if first == v {
			return true
		}
	}
	return false
}

// complexityScore combines sentence count, conjunction density, and raw
// length into a [0,1] estimate of how multi-part the ask is.
func complexityScore(trimmed string, words []string) float64 {
	if len(words) == 0 {
		return 0
	}

	clauseMarkers := strings.Count(trimmed, ",") + strings.Count(trimmed, ";")
	conjunctions := 0
	for _, w := range words {
		switch strings.ToLower(strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })) {
		case "and", "but", "because", "although", "while", "if", "then":
			conjunctions++
		}
	}

	score := float64(clauseMarkers)*0.15 + float64(conjunctions)*0.2 + float64(len(words))/60.0
	if score > 1 {
		score = 1
	}
	return score
}

// Package integrator implements the response integrator (§4.4): it takes
// whatever the local and API tracks produced for a turn and decides what the
// assistant actually says, merging or picking between them according to the
// turn's routing path and measured textual similarity.
package integrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/vanta-core/vanta/internal/state"
)

// Config mirrors internal/config.IntegrationConfig.
type Config struct {
	SimilarityHigh        float64
	SimilarityMedium       float64
	APIPreferenceWeight    float64
	LocalPreferenceWeight  float64
	LatencyPriority        bool
}

const fallbackMessage = "I'm sorry, I wasn't able to put together a response for that."

// Integrate selects or merges local and api into a single IntegrationResult.
// It never panics out to the caller: a recovered panic is reported the same
// way as any other integration failure, a canned fallback message tagged
// integration_error, matching §4.4's "integration errors are non-fatal".
func Integrate(local, api *state.TrackResponse, path state.Path, cfg Config) (result state.IntegrationResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = fallbackResult(fmt.Sprintf("recovered: %v", r), start)
		}
	}()

	localOK := local != nil && local.Success
	apiOK := api != nil && api.Success

	switch {
	case !localOK && !apiOK:
		return fallbackResult("", start)
	case localOK && !apiOK:
		return singleSource(*local, "local", start)
	case !localOK && apiOK:
		return singleSource(*api, "api", start)
	}

	// Both succeeded from here on.
	switch path {
	case state.PathLocal:
		return singleSource(*local, "local", start)
	case state.PathAPI:
		return singleSource(*api, "api", start)
	}

	if cfg.LatencyPriority {
		return fastest(*local, *api, start)
	}

	similarity := textSimilarity(local.Content, api.Content)
	switch {
	case similarity >= cfg.SimilarityHigh:
		return preference(*local, *api, cfg, similarity, start)
	case similarity >= cfg.SimilarityMedium:
		return combine(*local, *api, similarity, start)
	default:
		return interrupt(*api, similarity, start)
	}
}

func singleSource(r state.TrackResponse, source string, start time.Time) state.IntegrationResult {
	return state.IntegrationResult{
		Content:      r.Content,
		Source:       source,
		Strategy:     "single_source",
		ProcessingMs: float64(time.Since(start).Milliseconds()),
	}
}

func fallbackResult(reason string, start time.Time) state.IntegrationResult {
	meta := map[string]any{"integration_error": true}
	if reason != "" {
		meta["reason"] = reason
	}
	return state.IntegrationResult{
		Content:      fallbackMessage,
		Source:       "fallback",
		Strategy:     "fallback",
		ProcessingMs: float64(time.Since(start).Milliseconds()),
		Metadata:     meta,
	}
}

func fastest(local, api state.TrackResponse, start time.Time) state.IntegrationResult {
	winner, source := local, "local"
	if api.LatencyMs < local.LatencyMs {
		winner, source = api, "api"
	}
	return state.IntegrationResult{
		Content:      winner.Content,
		Source:       source,
		Strategy:     "fastest",
		ProcessingMs: float64(time.Since(start).Milliseconds()),
	}
}

func preference(local, api state.TrackResponse, cfg Config, similarity float64, start time.Time) state.IntegrationResult {
	localScore := quality(local) * cfg.LocalPreferenceWeight
	apiScore := quality(api) * cfg.APIPreferenceWeight

	winner, source := local, "local"
	if apiScore >= localScore {
		winner, source = api, "api"
	}
	sim := similarity
	return state.IntegrationResult{
		Content:         winner.Content,
		Source:          source,
		Strategy:        "preference",
		SimilarityScore: &sim,
		ProcessingMs:    float64(time.Since(start).Milliseconds()),
	}
}

func combine(local, api state.TrackResponse, similarity float64, start time.Time) state.IntegrationResult {
	sim := similarity
	return state.IntegrationResult{
		Content:         dedupJoin(local.Content, api.Content),
		Source:          "integrated",
		Strategy:        "combine",
		SimilarityScore: &sim,
		ProcessingMs:    float64(time.Since(start).Milliseconds()),
	}
}

func interrupt(api state.TrackResponse, similarity float64, start time.Time) state.IntegrationResult {
	sim := similarity
	return state.IntegrationResult{
		Content:         api.Content,
		Source:          "api",
		Strategy:        "interrupt",
		SimilarityScore: &sim,
		ProcessingMs:    float64(time.Since(start).Milliseconds()),
	}
}

// quality falls back to 0.5 (neutral) when a track did not report a quality
// score, so the weight alone decides between two otherwise-equal responses.
func quality(r state.TrackResponse) float64 {
	if r.QualityScore != nil {
		return *r.QualityScore
	}
	return 0.5
}

// dedupJoin emits local's content, a bridging connective, then api's content
// with any trailing overlap between the two stripped so the combined answer
// does not repeat itself.
func dedupJoin(local, api string) string {
	local = strings.TrimSpace(local)
	api = strings.TrimSpace(api)
	if local == "" {
		return api
	}
	if api == "" {
		return local
	}

	apiTail := trailingOverlap(local, api)
	api = strings.TrimSpace(strings.TrimPrefix(api, apiTail))

	if api == "" {
		return local
	}
	return local + " Additionally, " + api
}

// trailingOverlap returns the longest prefix of b that is also a suffix of
// a, compared word-by-word so partial-word matches are ignored.
func trailingOverlap(a, b string) string {
	aWords := strings.Fields(strings.ToLower(a))
	bWords := strings.Fields(strings.ToLower(b))

	maxLen := len(aWords)
	if len(bWords) < maxLen {
		maxLen = len(bWords)
	}
	for n := maxLen; n > 0; n-- {
		if equalSlices(aWords[len(aWords)-n:], bWords[:n]) {
			bFields := strings.Fields(b)
			return strings.Join(bFields[:n], " ")
		}
	}
	return ""
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// textSimilarity computes token-set Jaccard similarity on normalized,
// lowercased content. For very short utterances (fewer than 3 tokens on
// both sides), Jaccard is too coarse to be meaningful — a single differing
// word swings it from 0 to 1 — so it is blended with matchr's Jaro-Winkler
// string distance as a secondary signal. This never changes which threshold
// bracket a long, clearly-similar or clearly-different pair falls into; it
// only smooths the score for short utterances.
func textSimilarity(a, b string) float64 {
	aTokens := tokenSet(a)
	bTokens := tokenSet(b)

	jaccard := jaccardSimilarity(aTokens, bTokens)
	if len(aTokens) < 3 && len(bTokens) < 3 {
		jw := matchr.JaroWinkler(strings.ToLower(a), strings.ToLower(b), false)
		return (jaccard + jw) / 2
	}
	return jaccard
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()")
		if f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}

func jaccardSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

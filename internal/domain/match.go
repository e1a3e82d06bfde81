package domain

import "strings"

// MatchMeeting decides which candidate meeting an inbound chat message
// acknowledges. The message matches a meeting when the confirmation phrase
// appears in it (case-insensitive) and the meeting title, or a contiguous
// run of its words, also appears. When several candidates match, the one
// with the longest matched title fragment wins; equal fragments fall back
// to the earliest start time.
//
// Returns the index into candidates, or -1 when nothing matches. No match
// is a normal outcome for conversational messages.
func MatchMeeting(text, phrase string, candidates []Meeting) int {
	normText := normalize(text)
	normPhrase := normalize(phrase)
	if normPhrase == "" || !strings.Contains(normText, normPhrase) {
		return -1
	}

	best := -1
	bestScore := 0
	for i, m := range candidates {
		score := titleMatchScore(normText, m.Title)
		if score == 0 {
			continue
		}
		if score > bestScore ||
			(score == bestScore && m.StartTime.Before(candidates[best].StartTime)) {
			best = i
			bestScore = score
		}
	}
	return best
}

// titleMatchScore returns the length of the longest contiguous word run of
// title that appears in the normalized text, or 0 when none does.
func titleMatchScore(normText, title string) int {
	words := strings.Fields(normalize(title))
	best := 0
	for i := 0; i < len(words); i++ {
		for j := len(words); j > i; j-- {
			frag := strings.Join(words[i:j], " ")
			if len(frag) <= best {
				break
			}
			// Single short words ("a", "on") match too much noise.
			if j-i == 1 && len(frag) < 3 {
				continue
			}
			if strings.Contains(normText, frag) {
				best = len(frag)
				break
			}
		}
	}
	return best
}

// normalize lowercases and collapses punctuation runs to single spaces, so
// "OK for Team-Standup!" matches the title "Team Standup".
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		isWord := r >= 'a' && r <= 'z' || r >= '0' && r <= '9'
		if !isWord {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

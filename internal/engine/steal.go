package engine

import (
	"cmp"
	"slices"
)

// findFreeVoiceLocked returns the first idle voice in pool order, or — when
// none is idle and stealing is allowed — a sounding voice chosen by the
// stealing heuristic. Returns nil when the pool is saturated and stealing is
// disallowed. Caller holds mu.
func (s *Synth) findFreeVoiceLocked(note Note, canSteal bool) Voice {
	for _, v := range s.voices {
		if !v.IsActive() {
			return v
		}
	}
	if canSteal {
		return s.findVoiceToStealLocked(note)
	}
	return nil
}

// findVoiceToStealLocked picks which sounding voice to sacrifice for an
// incoming note. Heuristics, in order:
//   - a voice already sounding the same note number is interchangeable and
//     taken first (oldest such voice), which avoids audible doubling;
//   - otherwise the oldest voice wins within each bucket: released tails,
//     then keys no longer held, then anything unprotected;
//   - the lowest and highest sounding unreleased notes are protected
//     throughout, so voice pressure cannot destroy the bass/lead frame of a
//     chord; when only those two remain the treble goes before the bass.
//
// Deterministic: ties break by ascending activation order. Caller holds mu;
// stealMu is taken inside to serialize use of the scratch slice. Invoking
// this from more than one goroutine at a time is a contract violation.
func (s *Synth) findVoiceToStealLocked(noteToStealFor Note) Voice {
	if len(s.voices) == 0 {
		// Stealing from an empty pool means the caller's bookkeeping is broken.
		panic("engine: voice steal requested with an empty pool")
	}

	var low, top Voice // protected: steal these only if unavoidable

	s.stealMu.Lock()
	defer s.stealMu.Unlock()

	usable := s.stealScratch[:0]

	for _, v := range s.voices {
		if !v.IsActive() {
			panic("engine: idle voice reached the steal path")
		}
		usable = append(usable, v)

		if !v.IsPlayingButReleased() {
			n := v.CurrentlyPlayingNote().InitialNote
			if low == nil || n < low.CurrentlyPlayingNote().InitialNote {
				low = v
			}
			if top == nil || n > top.CurrentlyPlayingNote().InitialNote {
				top = v
			}
		}
	}
	s.stealScratch = usable

	slices.SortStableFunc(usable, func(a, b Voice) int {
		return cmp.Compare(a.base().noteOnTime, b.base().noteOnTime)
	})

	// Only one note playing: protect just that note, not a duplicated range.
	if top == low {
		top = nil
	}

	if noteToStealFor.IsValid() {
		for _, v := range usable {
			if v.CurrentlyPlayingNote().InitialNote == noteToStealFor.InitialNote {
				return v
			}
		}
	}

	// Released tails are the cheapest to lose.
	for _, v := range usable {
		if v != low && v != top && v.IsPlayingButReleased() {
			return v
		}
	}

	// Next: keys no longer physically held (e.g. sustain-pedal only).
	for _, v := range usable {
		if v != low && v != top && !v.CurrentlyPlayingNote().KeyState.IsDown() {
			return v
		}
	}

	for _, v := range usable {
		if v != low && v != top {
			return v
		}
	}

	// Only protected voices remain. Duophonic case: the bass note has the
	// highest priority to keep sounding, so the treble goes first.
	if top != nil {
		return top
	}
	if low == nil {
		panic("engine: no stealable voice found")
	}
	return low
}

// Package registry maintains the live set of tracked audio streams, keyed
// by their server-assigned node id, and applies the classification policy
// that decides which stream is the voice source and which streams get
// ducked. The registry is owned by the engine's dispatch goroutine; it is
// not safe for concurrent use and never needs to be.
package registry

import (
	"strings"

	"github.com/oszuidwest/zwfm-ducker/internal/types"
)

// playbackClass is the media class of application playback streams.
const playbackClass = "Stream/Output/Audio"

// communicationRole is the media role voice applications tag their streams with.
const communicationRole = "communication"

// TrackedStream is the per-node state the ducker maintains. Entries live
// exactly as long as the backing graph node; an id reused after removal
// produces a brand-new entry with fresh gain state.
type TrackedStream struct {
	ID   uint32
	Role types.StreamRole
	Meta types.NodeMeta

	// Baseline is the user's own volume, captured at registration and
	// multiplied by CurrentGain on every write so unducking restores the
	// original mix.
	Baseline    float64
	CurrentGain float64
	TargetGain  float64
	State       types.DuckState

	// LastWritten is the last gain actually sent to the server, used to
	// suppress redundant writes. Negative until the first write.
	LastWritten float64

	// VoiceScore rates how strongly the metadata identified this stream as
	// a voice source at registration time. Zero for non-candidates.
	VoiceScore int

	// Pinned marks a manually selected voice source, which no automatic
	// candidate may displace.
	Pinned bool
}

// Policy holds the classification configuration.
type Policy struct {
	// VoiceMatch is matched case-insensitively against the application
	// name, node name and process binary.
	VoiceMatch string
	// ExcludePatterns are matched the same way; a match forces Ignored.
	ExcludePatterns []string
	// VoiceSource selection when several nodes match the voice pattern.
	VoiceSourcePolicy types.VoiceSourcePolicy
}

// Registry is the arena of tracked streams.
type Registry struct {
	policy  Policy
	streams map[uint32]*TrackedStream
	voiceID uint32
	hasVoice bool
}

// New creates an empty registry with the given policy.
func New(policy Policy) *Registry {
	if policy.VoiceSourcePolicy == "" {
		policy.VoiceSourcePolicy = types.PolicyFirstWins
	}
	return &Registry{
		policy:  policy,
		streams: make(map[uint32]*TrackedStream),
	}
}

// SetPolicy replaces the classification policy. Existing roles are not
// reassigned; roles are fixed at discovery time.
func (r *Registry) SetPolicy(policy Policy) {
	if policy.VoiceSourcePolicy == "" {
		policy.VoiceSourcePolicy = types.PolicyFirstWins
	}
	r.policy = policy
}

// Classify derives a stream role from node metadata. Metadata that matches
// no rule unambiguously falls back to Ignored: an unrecognized stream is
// never ducked and never monitored.
func (r *Registry) Classify(meta types.NodeMeta) types.StreamRole {
	if r.matchesVoice(meta) {
		return types.RoleVoiceSource
	}
	return r.classifyPlayback(meta)
}

// classifyPlayback decides between DuckTarget and Ignored for a stream that
// is not a voice source.
func (r *Registry) classifyPlayback(meta types.NodeMeta) types.StreamRole {
	if meta.MediaClass != playbackClass {
		return types.RoleIgnored
	}
	for _, pattern := range r.policy.ExcludePatterns {
		if matchesStream(meta, pattern) {
			return types.RoleIgnored
		}
	}
	return types.RoleDuckTarget
}

// VoiceScore rates how strongly the metadata identifies a voice stream.
// The application name carries the most weight, the node name and process
// binary less, and well-populated metadata breaks ties between otherwise
// equal candidates.
func (r *Registry) VoiceScore(meta types.NodeMeta) int {
	score := 0
	if p := strings.ToLower(r.policy.VoiceMatch); p != "" {
		if strings.Contains(strings.ToLower(meta.AppName), p) {
			score += 100
		}
		if strings.Contains(strings.ToLower(meta.NodeName), p) {
			score += 30
		}
		if strings.Contains(strings.ToLower(meta.Binary), p) {
			score += 30
		}
	}
	if strings.EqualFold(meta.MediaRole, communicationRole) {
		score += 50
	}
	if meta.NodeName != "" {
		score += 5
	}
	if meta.Binary != "" {
		score += 3
	}
	if meta.MediaName != "" {
		score++
	}
	if meta.MediaRole != "" {
		score++
	}
	return score
}

// matchesVoice applies the voice-source heuristic: the configured matcher
// against app/node/binary names, or an explicit communication media role.
func (r *Registry) matchesVoice(meta types.NodeMeta) bool {
	if r.policy.VoiceMatch != "" && matchesStream(meta, r.policy.VoiceMatch) {
		return true
	}
	return strings.EqualFold(meta.MediaRole, communicationRole)
}

// matchesStream does a case-insensitive substring match against the
// stream's identifying names.
func matchesStream(meta types.NodeMeta, pattern string) bool {
	p := strings.ToLower(pattern)
	return strings.Contains(strings.ToLower(meta.AppName), p) ||
		strings.Contains(strings.ToLower(meta.NodeName), p) ||
		strings.Contains(strings.ToLower(meta.Binary), p)
}

// Register inserts a new tracked stream for the node. When a voice source
// already exists, a new candidate displaces it only if it scores strictly
// higher; on a tie the configured policy decides (first wins by default,
// newest wins displaces). A pinned voice source is never displaced, and the
// losing candidate is demoted to Ignored. Registering an id that already
// exists replaces the old entry outright (id reuse).
func (r *Registry) Register(id uint32, role types.StreamRole, meta types.NodeMeta) (stream *TrackedStream, displaced *TrackedStream) {
	score := 0
	if role == types.RoleVoiceSource {
		score = r.VoiceScore(meta)
	}

	if role == types.RoleVoiceSource && r.hasVoice && r.voiceID != id {
		current := r.streams[r.voiceID]
		if r.displaces(score, current) {
			displaced = current
			displaced.Role = types.RoleIgnored
			r.hasVoice = false
		} else {
			role = types.RoleIgnored
			score = 0
		}
	}

	stream = &TrackedStream{
		ID:          id,
		Role:        role,
		Meta:        meta,
		Baseline:    1.0,
		CurrentGain: types.MaxGain,
		TargetGain:  types.MaxGain,
		State:       types.DuckUnducked,
		LastWritten: -1,
		VoiceScore:  score,
	}
	r.streams[id] = stream

	if role == types.RoleVoiceSource {
		r.voiceID = id
		r.hasVoice = true
	}
	return stream, displaced
}

// displaces reports whether a candidate with the given score takes over
// from the current voice source.
func (r *Registry) displaces(score int, current *TrackedStream) bool {
	switch {
	case current.Pinned:
		return false
	case score != current.VoiceScore:
		return score > current.VoiceScore
	default:
		return r.policy.VoiceSourcePolicy == types.PolicyNewestWins
	}
}

// Promote makes an already-tracked stream the voice source and pins it
// against automatic displacement. The previous voice source, if any, is
// reclassified as an ordinary playback stream. Returns false when the id
// is unknown or already the voice source.
func (r *Registry) Promote(id uint32) (stream, demoted *TrackedStream, ok bool) {
	stream, found := r.streams[id]
	if !found || (r.hasVoice && r.voiceID == id) {
		return nil, nil, false
	}

	if r.hasVoice {
		demoted = r.streams[r.voiceID]
		demoted.Role = r.classifyPlayback(demoted.Meta)
		demoted.Pinned = false
	}

	stream.Role = types.RoleVoiceSource
	stream.Pinned = true
	stream.VoiceScore = r.VoiceScore(stream.Meta)
	r.voiceID = id
	r.hasVoice = true
	return stream, demoted, true
}

// Unregister removes the stream immediately and reports whether it was the
// voice source. Returns nil if the id was unknown.
func (r *Registry) Unregister(id uint32) (stream *TrackedStream, wasVoice bool) {
	stream, ok := r.streams[id]
	if !ok {
		return nil, false
	}
	delete(r.streams, id)
	if r.hasVoice && r.voiceID == id {
		r.hasVoice = false
		return stream, true
	}
	return stream, false
}

// Get looks a stream up by id.
func (r *Registry) Get(id uint32) (*TrackedStream, bool) {
	s, ok := r.streams[id]
	return s, ok
}

// VoiceSource returns the current voice source stream, if any.
func (r *Registry) VoiceSource() (*TrackedStream, bool) {
	if !r.hasVoice {
		return nil, false
	}
	return r.streams[r.voiceID], true
}

// Targets calls fn for every registered duck target.
func (r *Registry) Targets(fn func(*TrackedStream)) {
	for _, s := range r.streams {
		if s.Role == types.RoleDuckTarget {
			fn(s)
		}
	}
}

// All calls fn for every registered stream.
func (r *Registry) All(fn func(*TrackedStream)) {
	for _, s := range r.streams {
		fn(s)
	}
}

// Clear drops every entry, used when the graph session is lost and the
// monitor will re-announce the graph from scratch.
func (r *Registry) Clear() {
	r.streams = make(map[uint32]*TrackedStream)
	r.hasVoice = false
}

// Len returns the number of tracked streams.
func (r *Registry) Len() int {
	return len(r.streams)
}

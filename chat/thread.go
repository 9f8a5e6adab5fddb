package chat

// Thread holds the two message sources of a conversation view. The seed is
// rendered until the live subscription delivers its first snapshot; from then
// on only live snapshots are shown. The sources are never merged.
type Thread struct {
	seed    []MessageView
	live    []MessageView
	hasLive bool
}

func NewThread(seed []MessageView) *Thread {
	if seed == nil {
		seed = []MessageView{}
	}
	return &Thread{seed: seed}
}

// SetLive replaces the live snapshot. An empty snapshot still counts.
func (t *Thread) SetLive(views []MessageView) {
	if views == nil {
		views = []MessageView{}
	}
	t.live = views
	t.hasLive = true
}

func (t *Thread) Live() bool {
	return t.hasLive
}

func (t *Thread) Current() []MessageView {
	if t.hasLive {
		return t.live
	}
	return t.seed
}

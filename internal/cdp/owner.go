package cdp

// Owner is the back-reference from a Session Node to whatever embedder
// object (a "web view" in chromedriver terms) owns it. IsServiceWorker is
// the only thing the pump itself needs; richer capabilities like dialog
// handling are reached through an optional type assertion, see
// DialogManager.
type Owner interface {
	IsServiceWorker() bool
}

// ownerHolder pins an Owner for the duration of one message dispatch: it
// keeps a reference to the owner that was current when dispatch started, so
// that owner stays reachable even if a listener callback tears down its own
// web view mid-notification. Listeners themselves are not handed this
// value; they reach the owner through Node.Owner.
type ownerHolder struct {
	owner Owner
}

func acquireOwnerHolder(o Owner) *ownerHolder {
	return &ownerHolder{owner: o}
}

func (h *ownerHolder) release() {
	h.owner = nil
}

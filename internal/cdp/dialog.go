package cdp

// DialogManager is consulted when a pending command is found Blocked at
// wait-exit, to recover the text of the JavaScript dialog that stalled it.
// An Owner implementation that fronts a page with dialog support should
// also implement this interface; it is looked up with a type assertion,
// not required by Owner itself, since most owners (workers, the browser
// target) never see dialogs.
type DialogManager interface {
	DialogMessage() (string, error)
}

package cdp

// FrontendCloser lets an embedder close a stale inspector frontend before
// a connect is retried. It is invoked at most once, only after the first
// connect attempt on the root node fails.
type FrontendCloser func() error

package indicator

// Noop implements Indicator but does nothing.
// Used when no indicators are configured.
type Noop struct{}

func (n *Noop) InRange()        {}
func (n *Noop) MinReached()     {}
func (n *Noop) MaxReached()     {}
func (n *Noop) ConnectionLost() {}
func (n *Noop) Shutdown()       {}
func (n *Noop) Release() error  { return nil }

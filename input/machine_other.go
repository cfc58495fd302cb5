//go:build !rp2040

package input

func openMachine(pinA, pinB int, pullUp bool) (*Pair, error) {
	return nil, ErrNotSupported
}

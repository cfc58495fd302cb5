//go:build !linux || baremetal

package input

func openCdev(chip string, pinA, pinB int, pullUp bool) (*Pair, error) {
	return nil, ErrNotSupported
}

func openMem(pinA, pinB int, pullUp bool) (*Pair, error) {
	return nil, ErrNotSupported
}

func openSysfs(pinA, pinB int, pullUp bool) (*Pair, error) {
	return nil, ErrNotSupported
}

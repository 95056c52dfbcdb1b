package simulator

import "time"

// Option configures a simulated bootloader.
type Option func(b *Bootloader, flashSize *int)

// WithFlashSize sets the flash size in bytes (default 1 MiB).
func WithFlashSize(size int) Option {
	return func(b *Bootloader, flashSize *int) {
		if size > 0 {
			*flashSize = size
		}
	}
}

// WithPageSize sets the page erase granularity (default 2 KiB).
func WithPageSize(size int) Option {
	return func(b *Bootloader, _ *int) {
		if size > 0 {
			b.pageSize = size
		}
	}
}

// WithProtected starts the device with read protection enabled.
func WithProtected(on bool) Option {
	return func(b *Bootloader, _ *int) {
		b.protected = on
	}
}

// WithEraseTime sets the poll timeout reported while erasing.
func WithEraseTime(d time.Duration) Option {
	return func(b *Bootloader, _ *int) {
		b.eraseTime = d
	}
}

// WithWriteTime sets the poll timeout reported while writing a block.
func WithWriteTime(d time.Duration) Option {
	return func(b *Bootloader, _ *int) {
		b.writeTime = d
	}
}

// WithVersion sets the reported bcdDevice.
func WithVersion(v uint16) Option {
	return func(b *Bootloader, _ *int) {
		b.version = v
	}
}

package memspace

import "errors"

var (
	// ErrEmptyRange is returned for ranges with Start >= End and for writes
	// carrying no data.
	ErrEmptyRange = errors.New("memspace: empty or inverted range")

	// ErrAlreadyFilled is returned by FillCache on its second call and by
	// AddRangeToCache once FillCache has run.
	ErrAlreadyFilled = errors.New("memspace: cache already filled")

	// ErrRangeTooLarge is returned when a declared range, alone or merged
	// with its neighbours, exceeds Options.MaxSlotSize.
	ErrRangeTooLarge = errors.New("memspace: range exceeds maximum slot size")

	// ErrSpuriousReply reports a read reply whose address does not match the
	// outstanding request. Loading stops.
	ErrSpuriousReply = errors.New("memspace: spurious read reply")

	// ErrReplyOverflow reports a read reply carrying more bytes than remain in
	// the slot being loaded. Loading stops.
	ErrReplyOverflow = errors.New("memspace: read reply overflows slot")

	// ErrReadFailed wraps a transport error reported for a chunk read.
	// Loading stops.
	ErrReadFailed = errors.New("memspace: chunk read failed")
)

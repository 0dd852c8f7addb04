package pagemap

import (
	"errors"
	"fmt"
)

// ErrBadSize indicates a negative or unrepresentable mapping length.
var ErrBadSize = errors.New("pagemap: bad mapping size")

// roundToPages rounds size up to a whole number of pages, with a minimum of one page.
func roundToPages(size int) (int, error) {
	if size < 0 {
		return 0, fmt.Errorf("%w: %d", ErrBadSize, size)
	}
	page := PageSize()
	if size == 0 {
		return page, nil
	}
	if size > int(^uint(0)>>1)-page {
		return 0, fmt.Errorf("%w: %d", ErrBadSize, size)
	}
	return (size + page - 1) / page * page, nil
}

package bloom

import "errors"

// ErrTruncated is returned when a serialized filter is shorter than its
// declared word count, indicating a corrupt or truncated SSTable footer.
var ErrTruncated = errors.New("bloom: truncated filter data")

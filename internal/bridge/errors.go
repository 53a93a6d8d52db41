package bridge

import "errors"

// ErrInvalidArgument matches every InvalidArgumentError via errors.Is.
var ErrInvalidArgument = errors.New("cachebridge: invalid argument")

// InvalidArgumentError is returned, before the engine is reached, when a
// key, a key collection, a value mapping or a TTL is not acceptable.
type InvalidArgumentError string

// Error returns the string message of InvalidArgumentError.
func (e InvalidArgumentError) Error() string {
	return string(e)
}

// Is reports whether target is ErrInvalidArgument.
func (e InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

const (
	// ErrInvalidKey is returned by single-key operations for non-string keys.
	ErrInvalidKey = InvalidArgumentError("cachebridge: key provided must be a string")
	// ErrInvalidKeys is returned by batch operations for non-iterable key
	// collections or collections holding a non-string key.
	ErrInvalidKeys = InvalidArgumentError("cachebridge: keys provided must be an iterable of strings")
	// ErrInvalidValues is returned by SetMultiple for non-mapping values or
	// mappings holding a non-string key.
	ErrInvalidValues = InvalidArgumentError("cachebridge: values provided must be a mapping with string keys")
	// ErrInvalidTTL is returned for TTLs that are neither nil, an integer
	// number of seconds nor a time.Duration.
	ErrInvalidTTL = InvalidArgumentError("cachebridge: ttl must be nil, an integer number of seconds or a time.Duration")
)

// IsInvalidArgument reports whether err is a validation failure.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

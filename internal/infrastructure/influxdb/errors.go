package influxdb

import "errors"

// Errors returned by the client; compare with errors.Is. Write failures are
// asynchronous and reported through SetOnError instead.
var (
	ErrDisabled         = errors.New("influxdb: disabled in configuration")
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
)

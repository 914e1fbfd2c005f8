package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Rule/action layer.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrNoEnergy   = "E_NO_ENERGY"
	ErrNoBalance  = "E_NO_BALANCE"
	ErrNoRefills  = "E_NO_REFILLS"
	ErrSyncFailed = "E_SYNC_FAILED"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrNoEnergy:        {},
	ErrNoBalance:       {},
	ErrNoRefills:       {},
	ErrSyncFailed:      {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

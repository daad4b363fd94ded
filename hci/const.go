package hci

// ConnectionHandle identifies one physical link at the controller.
// Valid values are in the range 0x0000-0x0EFF.
type ConnectionHandle uint16

// ErrorCode is the status byte carried by HCI events [Vol 1, Part F, 1.3].
type ErrorCode uint8

const (
	ErrSuccess                  ErrorCode = 0x00
	ErrPageTimeout              ErrorCode = 0x04
	ErrAuthenticationFailure    ErrorCode = 0x05
	ErrConnectionTimeout        ErrorCode = 0x08
	ErrConnectionLimitExceeded  ErrorCode = 0x09
	ErrConnectionAlreadyExists  ErrorCode = 0x0B
	ErrConnectionRejectedLimits ErrorCode = 0x0D
	ErrConnectionAcceptTimeout  ErrorCode = 0x10
	ErrRemoteUserTerminated     ErrorCode = 0x13
	ErrConnectionNotEstablished ErrorCode = 0x3E
)

var errorCodeNames = map[ErrorCode]string{
	ErrSuccess:                  "success",
	ErrPageTimeout:              "page timeout",
	ErrAuthenticationFailure:    "authentication failure",
	ErrConnectionTimeout:        "connection timeout",
	ErrConnectionLimitExceeded:  "connection limit exceeded",
	ErrConnectionAlreadyExists:  "connection already exists",
	ErrConnectionRejectedLimits: "connection rejected due to limited resources",
	ErrConnectionAcceptTimeout:  "connection accept timeout",
	ErrRemoteUserTerminated:     "remote user terminated connection",
	ErrConnectionNotEstablished: "connection failed to be established",
}

func (e ErrorCode) String() string {
	if s, ok := errorCodeNames[e]; ok {
		return s
	}
	return "unknown error code"
}

// DisconnectReason is the reason parameter of the Disconnect command
// [Vol 4, Part E, 7.1.6].
type DisconnectReason uint8

const (
	ReasonAuthenticationFailure    DisconnectReason = 0x05
	ReasonRemoteUserTerminated     DisconnectReason = 0x13
	ReasonRemoteLowResources       DisconnectReason = 0x14
	ReasonRemotePowerOff           DisconnectReason = 0x15
	ReasonUnsupportedRemoteFeature DisconnectReason = 0x1A
	ReasonUnitKeyPairingNotAllowed DisconnectReason = 0x29
	ReasonUnacceptableConnParams   DisconnectReason = 0x3B
)

package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RPCError is an error reported by the remote service in its native shape:
// a numeric code plus an upper-case message that may end in a numeric
// argument (e.g. code 420, "FLOOD_WAIT_30").
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Type returns the message without its trailing numeric argument.
// "FLOOD_WAIT_30" -> "FLOOD_WAIT".
func (e *RPCError) Type() string {
	typ, _ := splitArgument(e.Message)
	return typ
}

// Argument returns the trailing numeric argument of the message, or 0.
func (e *RPCError) Argument() int {
	_, arg := splitArgument(e.Message)
	return arg
}

func splitArgument(msg string) (string, int) {
	idx := strings.LastIndexByte(msg, '_')
	if idx <= 0 || idx == len(msg)-1 {
		return msg, 0
	}
	n, err := strconv.Atoi(msg[idx+1:])
	if err != nil || n < 0 {
		return msg, 0
	}
	return msg[:idx], n
}

// FaultKind categorizes a remote-client failure.
type FaultKind int

const (
	// FaultUnknown is any failure outside the known vocabulary, transport
	// errors included.
	FaultUnknown FaultKind = iota
	// FaultBanned indicates the phone number is banned.
	FaultBanned
	// FaultDeactivated indicates the user account was deactivated or banned.
	FaultDeactivated
	// FaultDuplicateKey indicates the auth key was used from two places at once.
	FaultDuplicateKey
	// FaultRevoked indicates the session was terminated by the account owner.
	FaultRevoked
	// FaultFloodWait indicates the request was rate limited.
	FaultFloodWait
	// FaultHashInvalid indicates an invalid hash or signature.
	FaultHashInvalid
)

var faultNames = map[FaultKind]string{
	FaultUnknown:      "unknown",
	FaultBanned:       "banned",
	FaultDeactivated:  "deactivated",
	FaultDuplicateKey: "duplicate-key",
	FaultRevoked:      "revoked",
	FaultFloodWait:    "flood-wait",
	FaultHashInvalid:  "hash-invalid",
}

func (k FaultKind) String() string {
	if name, ok := faultNames[k]; ok {
		return name
	}
	return "FaultKind(" + strconv.Itoa(int(k)) + ")"
}

// Fault is a classified remote-client failure.
type Fault struct {
	Kind    FaultKind
	Message string
	// Wait is the server-requested delay for FaultFloodWait.
	Wait time.Duration
	Err  error
}

func (f *Fault) Error() string {
	var rpcErr *RPCError
	switch {
	case f.Kind == FaultUnknown && f.Err != nil:
		return f.Message + ": " + f.Err.Error()
	case errors.As(f.Err, &rpcErr):
		return f.Message + " (" + rpcErr.Message + ")"
	default:
		return f.Message
	}
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Classify maps any error returned by a Client to a Fault. It is total:
// every non-nil error yields a Fault, FaultUnknown being the catch-all.
// Returns nil for a nil error.
func Classify(err error) *Fault {
	if err == nil {
		return nil
	}

	var fault *Fault
	if errors.As(err, &fault) {
		return fault
	}

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return &Fault{Kind: FaultUnknown, Message: "unknown error", Err: err}
	}

	switch rpcErr.Type() {
	case "PHONE_NUMBER_BANNED":
		return &Fault{Kind: FaultBanned, Message: "phone number banned", Err: err}
	case "USER_DEACTIVATED", "USER_DEACTIVATED_BAN":
		return &Fault{Kind: FaultDeactivated, Message: "user deactivated or banned", Err: err}
	case "AUTH_KEY_DUPLICATED":
		return &Fault{Kind: FaultDuplicateKey, Message: "auth key duplicated", Err: err}
	case "SESSION_REVOKED":
		return &Fault{Kind: FaultRevoked, Message: "session revoked", Err: err}
	case "FLOOD_WAIT", "FLOOD_PREMIUM_WAIT":
		wait := time.Duration(rpcErr.Argument()) * time.Second
		return &Fault{Kind: FaultFloodWait, Message: "flood wait " + wait.String(), Wait: wait, Err: err}
	case "HASH_INVALID":
		return &Fault{Kind: FaultHashInvalid, Message: "hash invalid", Err: err}
	}

	// Some flood responses carry only the code.
	if rpcErr.Code == 420 {
		return &Fault{Kind: FaultFloodWait, Message: "flood wait", Err: err}
	}
	return &Fault{Kind: FaultUnknown, Message: "unknown error", Err: err}
}

package kvclient

import (
    "errors"
    "fmt"
    "net/http"
    "strings"
)

var (
    ErrDiscovery   = errors.New("kvclient: cannot discover cluster leader")
    ErrNotLeader   = errors.New("kvclient: target node is not the leader")
    ErrEmptyKey    = errors.New("kvclient: empty key")
    ErrInvalidNode = errors.New("kvclient: invalid node id")
    ErrInvalidPage = errors.New("kvclient: pageSize and pageNum must be >= 1")
)

// DiscoveryError reports a failed leader discovery. It matches ErrDiscovery
// and unwraps to the transport or decoding cause.
type DiscoveryError struct {
    Err error
}

func (e *DiscoveryError) Error() string {
    if e.Err == nil { return ErrDiscovery.Error() }
    return ErrDiscovery.Error() + ": " + e.Err.Error()
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

func (e *DiscoveryError) Is(target error) bool { return target == ErrDiscovery }

// RequestError reports a failed routed operation. StatusCode is zero when
// the request never got a reply.
type RequestError struct {
    Op         string
    Method     string
    URL        string
    StatusCode int
    Message    string
    Body       []byte
    Err        error
}

func (e *RequestError) Error() string {
    switch {
    case e.StatusCode != 0 && e.Message != "":
        return fmt.Sprintf("kvclient: %s %s: status %d: %s", e.Op, e.URL, e.StatusCode, e.Message)
    case e.StatusCode != 0:
        return fmt.Sprintf("kvclient: %s %s: status %d", e.Op, e.URL, e.StatusCode)
    default:
        return fmt.Sprintf("kvclient: %s %s: %v", e.Op, e.URL, e.Err)
    }
}

func (e *RequestError) Unwrap() error { return e.Err }

// Is reports the gateway's "not the leader" rejection as ErrNotLeader.
func (e *RequestError) Is(target error) bool {
    return target == ErrNotLeader && e.notLeader()
}

func (e *RequestError) notLeader() bool {
    switch e.StatusCode {
    case http.StatusConflict, http.StatusMisdirectedRequest:
        return true
    case http.StatusBadRequest:
        return strings.Contains(strings.ToLower(e.Message), "not the leader")
    }
    return false
}

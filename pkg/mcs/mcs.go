// Package mcs defines the contract of the memory configuration service: the
// asynchronous request/reply transport used to read and write addressable
// memory spaces on a remote node.
//
// The package owns no framing, retry or timeout policy. A Service turns a
// request into exactly one eventual callback; implementations decide on
// which goroutine that callback runs. Callers that need serial delivery per
// consumer (such as memspace.Cache) rely on the implementation to deliver
// replies for one consumer one at a time.
package mcs

import (
	"context"
	"errors"
	"fmt"
)

// MaxDatagramPayload is the largest number of data bytes a single read reply
// may carry. Requests for more than this are split by the caller.
const MaxDatagramPayload = 64

// Space selects an addressable memory region on a remote node. Distinct
// spaces do not share addresses.
type Space uint8

// Well-known memory spaces.
const (
	SpaceCDI              Space = 0xFF
	SpaceAll              Space = 0xFE
	SpaceConfig           Space = 0xFD
	SpaceACDIManufacturer Space = 0xFC
	SpaceACDIUser         Space = 0xFB
)

// String returns the space in hex, with its well-known name when it has one.
func (s Space) String() string {
	switch s {
	case SpaceCDI:
		return "0xFF(cdi)"
	case SpaceAll:
		return "0xFE(all)"
	case SpaceConfig:
		return "0xFD(config)"
	case SpaceACDIManufacturer:
		return "0xFC(acdi-mfg)"
	case SpaceACDIUser:
		return "0xFB(acdi-user)"
	default:
		return fmt.Sprintf("0x%02X", uint8(s))
	}
}

// Status codes carried by write replies. Zero is success; anything else is a
// remote-reported failure.
const (
	CodeOK                  uint16 = 0x0000
	CodePermanentError      uint16 = 0x1000
	CodeAddressSpaceUnknown uint16 = 0x1081
	CodeAddressOutOfBounds  uint16 = 0x1082
	CodeWriteReadOnly       uint16 = 0x1083
	CodeTemporaryError      uint16 = 0x2000
)

// ErrNoReply is reported by services that give up on a request without a
// reply from the remote node.
var ErrNoReply = errors.New("mcs: no reply from remote node")

// RemoteError is a failure reported by the remote node rather than by the
// transport.
type RemoteError struct {
	Code uint16
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("mcs: remote node rejected request: code 0x%04x", e.Code)
}

// ReadRequest asks for up to Count bytes starting at Address.
type ReadRequest struct {
	Node    NodeID
	Space   Space
	Address uint64
	Count   int
}

// ReadReply is the outcome of a ReadRequest. Address is the address the remote
// node reports for Data, which is not guaranteed to match the request. A
// successful reply may carry fewer bytes than requested, or none at all.
type ReadReply struct {
	Node    NodeID
	Space   Space
	Address uint64
	Data    []byte
	Err     error
}

// WriteRequest writes Data starting at Address.
type WriteRequest struct {
	Node    NodeID
	Space   Space
	Address uint64
	Data    []byte
}

// WriteReply is the outcome of a WriteRequest. Err reports a local transport
// failure; Code reports the remote node's verdict.
type WriteReply struct {
	Code uint16
	Err  error
}

// OK reports whether the write was accepted by the remote node.
func (r WriteReply) OK() bool {
	return r.Err == nil && r.Code == CodeOK
}

// Service is the memory configuration service consumed by caches.
//
// Both methods return immediately. The callback is invoked exactly once per
// request, possibly on another goroutine, possibly before the method returns.
type Service interface {
	Read(ctx context.Context, req ReadRequest, done func(ReadReply))
	Write(ctx context.Context, req WriteRequest, done func(WriteReply))
}

// ServiceFuncs adapts a pair of functions to the Service interface. A nil
// function fails the request with ErrNoReply.
type ServiceFuncs struct {
	ReadFunc  func(ctx context.Context, req ReadRequest, done func(ReadReply))
	WriteFunc func(ctx context.Context, req WriteRequest, done func(WriteReply))
}

// Read implements Service.
func (s ServiceFuncs) Read(ctx context.Context, req ReadRequest, done func(ReadReply)) {
	if s.ReadFunc == nil {
		done(ReadReply{Node: req.Node, Space: req.Space, Address: req.Address, Err: ErrNoReply})
		return
	}
	s.ReadFunc(ctx, req, done)
}

// Write implements Service.
func (s ServiceFuncs) Write(ctx context.Context, req WriteRequest, done func(WriteReply)) {
	if s.WriteFunc == nil {
		done(WriteReply{Err: ErrNoReply})
		return
	}
	s.WriteFunc(ctx, req, done)
}

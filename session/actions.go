// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/termuxwc/termuxwc/control"
	"github.com/termuxwc/termuxwc/lib/codec"
	"github.com/termuxwc/termuxwc/lib/version"
)

// Control actions served on the control socket.
const (
	ActionStatus     = "status"
	ActionViewers    = "viewers"
	ActionRefresh    = "refresh"
	ActionDisconnect = "disconnect"
)

// DisconnectRequest is the body of the disconnect action.
type DisconnectRequest struct {
	Viewer string `cbor:"viewer"`
}

// RefreshResponse is the result of the refresh action.
type RefreshResponse struct {
	Seq uint64 `cbor:"seq"`
}

func (s *Session) registerActions(server *control.Server) {
	server.Handle(ActionStatus, func(ctx context.Context, raw []byte) (any, error) {
		return s.Status(false), nil
	})
	server.Handle(ActionViewers, func(ctx context.Context, raw []byte) (any, error) {
		return s.viewers.Viewers(), nil
	})
	server.Handle(ActionRefresh, func(ctx context.Context, raw []byte) (any, error) {
		s.frames.Refresh()
		return RefreshResponse{Seq: s.frames.Current().Seq}, nil
	})
	server.Handle(ActionDisconnect, func(ctx context.Context, raw []byte) (any, error) {
		var request DisconnectRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
		if request.Viewer == "" {
			return nil, errors.New("viewer is required")
		}
		if !s.viewers.Disconnect(request.Viewer) {
			return nil, fmt.Errorf("no viewer %q", request.Viewer)
		}
		s.logger.Info("viewer disconnected by control request", "viewer_id", request.Viewer)
		return nil, nil
	})
}

func buildVersion() string {
	return version.Info()
}

// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package controlplane defines the Port interface every
// renderer implements (HTTP/SSE, CLI, chat) and provides the HTTP/SSE
// concrete implementation. Core logic depends only on the port; a
// control plane never reaches back into the session manager except
// through the operations this interface names.
package controlplane

import "context"

// Port is the abstract interface for UI/messenger integrations,
// grounded on original_source/afk/ports/control_plane.py's
// ControlPlanePort protocol. session.Manager's own ControlPlane
// interface is the minimal slice (create/close channel) it needs
// directly; this is the fuller surface a concrete renderer implements.
type Port interface {
	SendMessage(ctx context.Context, channelID, text string, silent bool) (messageID string, err error)
	EditMessage(ctx context.Context, channelID, messageID, text string) error
	SendPermissionRequest(ctx context.Context, channelID, toolName, toolArgs, requestID string) error
	CreateSessionChannel(ctx context.Context, name string) (channelID string, err error)
	GetChannelLink(channelID string) (string, bool)
	CloseSessionChannel(ctx context.Context, channelID string) error
	SendPhoto(ctx context.Context, channelID, photoPath, caption string) (messageID string, err error)
	SendDocument(ctx context.Context, channelID, filePath, caption string) (messageID string, err error)
	DownloadVoice(ctx context.Context, fileID string) (localPath string, err error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

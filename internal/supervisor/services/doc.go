// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

// Package services adapts Everly components to suture.Service: the HTTP
// server, the event forwarder and the periodic module health monitor. The
// websocket hub and relay implement suture.Service themselves.
package services

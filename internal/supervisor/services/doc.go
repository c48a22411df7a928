// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

/*
Package services adapts Bastion components to suture.Service.

Two shapes are covered:

  - Start/Stop components (the audit forwarder) are wrapped by
    ForwarderService, which starts the component, waits for cancellation and
    stops it within a bounded drain timeout.
  - Periodic maintenance (retention sweep, cache cleanup, policy reload) is
    expressed as a Task run by PeriodicService on a ticker.

Each wrapper implements fmt.Stringer so suture logs identify it by name.
*/
package services

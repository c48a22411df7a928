// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package main

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/bastion/internal/audit"
	"github.com/tomtom215/bastion/internal/logging"
)

// securityAlertService consumes escalated audit events and writes them to
// the error log, where alerting picks them up.
type securityAlertService struct {
	subscriber message.Subscriber
	topic      string
}

func newSecurityAlertService(subscriber message.Subscriber, topic string) *securityAlertService {
	return &securityAlertService{subscriber: subscriber, topic: topic}
}

// Serve implements suture.Service.
func (s *securityAlertService) Serve(ctx context.Context) error {
	messages, err := s.subscriber.Subscribe(ctx, s.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				// Publisher closed during shutdown.
				<-ctx.Done()
				return ctx.Err()
			}
			s.handle(msg)
		}
	}
}

func (s *securityAlertService) handle(msg *message.Message) {
	defer msg.Ack()

	var se audit.SecurityEvent
	if err := json.Unmarshal(msg.Payload, &se); err != nil {
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Malformed security event")
		return
	}
	logging.Error().
		Str("reason", se.Reason).
		Str("event_id", se.Event.ID).
		Str("event_type", string(se.Event.EventType)).
		Str("severity", string(se.Event.Severity)).
		Str("actor_id", se.Event.Actor.ID).
		Str("action", se.Event.Action).
		Time("detected_at", se.DetectedAt).
		Msg("Security event")
}

func (s *securityAlertService) String() string {
	return "security-alerts"
}

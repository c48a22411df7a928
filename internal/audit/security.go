// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
)

// DefaultSecurityTopic is the topic security events are published on.
const DefaultSecurityTopic = "audit.security"

// Reasons a recorded event is escalated as a security event.
const (
	ReasonCritical = "critical"
	ReasonFailure  = "failure"
)

// SecurityEmitter receives events escalated by the compliance check.
type SecurityEmitter interface {
	PublishSecurityEvent(ctx context.Context, event Event, reason string) error
}

// SecurityEvent is the payload published for an escalated event.
type SecurityEvent struct {
	Reason     string    `json:"reason"`
	DetectedAt time.Time `json:"detected_at"`
	Event      Event     `json:"event"`
}

// SecurityPublisher publishes security events to a watermill topic.
type SecurityPublisher struct {
	publisher message.Publisher
	topic     string
	now       func() time.Time
}

// NewSecurityPublisher publishes on topic, or DefaultSecurityTopic when
// topic is empty.
func NewSecurityPublisher(publisher message.Publisher, topic string) *SecurityPublisher {
	if topic == "" {
		topic = DefaultSecurityTopic
	}
	return &SecurityPublisher{publisher: publisher, topic: topic, now: time.Now}
}

// Topic returns the destination topic.
func (p *SecurityPublisher) Topic() string {
	return p.topic
}

// PublishSecurityEvent serializes and publishes one escalated event.
func (p *SecurityPublisher) PublishSecurityEvent(ctx context.Context, event Event, reason string) error {
	data, err := json.Marshal(SecurityEvent{
		Reason:     reason,
		DetectedAt: p.now().UTC(),
		Event:      event,
	})
	if err != nil {
		return fmt.Errorf("serialize security event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("event_id", event.ID)
	msg.Metadata.Set("event_type", string(event.EventType))
	msg.Metadata.Set("severity", string(event.Severity))
	msg.Metadata.Set("reason", reason)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish security event %s: %w", event.ID, err)
	}
	return nil
}

// Close closes the underlying publisher.
func (p *SecurityPublisher) Close() error {
	return p.publisher.Close()
}
